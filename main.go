// barkeep is a status-bar data engine.
//
// It supervises external commands, decodes their output streams into a
// shared variable store, and re-evaluates templated blocks and bars
// whenever the data changes. The resolved bars are rendered to the
// terminal; a Unix-socket control interface lets scripts read and
// write variables in the running daemon.
//
// Usage:
//
//	barkeep [flags]
//
// Flags:
//
//	-config string    Path to configuration file (default: XDG config search)
//	-instance string  Instance name override (socket and pidfile)
//	-once             Evaluate the config once, print a frame and exit
//	-get string       Read one variable from the running daemon
//	-set string       Write NAME=VALUE into the running daemon
//	-rotate string    Rotate a variable through -values
//	-values string    Comma-separated candidates for -rotate
//	-vars             Dump the daemon's variable namespace
//	-format string    Output format for -vars/-get: text, json or yaml
//	-poke             Force an immediate re-evaluation pass
//	-status           Show per-command supervisor stats
//	-verbose          Enable verbose logging
//	-version          Print version and exit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"gitlab.com/tinyland/lab/barkeep/pkg/config"
	"gitlab.com/tinyland/lab/barkeep/pkg/daemon"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		instance    = flag.String("instance", "", "Instance name override")
		runOnce     = flag.Bool("once", false, "Evaluate the config once and exit")
		getVar      = flag.String("get", "", "Read one variable from the running daemon")
		setVar      = flag.String("set", "", "Write NAME=VALUE into the running daemon")
		rotateVar   = flag.String("rotate", "", "Rotate a variable through -values")
		rotateVals  = flag.String("values", "", "Comma-separated candidates for -rotate")
		listVars    = flag.Bool("vars", false, "Dump the daemon's variable namespace")
		format      = flag.String("format", "text", "Output format: text, json or yaml")
		poke        = flag.Bool("poke", false, "Force an immediate re-evaluation pass")
		showStatus  = flag.Bool("status", false, "Show per-command supervisor stats")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("barkeep %s (%s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *instance != "" {
		cfg.Instance = *instance
	}

	// Control-client modes talk to a running daemon and exit.
	if *getVar != "" || *setVar != "" || *rotateVar != "" || *listVars || *poke || *showStatus {
		if err := runControl(cfg, *getVar, *setVar, *rotateVar, *rotateVals, *listVars, *poke, *showStatus, *format); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	d := newDaemon(cfg, logger)

	if *runOnce {
		if err := d.runOnce(); err != nil {
			logger.Error("evaluation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	if err := d.run(ctx); err != nil {
		logger.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// runControl executes one client command against the daemon's socket.
func runControl(cfg *config.Config, get, set, rotate, values string, list, poke, status bool, format string) error {
	client := daemon.NewClient(daemon.SocketPath(cfg.Instance))

	switch {
	case get != "":
		v, err := client.GetVar(get)
		if err != nil {
			return err
		}
		return printValue(map[string]string{get: v}, v, format)

	case set != "":
		name, value, ok := strings.Cut(set, "=")
		if !ok {
			return fmt.Errorf("-set wants NAME=VALUE, got %q", set)
		}
		return client.SetVar(name, value)

	case rotate != "":
		candidates := strings.Split(values, ",")
		if values == "" {
			return fmt.Errorf("-rotate needs -values")
		}
		v, err := client.RotateVar(rotate, candidates)
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil

	case list:
		vars, err := client.ListVars()
		if err != nil {
			return err
		}
		return printVars(vars, format)

	case status:
		stats, err := client.Status()
		if err != nil {
			return err
		}
		return printVars(stats, format)

	case poke:
		return client.Poke()
	}
	return nil
}

func printValue(structured map[string]string, plain, format string) error {
	if format == "text" {
		fmt.Println(plain)
		return nil
	}
	return printVars(structured, format)
}

func printVars(vars map[string]string, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(vars, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "yaml":
		data, err := yaml.Marshal(vars)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	case "text":
		names := make([]string, 0, len(vars))
		for name := range vars {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s=%s\n", name, vars[name])
		}
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
	return nil
}
