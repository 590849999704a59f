package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"gitlab.com/tinyland/lab/barkeep/pkg/config"
	"gitlab.com/tinyland/lab/barkeep/pkg/daemon"
	"gitlab.com/tinyland/lab/barkeep/pkg/display"
	"gitlab.com/tinyland/lab/barkeep/pkg/engine"
	"gitlab.com/tinyland/lab/barkeep/pkg/source"
	"gitlab.com/tinyland/lab/barkeep/pkg/store"
)

// barDaemon wires the long-running pieces together: command
// supervisors feeding the store, the engine re-evaluating on changes,
// the renderer consuming models, and the control socket.
type barDaemon struct {
	cfg      *config.Config
	log      *slog.Logger
	st       *store.Store
	eng      *engine.Engine
	manager  *source.Manager
	renderer *display.Renderer
	pidPath  string
	sockPath string
}

func newDaemon(cfg *config.Config, log *slog.Logger) *barDaemon {
	st := store.New()
	return &barDaemon{
		cfg:      cfg,
		log:      log,
		st:       st,
		eng:      engine.New(cfg, st, log),
		manager:  source.NewManager(cfg.Commands, st, log),
		renderer: display.New(os.Stdout),
		pidPath:  daemon.PIDPath(cfg.Instance),
		sockPath: daemon.SocketPath(cfg.Instance),
	}
}

// run holds the instance lock and drives all subsystems until ctx is
// cancelled or one of them fails.
func (d *barDaemon) run(ctx context.Context) error {
	if err := daemon.AcquirePID(d.pidPath); err != nil {
		return err
	}
	defer daemon.ReleasePID(d.pidPath)

	srv := daemon.NewServer(d.sockPath, &controlHandler{d: d}, d.log)
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	d.log.Info("daemon started",
		"instance", d.cfg.Instance,
		"commands", len(d.cfg.Commands),
		"socket", d.sockPath,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.manager.Run(gctx) })
	g.Go(func() error { return d.eng.Run(gctx) })
	g.Go(func() error { return d.renderer.Run(gctx, d.eng.Models()) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runOnce evaluates the config against an empty store and prints one
// frame, for checking a config without starting commands.
func (d *barDaemon) runOnce() error {
	m := d.eng.Evaluate()
	return display.NewPlain(os.Stdout).Draw(m)
}

// controlHandler dispatches socket requests into the running daemon.
type controlHandler struct {
	d *barDaemon
}

func (h *controlHandler) Handle(req daemon.Request) daemon.Response {
	switch req.Command {
	case "get-var":
		v, ok := h.d.st.Get(req.Name)
		if !ok {
			return daemon.Errorf("no such variable %q", req.Name)
		}
		return daemon.OKValue(v)

	case "set-var":
		if req.Name == "" {
			return daemon.Errorf("set-var: empty variable name")
		}
		h.d.st.Set(req.Name, req.Value)
		return daemon.OK()

	case "rotate-var":
		v, err := h.d.eng.Rotate(req.Name, req.Values)
		if err != nil {
			return daemon.Errorf("%v", err)
		}
		return daemon.OKValue(v)

	case "list-vars":
		return daemon.OKVars(h.d.st.Snapshot().All())

	case "poke":
		// An empty batch still wakes the engine's update watcher.
		h.d.st.Apply(store.Batch{})
		return daemon.OK()

	case "status":
		stats := h.d.manager.Stats()
		out := make(map[string]string, len(stats))
		for name, restarts := range stats {
			out[name] = fmt.Sprintf("restarts=%d", restarts)
		}
		return daemon.OKVars(out)

	default:
		return daemon.Errorf("unknown command %q", req.Command)
	}
}
