package config

import (
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load reads configuration from the standard config path.
// Search order:
//  1. $XDG_CONFIG_HOME/barkeep/config.toml
//  2. ~/.config/barkeep/config.toml
//
// If no file exists, returns DefaultConfig().
func Load() (*Config, error) {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return LoadFromFile(p)
		}
	}
	return DefaultConfig(), nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader reads configuration from an io.Reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// DefaultConfig returns an empty configuration. A missing config file
// renders a blank bar: visible, but never fatal.
func DefaultConfig() *Config {
	return &Config{
		Instance: "default",
	}
}

// applyDefaults runs the three-tier default merge (global default ->
// named default -> block) over every declared block, producing one
// flattened property set per block at load time.
func (c *Config) applyDefaults() {
	named := map[string]*Block{}
	for i := range c.Defaults {
		merged := mergeBlock(c.GlobalDefault, c.Defaults[i])
		c.Defaults[i] = merged
		named[merged.Name] = &c.Defaults[i]
	}
	for i := range c.Blocks {
		base := c.GlobalDefault
		if c.Blocks[i].Inherit != "" {
			if d, ok := named[c.Blocks[i].Inherit]; ok {
				base = *d
			}
		}
		c.Blocks[i] = mergeBlock(base, c.Blocks[i])
	}
	if c.Instance == "" {
		c.Instance = "default"
	}
}

func configSearchPaths() []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "barkeep", "config.toml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "barkeep", "config.toml"))
	}
	return paths
}
