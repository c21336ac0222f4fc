// Package config handles tessera.toml host configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config is the full host configuration. Values come from tessera.toml
// when present; environment variables override the file, and anything
// still unset falls back to the defaults.
type Config struct {
	Server  Server  `toml:"server"`
	Worker  Worker  `toml:"worker"`
	Catalog Catalog `toml:"catalog"`
	Log     Log     `toml:"log"`

	// Dir is the directory containing the tessera.toml file (set at load time).
	Dir string `toml:"-"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr string `toml:"addr" env:"TESSERA_ADDR"`
}

// Worker configures how the tiling worker process is spawned.
type Worker struct {
	Command string   `toml:"command" env:"TESSERA_WORKER_COMMAND"`
	Args    []string `toml:"args" env:"TESSERA_WORKER_ARGS" envSeparator:" "`
	Dir     string   `toml:"dir" env:"TESSERA_WORKER_DIR"`
	Env     []string `toml:"env"`
}

// Catalog configures the overlay catalog database.
type Catalog struct {
	Path string `toml:"path" env:"TESSERA_CATALOG_DB"`
}

// Log configures logging output.
type Log struct {
	Verbosity int `toml:"verbosity" env:"TESSERA_LOG_VERBOSITY"`
}

// Default returns the configuration used when no tessera.toml exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load parses a tessera.toml file from the given directory, then applies
// defaults and environment overrides.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "tessera.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	cfg.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindAndLoad walks up from startDir to find a tessera.toml file and
// loads it. When no file exists anywhere up the tree it returns the
// defaults with environment overrides applied.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "tessera.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			cfg := Default()
			if err := cfg.applyEnv(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		dir = parent
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Worker.Command == "" {
		c.Worker.Command = "python3"
		if len(c.Worker.Args) == 0 {
			c.Worker.Args = []string{"-u", "tiling_worker.py"}
		}
	}
	if c.Catalog.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.Catalog.Path = filepath.Join(home, ".tessera", "catalog.db")
	}
}

func (c *Config) applyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
