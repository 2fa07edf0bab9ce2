package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flowstate-go/flowstate/flow/store"
)

// Config selects the backing store the CLI operates on. It is loaded from
// an optional YAML file and overridden by flags.
type Config struct {
	// Store is the backend kind: "sqlite", "document", or "mysql".
	Store string `yaml:"store"`

	// Path is the database file for sqlite and document backends, or the
	// DSN for mysql.
	Path string `yaml:"path"`

	// Queue is the default queue id for task commands.
	Queue string `yaml:"queue"`
}

// DefaultConfigPath is consulted when no --config flag is given.
const DefaultConfigPath = "flowstate.yaml"

func defaultConfig() Config {
	return Config{Store: "sqlite", Path: "./flowstate.db", Queue: "tasks"}
}

// loadConfig reads the YAML config at path, filling unset fields with
// defaults. An empty path tries DefaultConfigPath and falls back to pure
// defaults when the file does not exist; an explicit path must exist.
func loadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if loaded.Store != "" {
		cfg.Store = loaded.Store
	}
	if loaded.Path != "" {
		cfg.Path = loaded.Path
	}
	if loaded.Queue != "" {
		cfg.Queue = loaded.Queue
	}
	return cfg, nil
}

// open connects to the configured store.
func (c Config) open() (store.Store, error) {
	switch c.Store {
	case "sqlite":
		return store.NewSQLite(c.Path)
	case "document":
		return store.NewDocument(c.Path)
	case "mysql":
		return store.NewMySQL(c.Path)
	default:
		return nil, fmt.Errorf("unknown store kind %q (want sqlite, document, or mysql)", c.Store)
	}
}
