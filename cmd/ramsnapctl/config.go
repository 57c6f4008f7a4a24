package main

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/joshuapare/ramsnap/ram/loader"
)

// envPrefix selects the environment variables that override the config
// file, e.g. RAMSNAP_QUEUE_CAPACITY=64.
const envPrefix = "RAMSNAP_"

// config holds defaults shared by all commands. Command-line flags override
// it; it overrides the built-in defaults.
type config struct {
	// PageSize is used for --block specs without an @pagesize suffix.
	PageSize int `koanf:"page_size"`
	// IndexPos is the file offset of the index pointer.
	IndexPos int64 `koanf:"index_pos"`
	// QueueCapacity bounds the background read pipeline on restore.
	QueueCapacity int `koanf:"queue_capacity"`
	// Lazy restores pages on demand.
	Lazy bool `koanf:"lazy"`
	// Sync flushes saved snapshots to stable storage.
	Sync bool `koanf:"sync"`
}

func defaultConfig() config {
	return config{
		PageSize:      4096,
		QueueCapacity: loader.DefaultQueueCapacity,
	}
}

var (
	configPath string
	cfg        = defaultConfig()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML file with default settings")
}

// loadConfig reads the config file named by --config, then RAMSNAP_*
// environment variables.
func loadConfig(path string) (config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	transform := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}
	if err := k.Load(env.Provider(envPrefix, ".", transform), nil); err != nil {
		return config{}, fmt.Errorf("load env: %w", err)
	}

	c := defaultConfig()
	if err := k.Unmarshal("", &c); err != nil {
		return config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.PageSize <= 0 {
		return config{}, fmt.Errorf("config: page_size must be positive, got %d", c.PageSize)
	}
	if c.IndexPos < 0 {
		return config{}, fmt.Errorf("config: index_pos must not be negative, got %d", c.IndexPos)
	}
	return c, nil
}
