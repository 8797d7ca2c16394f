package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/offcache"
)

// Config holds the daemon configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	App      string `yaml:"app"`
	Upstream string `yaml:"upstream"` // origin server, e.g. "http://127.0.0.1:5000"

	// Backend selects the store backend: memory | bigcache | ristretto |
	// sqlite | redis.
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir"` // sqlite database directory

	Redis RedisConfig `yaml:"redis"`

	DeferTakeover         bool   `yaml:"defer_takeover"`
	PersistRevalidateMiss bool   `yaml:"persist_revalidate_miss"`
	LogLevel              string `yaml:"log_level"` // debug | info | warn | error

	Manifest offcache.Manifest `yaml:"manifest"`
}

// RedisConfig is used when backend is "redis".
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:   ":8090",
		App:      "leafdoc",
		Upstream: "http://127.0.0.1:5000",
		Backend:  "sqlite",
		DataDir:  "offcache-data",
		LogLevel: "info",
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Manifest.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
