// Package config loads smtrace settings from an optional YAML file on top of
// built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	// Workers bounds the number of source maps processed concurrently.
	Workers  int         `yaml:"workers"`
	LogLevel string      `yaml:"logLevel"`
	Cache    CacheConfig `yaml:"cache"`
	Serve    ServeConfig `yaml:"serve"`
}

// CacheConfig controls the decoded map cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // Defaults to cache.DefaultDir().
}

// ServeConfig holds settings of the HTTP trace service.
type ServeConfig struct {
	Addr        string        `yaml:"addr"`
	MapsDir     string        `yaml:"mapsDir"`
	ReadTimeout time.Duration `yaml:"readTimeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Workers:  runtime.GOMAXPROCS(0),
		LogLevel: "info",
		Serve: ServeConfig{
			Addr:        "localhost:8090",
			MapsDir:     ".",
			ReadTimeout: 5 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that defaults can't fix.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Serve.ReadTimeout < 0 {
		errs = append(errs, fmt.Errorf("serve.readTimeout must not be negative, got %v", c.Serve.ReadTimeout))
	}
	return errors.Join(errs...)
}

// Level returns the configured log level.
func (c Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
