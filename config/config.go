// Package config loads engine settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceQueue   = "queue"
	SourceBacklog = "backlog"
)

// Config is the full engine configuration.
type Config struct {
	Accounts       int    `yaml:"accounts"`
	InitialBalance int64  `yaml:"initial_balance"`
	QueueCapacity  int    `yaml:"queue_capacity"`
	Source         string `yaml:"source"`
	Malformed      string `yaml:"malformed"`

	Log     LogConfig     `yaml:"log"`
	Feed    FeedConfig    `yaml:"feed"`
	Metrics MetricsConfig `yaml:"metrics"`
	GRPC    GRPCConfig    `yaml:"grpc"`
	Export  ExportConfig  `yaml:"export"`
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FeedConfig configures the ZeroMQ ledger feed used by serve.
type FeedConfig struct {
	Address   string `yaml:"address"`
	Producers int    `yaml:"producers"`
}

// MetricsConfig configures the Prometheus endpoint. An empty address
// disables it.
type MetricsConfig struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
}

// GRPCConfig configures the gRPC health endpoint. An empty address disables it.
type GRPCConfig struct {
	Address string `yaml:"address"`
}

// ExportConfig configures Arrow export. An empty dir disables it.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Accounts:      10,
		QueueCapacity: 64,
		Source:        SourceQueue,
		Malformed:     "abort",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Feed: FeedConfig{
			Address:   "tcp://127.0.0.1:7070",
			Producers: 1,
		},
		Metrics: MetricsConfig{
			Namespace: "hieraledger",
		},
	}
}

// Load reads path on top of Default. ${VAR} references in the file are
// expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from LEDGER_* environment variables.
func (c *Config) ApplyEnv() error {
	ints := map[string]*int{
		"LEDGER_ACCOUNTS":       &c.Accounts,
		"LEDGER_QUEUE_CAPACITY": &c.QueueCapacity,
		"LEDGER_FEED_PRODUCERS": &c.Feed.Producers,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", key, v)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("LEDGER_INITIAL_BALANCE"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("LEDGER_INITIAL_BALANCE: %q is not an integer", v)
		}
		c.InitialBalance = n
	}

	strs := map[string]*string{
		"LEDGER_SOURCE":          &c.Source,
		"LEDGER_MALFORMED":       &c.Malformed,
		"LEDGER_LOG_LEVEL":       &c.Log.Level,
		"LEDGER_LOG_FORMAT":      &c.Log.Format,
		"LEDGER_FEED_ADDRESS":    &c.Feed.Address,
		"LEDGER_METRICS_ADDRESS": &c.Metrics.Address,
		"LEDGER_GRPC_ADDRESS":    &c.GRPC.Address,
		"LEDGER_EXPORT_DIR":      &c.Export.Dir,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	return nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Accounts <= 0 {
		errs = append(errs, fmt.Errorf("accounts must be positive, got %d", c.Accounts))
	}
	if c.InitialBalance < 0 {
		errs = append(errs, fmt.Errorf("initial_balance must not be negative, got %d", c.InitialBalance))
	}
	if c.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity))
	}
	switch c.Source {
	case SourceQueue, SourceBacklog:
	default:
		errs = append(errs, fmt.Errorf("source must be queue or backlog, got %q", c.Source))
	}
	switch c.Malformed {
	case "abort", "skip":
	default:
		errs = append(errs, fmt.Errorf("malformed must be abort or skip, got %q", c.Malformed))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Feed.Producers < 0 {
		errs = append(errs, fmt.Errorf("feed.producers must not be negative, got %d", c.Feed.Producers))
	}
	return errors.Join(errs...)
}
