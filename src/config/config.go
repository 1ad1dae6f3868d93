package config

import (
	"fmt"
	"os"
	"time"

	"market-data-service/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Default creates a Config without a file, used by tests and embedded setups.
func Default() *Config {
	c := &Config{MConfig: &models.MConfig{
		Name:     "market-data-service",
		Host:     "127.0.0.1",
		Port:     8090,
		LogLevel: "INFO",
		Storage:  models.MStorageConfig{DBType: "sqlite", DBPath: ":memory:"},
	}}
	c.applyDefaults()
	return c
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.Cache.CandleCoverageRatio == 0 {
		c.Cache.CandleCoverageRatio = 0.90
	}
	if c.Cache.MaxConcurrentDownloads == 0 {
		c.Cache.MaxConcurrentDownloads = 4
	}
	if c.Cache.EvictionGraceSeconds == 0 {
		c.Cache.EvictionGraceSeconds = 120
	}
	if c.Cache.EvictionSweepSeconds == 0 {
		c.Cache.EvictionSweepSeconds = 30
	}
	if c.Streaming.ChunkSize == 0 {
		c.Streaming.ChunkSize = 5000
	}
	if c.Streaming.HeartbeatIntervalSeconds == 0 {
		c.Streaming.HeartbeatIntervalSeconds = 5
	}
	if c.Streaming.MaxConcurrentStreams == 0 {
		c.Streaming.MaxConcurrentStreams = 2
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	if c.Cache.CandleCoverageRatio <= 0 || c.Cache.CandleCoverageRatio > 1 {
		return fmt.Errorf("candle coverage ratio must be in (0, 1], got %f", c.Cache.CandleCoverageRatio)
	}
	if c.Cache.MaxConcurrentDownloads <= 0 {
		return fmt.Errorf("max concurrent downloads must be greater than 0")
	}
	if c.Cache.EvictionGraceSeconds <= 0 {
		return fmt.Errorf("eviction grace must be greater than 0")
	}
	if c.Cache.EvictionSweepSeconds <= 0 {
		return fmt.Errorf("eviction sweep interval must be greater than 0")
	}

	if c.Streaming.ChunkSize <= 0 {
		return fmt.Errorf("stream chunk size must be greater than 0")
	}
	if c.Streaming.HeartbeatIntervalSeconds <= 0 {
		return fmt.Errorf("heartbeat interval must be greater than 0")
	}
	if c.Streaming.MaxConcurrentStreams <= 0 {
		return fmt.Errorf("max concurrent streams must be greater than 0")
	}

	return nil
}

// -----------------------------------------------------------------------------
// Derived Durations
// -----------------------------------------------------------------------------

// EvictionGrace is the minimum idle time before a zero-consumer page may be
// removed.
func (c *Config) EvictionGrace() time.Duration {
	return time.Duration(c.Cache.EvictionGraceSeconds) * time.Second
}

// EvictionSweepInterval is the period of the idle-page sweep.
func (c *Config) EvictionSweepInterval() time.Duration {
	return time.Duration(c.Cache.EvictionSweepSeconds) * time.Second
}

// HeartbeatInterval is the period of the per-stream progress heartbeat.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Streaming.HeartbeatIntervalSeconds) * time.Second
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
