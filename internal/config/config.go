package config

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// Config holds all replay service configuration
type Config struct {
	// Listeners
	GRPCAddr  string `mapstructure:"grpc_addr"`
	AdminAddr string `mapstructure:"admin_addr"`

	// Buffer settings
	Capacity      int     `mapstructure:"capacity"`
	Alpha         float64 `mapstructure:"alpha"`
	Beta          float64 `mapstructure:"beta"`
	BetaIncrement float64 `mapstructure:"beta_increment"`
	Epsilon       float64 `mapstructure:"epsilon"`
	AbsErrorCap   float64 `mapstructure:"abs_error_cap"`
	Seed          int64   `mapstructure:"seed"` // 0 seeds from the clock

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		GRPCAddr:      ":8080",
		AdminAddr:     ":9090",
		Capacity:      100000,
		Alpha:         0.6,
		Beta:          0.4,
		BetaIncrement: 0.001,
		Epsilon:       0.01,
		AbsErrorCap:   1.0,
		LogLevel:      "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.GRPCAddr == "" {
		return fmt.Errorf("grpc_addr is required")
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive")
	}
	if invalid(c.Alpha) || c.Alpha < 0 {
		return fmt.Errorf("alpha must be non-negative")
	}
	if invalid(c.Beta) || c.Beta < 0 || c.Beta > 1 {
		return fmt.Errorf("beta must be in [0, 1]")
	}
	if invalid(c.BetaIncrement) || c.BetaIncrement < 0 {
		return fmt.Errorf("beta_increment must be non-negative")
	}
	if invalid(c.Epsilon) || c.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive")
	}
	if invalid(c.AbsErrorCap) || c.AbsErrorCap <= 0 {
		return fmt.Errorf("abs_error_cap must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Level returns the parsed log level, defaulting to info
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func invalid(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}
