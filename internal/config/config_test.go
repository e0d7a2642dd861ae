package config

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty grpc addr", func(c *Config) { c.GRPCAddr = "" }},
		{"zero capacity", func(c *Config) { c.Capacity = 0 }},
		{"negative alpha", func(c *Config) { c.Alpha = -1 }},
		{"beta above one", func(c *Config) { c.Beta = 1.2 }},
		{"nan beta", func(c *Config) { c.Beta = math.NaN() }},
		{"negative increment", func(c *Config) { c.BetaIncrement = -0.1 }},
		{"zero epsilon", func(c *Config) { c.Epsilon = 0 }},
		{"zero cap", func(c *Config) { c.AbsErrorCap = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())

	cfg.LogLevel = ""
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}
