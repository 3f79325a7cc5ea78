package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	cfg := &Config{}
	var got *Config
	cmd := NewCommand("neocascade", "test", cfg, func(_ context.Context, c *Config) error {
		got = c
		return nil
	})
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.Execute()
	if err != nil {
		return nil, err
	}
	require.NotNil(t, got)
	return got, nil
}

func TestDefaults(t *testing.T) {
	cfg, err := runCommand(t)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 5*time.Second, cfg.TickInterval)
	assert.Equal(t, 5, cfg.AlertRetention)
	assert.Equal(t, 0, cfg.ChatRetention)
	assert.Equal(t, 10, cfg.MaxCodeAttempts)
}

func TestFlagsAndEnv(t *testing.T) {
	t.Setenv("NEOCASCADE_PORT", "9090")
	t.Setenv("NEOCASCADE_TICK_INTERVAL", "250ms")

	cfg, err := runCommand(t, "--store", "redis", "--redis-addr", "cache:6379", "--chat_retention", "50")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, 50, cfg.ChatRetention, "underscores normalize to dashes")
}

func TestFlagOverridesEnv(t *testing.T) {
	t.Setenv("NEOCASCADE_PORT", "9090")
	cfg, err := runCommand(t, "--port", "7000")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
}

func TestValidate(t *testing.T) {
	valid := Config{Port: 8080, Store: StoreMemory, TickInterval: time.Second, MaxCodeAttempts: 1, RateLimit: 1}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"store", func(c *Config) { c.Store = "etcd" }},
		{"redis addr", func(c *Config) { c.Store = StoreRedis; c.RedisAddr = "" }},
		{"tick", func(c *Config) { c.TickInterval = 0 }},
		{"retention", func(c *Config) { c.ChatRetention = -1 }},
		{"attempts", func(c *Config) { c.MaxCodeAttempts = 0 }},
		{"rate", func(c *Config) { c.RateLimit = 0 }},
		{"half key pair", func(c *Config) { c.AuthPrivateKey = "/etc/neocascade/ed25519" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestAuthKeyFlags(t *testing.T) {
	t.Setenv("NEOCASCADE_AUTH_PUBLIC_KEY", "/keys/ed25519.pub")
	cfg, err := runCommand(t, "--auth-private-key", "/keys/ed25519")
	require.NoError(t, err)
	assert.Equal(t, "/keys/ed25519", cfg.AuthPrivateKey)
	assert.Equal(t, "/keys/ed25519.pub", cfg.AuthPublicKey)

	t.Setenv("NEOCASCADE_AUTH_PUBLIC_KEY", "")
	_, err = runCommand(t, "--auth-private-key", "/keys/ed25519")
	assert.Error(t, err)
}

func TestInvalidConfigSkipsRun(t *testing.T) {
	_, err := runCommand(t, "--store", "etcd")
	assert.Error(t, err)
}
