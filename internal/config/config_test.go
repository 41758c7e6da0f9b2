package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	v := viper.New()
	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 11211, cfg.Port)
	assert.Equal(t, ProtocolMemcached, cfg.Protocol)
	assert.Equal(t, BackendReadiness, cfg.RuntimeBackend)
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	cfg.Workers = 0
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "invalid port")
	assert.Contains(t, msg, "workers must be at least 1")
	assert.Contains(t, msg, "invalid log_level")
}

func TestParseMemorySize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMemory = "512MB"
	n, err := cfg.ParseMemorySize()
	require.NoError(t, err)
	assert.EqualValues(t, 512*1024*1024, n)
}

func TestValidateRejectsOversizedMaxValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = 1024
	cfg.BufferCount = 4
	cfg.MaxValueSize = 1 << 20
	assert.Error(t, cfg.Validate())
}
