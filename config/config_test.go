package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 100, cfg.Runtime.QueueSize)
	assert.Equal(t, 30*time.Second, cfg.Runtime.ExecutionTimeout)
	assert.Equal(t, 1, cfg.Runtime.MaxRetries)
	assert.Equal(t, core.DefaultRetryStrategy(), cfg.Bus.RetryStrategy())
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowmesh.yaml")

	data := []byte(`
runtime:
  queueSize: 8
  executionTimeout: 5s
storage:
  backend: sqlite
  sqlite:
    path: /tmp/mesh.db
logging:
  level: debug
  format: text
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Runtime.QueueSize)
	assert.Equal(t, 5*time.Second, cfg.Runtime.ExecutionTimeout)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/mesh.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	// Untouched sections keep their defaults.
	assert.Equal(t, 1, cfg.Runtime.MaxRetries)
	assert.Equal(t, core.DefaultRetryStrategy(), cfg.Bus.RetryStrategy())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runtime: ["), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: dynamo\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLOWMESH_QUEUE_SIZE", "4")
	t.Setenv("FLOWMESH_EXECUTION_TIMEOUT", "250ms")
	t.Setenv("FLOWMESH_LOG_LEVEL", "warn")
	t.Setenv("FLOWMESH_STORAGE_BACKEND", "etcd")
	t.Setenv("FLOWMESH_ETCD_ENDPOINTS", "etcd-1:2379, etcd-2:2379")
	t.Setenv("FLOWMESH_BUS_MAX_RETRIES", "7")
	t.Setenv("FLOWMESH_BUS_EXPONENTIAL", "false")

	cfg, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Runtime.QueueSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Runtime.ExecutionTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "etcd", cfg.Storage.Backend)
	assert.Equal(t, []string{"etcd-1:2379", "etcd-2:2379"}, cfg.Storage.Etcd.Endpoints)
	assert.Equal(t, 7, cfg.Bus.MaxRetries)
	assert.False(t, cfg.Bus.Exponential)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runtime:\n  queueSize: 8\n"), 0o600))

	t.Setenv("FLOWMESH_QUEUE_SIZE", "16")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Runtime.QueueSize)
}

func TestEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("FLOWMESH_QUEUE_SIZE", "many")
	t.Setenv("FLOWMESH_BACKOFF", "soon")

	cfg, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Runtime.QueueSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Runtime.Backoff)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "zero queue size",
			mutate:  func(cfg *Config) { cfg.Runtime.QueueSize = 0 },
			wantErr: "runtime.queueSize",
		},
		{
			name:    "zero timeout",
			mutate:  func(cfg *Config) { cfg.Runtime.ExecutionTimeout = 0 },
			wantErr: "runtime.executionTimeout",
		},
		{
			name:    "zero retries",
			mutate:  func(cfg *Config) { cfg.Runtime.MaxRetries = 0 },
			wantErr: "runtime.maxRetries",
		},
		{
			name:    "negative bus retries",
			mutate:  func(cfg *Config) { cfg.Bus.MaxRetries = -1 },
			wantErr: "bus.maxRetries",
		},
		{
			name:    "unknown backend",
			mutate:  func(cfg *Config) { cfg.Storage.Backend = "postgres" },
			wantErr: "storage.backend",
		},
		{
			name: "redis backend without addr",
			mutate: func(cfg *Config) {
				cfg.Storage.Backend = "redis"
				cfg.Storage.Redis.Addr = ""
			},
			wantErr: "storage.redis.addr",
		},
		{
			name: "etcd backend without endpoints",
			mutate: func(cfg *Config) {
				cfg.Storage.Backend = "etcd"
				cfg.Storage.Etcd.Endpoints = nil
			},
			wantErr: "storage.etcd.endpoints",
		},
		{
			name:    "unknown log format",
			mutate:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoggingConfigLoggerConfig(t *testing.T) {
	lc := LoggingConfig{Level: "debug", Format: "text"}.LoggerConfig()

	assert.Equal(t, logging.LogLevelDebug, lc.Level)
	assert.Equal(t, "text", lc.Format)

	lc = LoggingConfig{Level: "nonsense"}.LoggerConfig()
	assert.Equal(t, logging.LogLevelInfo, lc.Level)
}
