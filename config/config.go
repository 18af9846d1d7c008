package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
)

// envPaths are the .env locations LoadEnv probes, nearest first. The first
// readable file wins; missing files are not an error.
var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
}

// Config is the full configuration of a flowmesh process.
type Config struct {
	Bus     BusConfig     `yaml:"bus"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// BusConfig configures the message bus: the delivery retry policy and the
// bounds of the in-memory message store.
type BusConfig struct {
	// MaxRetries is the number of redeliveries after the first attempt.
	MaxRetries int `yaml:"maxRetries"`
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration `yaml:"baseDelay"`
	// MaxDelay caps the backoff growth when Exponential is set.
	MaxDelay time.Duration `yaml:"maxDelay"`
	// Exponential doubles the delay each attempt instead of keeping it flat.
	Exponential bool `yaml:"exponential"`
	// StoreCapacity bounds the retained message history; zero means unbounded.
	StoreCapacity int `yaml:"storeCapacity"`
	// StoreTTL expires idle messages; zero keeps them forever.
	StoreTTL time.Duration `yaml:"storeTTL"`
}

// RetryStrategy converts the bus section into the policy the bus consumes.
func (c BusConfig) RetryStrategy() core.RetryStrategy {
	return core.RetryStrategy{
		MaxRetries:  c.MaxRetries,
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
		Exponential: c.Exponential,
	}
}

// RuntimeConfig configures agent execution defaults. Individual executions
// may still override timeout and retries per call.
type RuntimeConfig struct {
	// QueueSize bounds the pending execution queue.
	QueueSize int `yaml:"queueSize"`
	// ExecutionTimeout bounds a single node execution attempt.
	ExecutionTimeout time.Duration `yaml:"executionTimeout"`
	// MaxRetries is the total number of attempts per execution.
	MaxRetries int `yaml:"maxRetries"`
	// Backoff is the base wait between attempts, growing linearly.
	Backoff time.Duration `yaml:"backoff"`
}

// StorageConfig selects the storage backend and carries its connection
// settings. Only the section matching Backend is consulted.
type StorageConfig struct {
	// Backend is one of memory, redis, sqlite or etcd.
	Backend string `yaml:"backend"`

	Redis  RedisConfig  `yaml:"redis"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	Etcd   EtcdConfig   `yaml:"etcd"`
}

// RedisConfig carries the connection settings for the redis backend.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// SQLiteConfig carries the settings for the sqlite backend.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// EtcdConfig carries the connection settings for the etcd backend.
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Namespace string   `yaml:"namespace"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
}

// LoggerConfig converts the logging section into a logger construction
// config. Unknown levels fall back to info.
func (c LoggingConfig) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultLoggerConfig()
	cfg.Level = logging.ParseLogLevel(c.Level)
	if c.Format != "" {
		cfg.Format = c.Format
	}

	return cfg
}

// Default returns the compiled-in configuration: in-memory storage, the
// standard bus retry policy and the runtime execution defaults.
func Default() *Config {
	retry := core.DefaultRetryStrategy()

	return &Config{
		Bus: BusConfig{
			MaxRetries:  retry.MaxRetries,
			BaseDelay:   retry.BaseDelay,
			MaxDelay:    retry.MaxDelay,
			Exponential: retry.Exponential,
		},
		Runtime: RuntimeConfig{
			QueueSize:        100,
			ExecutionTimeout: 30 * time.Second,
			MaxRetries:       1,
			Backoff:          100 * time.Millisecond,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Redis:   RedisConfig{Addr: "localhost:6379"},
			SQLite:  SQLiteConfig{Path: "flowmesh.db"},
			Etcd:    EtcdConfig{Endpoints: []string{"localhost:2379"}, Namespace: "flowmesh"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies FLOWMESH_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadEnv builds a configuration from defaults and FLOWMESH_* environment
// variables alone. A .env file next to the process is sourced first when
// present.
func LoadEnv() (*Config, error) {
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	cfg := Default()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides individual fields from FLOWMESH_* environment
// variables. Unset variables leave the current value in place.
func (c *Config) applyEnv() {
	c.Bus.MaxRetries = getEnvInt("FLOWMESH_BUS_MAX_RETRIES", c.Bus.MaxRetries)
	c.Bus.BaseDelay = getEnvDuration("FLOWMESH_BUS_BASE_DELAY", c.Bus.BaseDelay)
	c.Bus.MaxDelay = getEnvDuration("FLOWMESH_BUS_MAX_DELAY", c.Bus.MaxDelay)
	c.Bus.Exponential = getEnvBool("FLOWMESH_BUS_EXPONENTIAL", c.Bus.Exponential)
	c.Bus.StoreCapacity = getEnvInt("FLOWMESH_BUS_STORE_CAPACITY", c.Bus.StoreCapacity)
	c.Bus.StoreTTL = getEnvDuration("FLOWMESH_BUS_STORE_TTL", c.Bus.StoreTTL)

	c.Runtime.QueueSize = getEnvInt("FLOWMESH_QUEUE_SIZE", c.Runtime.QueueSize)
	c.Runtime.ExecutionTimeout = getEnvDuration("FLOWMESH_EXECUTION_TIMEOUT", c.Runtime.ExecutionTimeout)
	c.Runtime.MaxRetries = getEnvInt("FLOWMESH_MAX_RETRIES", c.Runtime.MaxRetries)
	c.Runtime.Backoff = getEnvDuration("FLOWMESH_BACKOFF", c.Runtime.Backoff)

	c.Storage.Backend = getEnv("FLOWMESH_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Redis.Addr = getEnv("FLOWMESH_REDIS_ADDR", c.Storage.Redis.Addr)
	c.Storage.Redis.Password = getEnv("FLOWMESH_REDIS_PASSWORD", c.Storage.Redis.Password)
	c.Storage.Redis.DB = getEnvInt("FLOWMESH_REDIS_DB", c.Storage.Redis.DB)
	c.Storage.SQLite.Path = getEnv("FLOWMESH_SQLITE_PATH", c.Storage.SQLite.Path)

	if v := os.Getenv("FLOWMESH_ETCD_ENDPOINTS"); v != "" {
		parts := strings.Split(v, ",")
		endpoints := make([]string, 0, len(parts))

		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				endpoints = append(endpoints, p)
			}
		}

		if len(endpoints) > 0 {
			c.Storage.Etcd.Endpoints = endpoints
		}
	}

	c.Storage.Etcd.Namespace = getEnv("FLOWMESH_ETCD_NAMESPACE", c.Storage.Etcd.Namespace)

	c.Logging.Level = getEnv("FLOWMESH_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("FLOWMESH_LOG_FORMAT", c.Logging.Format)
}

// Validate reports the first configuration value that cannot work.
func (c *Config) Validate() error {
	if c.Bus.MaxRetries < 0 {
		return fmt.Errorf("bus.maxRetries must not be negative, got %d", c.Bus.MaxRetries)
	}

	if c.Bus.BaseDelay < 0 || c.Bus.MaxDelay < 0 || c.Bus.StoreTTL < 0 {
		return fmt.Errorf("bus delays and ttl must not be negative")
	}

	if c.Runtime.QueueSize < 1 {
		return fmt.Errorf("runtime.queueSize must be at least 1, got %d", c.Runtime.QueueSize)
	}

	if c.Runtime.ExecutionTimeout <= 0 {
		return fmt.Errorf("runtime.executionTimeout must be positive, got %s", c.Runtime.ExecutionTimeout)
	}

	if c.Runtime.MaxRetries < 1 {
		return fmt.Errorf("runtime.maxRetries must be at least 1, got %d", c.Runtime.MaxRetries)
	}

	switch c.Storage.Backend {
	case "memory", "redis", "sqlite", "etcd":
	default:
		return fmt.Errorf("storage.backend must be one of memory, redis, sqlite or etcd, got %q", c.Storage.Backend)
	}

	if c.Storage.Backend == "redis" && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage.redis.addr is required for the redis backend")
	}

	if c.Storage.Backend == "sqlite" && c.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage.sqlite.path is required for the sqlite backend")
	}

	if c.Storage.Backend == "etcd" && len(c.Storage.Etcd.Endpoints) == 0 {
		return fmt.Errorf("storage.etcd.endpoints is required for the etcd backend")
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}

	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}

	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}

	return fallback
}
