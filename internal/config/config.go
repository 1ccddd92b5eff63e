package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the dogwatch server, worker and CLI.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Queue      QueueConfig
	Storage    StorageConfig
	Classifier ClassifierConfig
	RateLimit  RateLimitConfig
	Monitor    MonitorConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	MaxUploadBytes int64
	MigrationsDir  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL              string
	CacheTerminalTTL time.Duration
}

// QueueConfig controls the Redis work queue and the worker pool draining it.
type QueueConfig struct {
	Name              string
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	ReapInterval      time.Duration
	Workers           int
}

type StorageConfig struct {
	Backend string
	Dir     string
}

type ClassifierConfig struct {
	Provider      string
	BaseURL       string
	Timeout       time.Duration
	TargetLabel   string
	MinConfidence float64
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type MonitorConfig struct {
	StaleAfter time.Duration
	Interval   time.Duration
}

const (
	StorageBackendDisk     = "disk"
	StorageBackendPostgres = "postgres"
)

var validStorageBackends = map[string]bool{
	StorageBackendDisk:     true,
	StorageBackendPostgres: true,
}

var validProviders = map[string]bool{
	"http": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is applied first if one exists; variables
// already present in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("DOGWATCH_PORT", 8080),
			Env:            envString("DOGWATCH_ENV", "development"),
			MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", 10<<20)),
			MigrationsDir:  envString("MIGRATIONS_DIR", "migrations"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:              os.Getenv("REDIS_URL"),
			CacheTerminalTTL: envDuration("CACHE_TERMINAL_TTL", 30*time.Minute),
		},
		Queue: QueueConfig{
			Name:              envString("QUEUE_NAME", "image_prediction"),
			VisibilityTimeout: envDuration("QUEUE_VISIBILITY_TIMEOUT", 5*time.Minute),
			PollInterval:      envDuration("QUEUE_POLL_INTERVAL", time.Second),
			ReapInterval:      envDuration("QUEUE_REAP_INTERVAL", 30*time.Second),
			Workers:           envInt("WORKER_CONCURRENCY", 2),
		},
		Storage: StorageConfig{
			Backend: envString("IMAGE_STORE", StorageBackendDisk),
			Dir:     envString("UPLOAD_DIR", "./uploads"),
		},
		Classifier: ClassifierConfig{
			Provider:      envString("CLASSIFIER_PROVIDER", "http"),
			BaseURL:       os.Getenv("CLASSIFIER_BASE_URL"),
			Timeout:       envDurationSecs("CLASSIFIER_TIMEOUT_SECS", 60*time.Second),
			TargetLabel:   envString("CLASSIFIER_TARGET_LABEL", "dog"),
			MinConfidence: envFloat("CLASSIFIER_MIN_CONFIDENCE", 0.25),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("RATE_LIMIT_RPM", 60),
		},
		Monitor: MonitorConfig{
			StaleAfter: envDuration("MONITOR_STALE_AFTER", 15*time.Minute),
			Interval:   envDuration("MONITOR_INTERVAL", time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.Server.MaxUploadBytes)
	}

	if !validStorageBackends[c.Storage.Backend] {
		return fmt.Errorf("IMAGE_STORE must be one of disk, postgres; got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == StorageBackendDisk && c.Storage.Dir == "" {
		return fmt.Errorf("UPLOAD_DIR is required when IMAGE_STORE is disk")
	}

	if c.Queue.Workers <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Queue.Workers)
	}
	if c.Queue.VisibilityTimeout <= 0 {
		return fmt.Errorf("QUEUE_VISIBILITY_TIMEOUT must be positive")
	}

	return nil
}

// Validate checks the classifier settings. Only the worker talks to the
// classifier, so Load leaves these unchecked and the worker calls this.
func (c ClassifierConfig) Validate() error {
	if !validProviders[c.Provider] {
		return fmt.Errorf("CLASSIFIER_PROVIDER must be http; got %q", c.Provider)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("CLASSIFIER_BASE_URL is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("CLASSIFIER_BASE_URL must start with http:// or https://, got %q", c.BaseURL)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("CLASSIFIER_MIN_CONFIDENCE must be within [0, 1], got %v", c.MinConfidence)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
