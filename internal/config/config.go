package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the AxWise gateway.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Backend  BackendConfig
	Poll     PollConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// BackendConfig describes the Python analysis backend the gateway fronts.
// DevToken is the development-mode bearer fallback used when a request
// carries no Authorization header of its own; it is not a security boundary.
type BackendConfig struct {
	BaseURL        string
	DevToken       string
	RequestTimeout time.Duration
	LongRunTimeout time.Duration
}

// PollConfig holds defaults for job status polling. MaxConsecutiveErrors of
// zero means poll through transient errors indefinitely.
type PollConfig struct {
	Interval             time.Duration
	MaxConsecutiveErrors int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("AXWISE_PORT", 8080),
			Env:  envString("AXWISE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Backend: BackendConfig{
			BaseURL:        envString("BACKEND_BASE_URL", "http://localhost:8000"),
			DevToken:       envString("BACKEND_DEV_TOKEN", "dev-token"),
			RequestTimeout: envDuration("BACKEND_REQUEST_TIMEOUT", 30*time.Second),
			LongRunTimeout: envDuration("BACKEND_LONGRUN_TIMEOUT", 12*time.Minute),
		},
		Poll: PollConfig{
			Interval:             envDuration("POLL_INTERVAL", 2*time.Second),
			MaxConsecutiveErrors: envInt("POLL_MAX_CONSECUTIVE_ERRORS", 0),
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

	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("BACKEND_BASE_URL must start with http:// or https://, got %q", c.Backend.BaseURL)
	}

	if c.Backend.RequestTimeout <= 0 {
		return fmt.Errorf("BACKEND_REQUEST_TIMEOUT must be positive, got %s", c.Backend.RequestTimeout)
	}
	if c.Backend.LongRunTimeout < c.Backend.RequestTimeout {
		return fmt.Errorf("BACKEND_LONGRUN_TIMEOUT must be at least BACKEND_REQUEST_TIMEOUT")
	}

	if c.Poll.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.MaxConsecutiveErrors < 0 {
		return fmt.Errorf("POLL_MAX_CONSECUTIVE_ERRORS must not be negative")
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
