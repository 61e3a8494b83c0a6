package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"fulfillbill/internal/logger"
)

type Config struct {
	// Backing store
	DatabaseURL string

	// Fulfillment platform API
	PlatformBaseURL string
	PlatformAPIKey  string

	// Platform call pacing: minimum delay between consecutive calls and
	// the shared backoff policy for throttled/transient failures.
	PlatformMinDelay     time.Duration
	BackoffInitial       time.Duration
	BackoffMax           time.Duration
	BackoffMaxAttempts   int
	FetchConcurrency     int
	StorePageSize        int

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	logDefaults := logger.DefaultConfig()
	config := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		PlatformBaseURL:    getEnv("PLATFORM_BASE_URL", ""),
		PlatformAPIKey:     getEnv("PLATFORM_API_KEY", ""),
		PlatformMinDelay:   getEnvDuration("PLATFORM_MIN_DELAY", 250*time.Millisecond),
		BackoffInitial:     getEnvDuration("BACKOFF_INITIAL", 500*time.Millisecond),
		BackoffMax:         getEnvDuration("BACKOFF_MAX", 30*time.Second),
		BackoffMaxAttempts: getEnvInt("BACKOFF_MAX_ATTEMPTS", 6),
		FetchConcurrency:   getEnvInt("FETCH_CONCURRENCY", 4),
		StorePageSize:      getEnvInt("STORE_PAGE_SIZE", 500),
		LogLevel:           getEnv("LOG_LEVEL", logDefaults.Level),
		LogFormat:          getEnv("LOG_FORMAT", logDefaults.Format),
		LogTimeFormat:      getEnv("LOG_TIME_FORMAT", logDefaults.TimeFormat),
		LogOutput:          getEnv("LOG_OUTPUT", logDefaults.Output),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadLogging reads only the logging subset of the environment, with the
// same defaults Load uses. The process logger is set up before any command
// runs, including ones that do not need (or cannot validate) the full
// config, so this path must not require the store or platform settings.
func LoadLogging() logger.LogConfig {
	d := logger.DefaultConfig()
	c := &Config{
		LogLevel:      getEnv("LOG_LEVEL", d.Level),
		LogFormat:     getEnv("LOG_FORMAT", d.Format),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", d.TimeFormat),
		LogOutput:     getEnv("LOG_OUTPUT", d.Output),
	}
	return c.GetLoggerConfig()
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.PlatformBaseURL == "" {
		return fmt.Errorf("PLATFORM_BASE_URL is required")
	}
	if c.PlatformAPIKey == "" {
		return fmt.Errorf("PLATFORM_API_KEY is required")
	}
	if c.BackoffMaxAttempts <= 0 {
		return fmt.Errorf("BACKOFF_MAX_ATTEMPTS must be positive")
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive")
	}
	if c.StorePageSize <= 0 {
		return fmt.Errorf("STORE_PAGE_SIZE must be positive")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
