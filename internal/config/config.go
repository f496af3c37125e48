// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/scrollfeed/pkg/logging"
	"github.com/Sternrassler/scrollfeed/pkg/source"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Environment variable names.
const (
	EnvBaseURL      = "FEED_BASE_URL"
	EnvAPIKey       = "FEED_API_KEY"
	EnvUserAgent    = "USER_AGENT"
	EnvFetchDelay   = "FEED_FETCH_DELAY"
	EnvRedisURL     = "REDIS_URL"
	EnvPort         = "PORT"
	EnvLogLevel     = "LOG_LEVEL"
	EnvLogPretty    = "LOG_PRETTY"
	EnvStartAddress = "FEED_START_ADDRESS"
)

// DefaultUserAgent identifies the feed tools upstream.
const DefaultUserAgent = "scrollfeed/0.1.0"

// Config is the process configuration shared by the commands.
type Config struct {
	// BaseURL of the upstream users API.
	BaseURL string

	// APIKey sent as x-api-key when set.
	APIKey string

	// UserAgent sent upstream.
	UserAgent string

	// FetchDelay postpones every page fetch.
	FetchDelay time.Duration

	// RedisURL enables the upstream rate limit gate. Either host:port or a
	// redis:// URL. Empty disables the gate.
	RedisURL string

	// Port the proxy listens on.
	Port string

	// LogLevel is a logging level name.
	LogLevel string

	// LogPretty switches to console log output.
	LogPretty bool

	// StartAddress is the address a new feed view opens at.
	StartAddress string
}

// Load reads the given .env files (".env" when none are given) into the
// environment, then builds a Config. Variables already set in the
// environment win over file values. A missing default .env is not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}

	return FromEnv()
}

// FromEnv builds a Config from environment variables with defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		BaseURL:      getEnv(EnvBaseURL, "https://reqres.in"),
		APIKey:       os.Getenv(EnvAPIKey),
		UserAgent:    getEnv(EnvUserAgent, DefaultUserAgent),
		RedisURL:     os.Getenv(EnvRedisURL),
		Port:         getEnv(EnvPort, "8080"),
		LogLevel:     getEnv(EnvLogLevel, string(logging.LevelInfo)),
		StartAddress: getEnv(EnvStartAddress, "/users"),
	}

	delay, err := time.ParseDuration(getEnv(EnvFetchDelay, "0s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", EnvFetchDelay, err)
	}
	if delay < 0 {
		return Config{}, fmt.Errorf("%s must be >= 0 (got %s)", EnvFetchDelay, delay)
	}
	cfg.FetchDelay = delay

	pretty, err := strconv.ParseBool(getEnv(EnvLogPretty, "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", EnvLogPretty, err)
	}
	cfg.LogPretty = pretty

	return cfg, nil
}

// Source returns the page source configuration. The Redis client is left
// unset; see RedisOptions.
func (c Config) Source() source.Config {
	cfg := source.DefaultConfig(c.UserAgent)
	cfg.BaseURL = c.BaseURL
	cfg.APIKey = c.APIKey
	cfg.FetchDelay = c.FetchDelay
	return cfg
}

// Logging returns the logger configuration writing to output.
func (c Config) Logging(output io.Writer) logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(strings.ToLower(c.LogLevel)),
		Pretty: c.LogPretty,
		Output: output,
	}
}

// RedisOptions returns the connection options for RedisURL, or nil when the
// gate is disabled.
func (c Config) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, nil
	}
	if strings.HasPrefix(c.RedisURL, "redis://") || strings.HasPrefix(c.RedisURL, "rediss://") {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvRedisURL, err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.RedisURL}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
