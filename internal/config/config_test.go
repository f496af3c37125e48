package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/scrollfeed/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	EnvBaseURL, EnvAPIKey, EnvUserAgent, EnvFetchDelay, EnvRedisURL,
	EnvPort, EnvLogLevel, EnvLogPretty, EnvStartAddress,
}

// clearEnv unsets every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, Config{
		BaseURL:      "https://reqres.in",
		UserAgent:    DefaultUserAgent,
		Port:         "8080",
		LogLevel:     "info",
		StartAddress: "/users",
	}, cfg)
}

func TestFromEnv_Values(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBaseURL, "http://localhost:9000")
	t.Setenv(EnvAPIKey, "secret")
	t.Setenv(EnvUserAgent, "feedview/1.0")
	t.Setenv(EnvFetchDelay, "1500ms")
	t.Setenv(EnvRedisURL, "localhost:6379")
	t.Setenv(EnvPort, "9090")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogPretty, "true")
	t.Setenv(EnvStartAddress, "/users?page=2")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.BaseURL)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, "feedview/1.0", cfg.UserAgent)
	assert.Equal(t, 1500*time.Millisecond, cfg.FetchDelay)
	assert.Equal(t, "localhost:6379", cfg.RedisURL)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, "/users?page=2", cfg.StartAddress)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unparsable delay", EnvFetchDelay, "soon"},
		{"negative delay", EnvFetchDelay, "-1s"},
		{"unparsable pretty", EnvLogPretty, "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "9090")

	path := filepath.Join(t.TempDir(), "feed.env")
	content := "PORT=7070\nFEED_FETCH_DELAY=250ms\nFEED_API_KEY=from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port, "environment wins over the file")
	assert.Equal(t, 250*time.Millisecond, cfg.FetchDelay)
	assert.Equal(t, "from-file", cfg.APIKey)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoad_WithoutDefaultFile(t *testing.T) {
	clearEnv(t)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
}

func TestConfig_Source(t *testing.T) {
	cfg := Config{
		BaseURL:    "http://upstream.test",
		APIKey:     "k",
		UserAgent:  "ua/1",
		FetchDelay: time.Second,
	}

	src := cfg.Source()
	assert.Equal(t, "http://upstream.test", src.BaseURL)
	assert.Equal(t, "/api/users", src.Path)
	assert.Equal(t, "k", src.APIKey)
	assert.Equal(t, "ua/1", src.UserAgent)
	assert.Equal(t, time.Second, src.FetchDelay)
	assert.Nil(t, src.Redis)
}

func TestConfig_Logging(t *testing.T) {
	cfg := Config{LogLevel: "WARN", LogPretty: true}

	lc := cfg.Logging(os.Stdout)
	assert.Equal(t, logging.LevelWarn, lc.Level)
	assert.True(t, lc.Pretty)
	assert.Equal(t, os.Stdout, lc.Output)
}

func TestConfig_RedisOptions(t *testing.T) {
	opts, err := Config{}.RedisOptions()
	require.NoError(t, err)
	assert.Nil(t, opts)

	opts, err = Config{RedisURL: "localhost:6380"}.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", opts.Addr)

	opts, err = Config{RedisURL: "redis://cache:6379/3"}.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 3, opts.DB)

	_, err = Config{RedisURL: "redis://cache:6379/not-a-db"}.RedisOptions()
	assert.Error(t, err)
}
