// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	want := Config{
		ListenAddr:       ":8080",
		LogLevel:         "info",
		RedisAddr:        "localhost:6379",
		PollInterval:     DefaultPollInterval,
		TerminationDelay: DefaultTerminationDelay,
		RateLimitPerMin:  DefaultRateLimitPerMin,
		ShutdownTimeout:  DefaultShutdownTimeout,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NOTIFYD_LISTEN", "127.0.0.1:9090")
	t.Setenv("NOTIFYD_LOG_LEVEL", "debug")
	t.Setenv("NOTIFYD_REDIS_ADDR", "redis:6380")
	t.Setenv("NOTIFYD_REDIS_DB", "3")
	t.Setenv("NOTIFYD_POLL_INTERVAL", "250ms")
	t.Setenv("NOTIFYD_QUEUE_HEARTBEAT", "yes")
	t.Setenv("NOTIFYD_TERMINATION_DELAY", "45s")
	t.Setenv("NOTIFYD_END_CHAT_URL", "http://bot:3000/end-chat")
	t.Setenv("NOTIFYD_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9090", cfg.ListenAddr)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "redis:6380", cfg.RedisAddr)
	require.Equal(t, 3, cfg.RedisDB)
	require.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	require.True(t, cfg.QueueHeartbeat)
	require.Equal(t, 45*time.Second, cfg.TerminationDelay)
	require.Equal(t, "http://bot:3000/end-chat", cfg.EndChatURL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "notifyd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfigFile(t, `
listenAddr: ":9999"
logLevel: warn
redis:
  addr: "redis.internal:6379"
  db: 2
stream:
  pollInterval: 2s
  queueHeartbeat: true
termination:
  delay: 1m
  endChatURL: "http://bot.internal/end-chat"
allowedOrigins:
  - https://app.example
rateLimitPerMin: 60
shutdownTimeout: 20s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Config{
		ListenAddr:       ":9999",
		LogLevel:         "warn",
		RedisAddr:        "redis.internal:6379",
		RedisDB:          2,
		PollInterval:     2 * time.Second,
		QueueHeartbeat:   true,
		TerminationDelay: time.Minute,
		EndChatURL:       "http://bot.internal/end-chat",
		AllowedOrigins:   []string{"https://app.example"},
		RateLimitPerMin:  60,
		ShutdownTimeout:  20 * time.Second,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := writeConfigFile(t, `
listenAddr: ":9999"
stream:
  pollInterval: 2s
`)
	t.Setenv("NOTIFYD_LISTEN", ":7777")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7777", cfg.ListenAddr)
	require.Equal(t, 2*time.Second, cfg.PollInterval, "non-overridden file values survive")
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
}

func TestLoad_RejectsUnknownFileKeys(t *testing.T) {
	path := writeConfigFile(t, "listenAdress: \":9999\"\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad listen address", key: "NOTIFYD_LISTEN", value: "no-port"},
		{name: "bad end-chat URL", key: "NOTIFYD_END_CHAT_URL", value: "://nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestParseDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("NOTIFYD_TEST_DUR", "soon")
	require.Equal(t, 5*time.Second, ParseDuration("NOTIFYD_TEST_DUR", 5*time.Second))
}

func TestParseBool_Variants(t *testing.T) {
	for value, want := range map[string]bool{"true": true, "1": true, "YES": true, "false": false, "0": false, "no": false, "maybe": false} {
		t.Setenv("NOTIFYD_TEST_BOOL", value)
		require.Equal(t, want, ParseBool("NOTIFYD_TEST_BOOL", false), "value %q", value)
	}
}

func TestParseInt_InvalidFallsBack(t *testing.T) {
	t.Setenv("NOTIFYD_TEST_INT", "many")
	require.Equal(t, 42, ParseInt("NOTIFYD_TEST_INT", 42))
}
