// SPDX-License-Identifier: MIT

// Package config loads the service configuration with precedence
// ENV > config file > built-in defaults.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Defaults for timing policy. The poll interval bounds how stale a streamed
// value may be; the termination delay is the grace period before an idle
// chat is ended.
const (
	DefaultPollInterval     = 1 * time.Second
	DefaultTerminationDelay = 30 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultRateLimitPerMin  = 120
)

// Config holds the resolved runtime configuration.
type Config struct {
	ListenAddr string
	LogLevel   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// PollInterval is the SSE polling cadence for every stream session.
	PollInterval time.Duration
	// QueueHeartbeat, when true, makes queue-position streams emit every
	// tick instead of only on change.
	QueueHeartbeat bool

	// TerminationDelay is how long a chat stays in the termination queue
	// before the end-chat action fires.
	TerminationDelay time.Duration
	// EndChatURL is the outbound endpoint the termination action posts to.
	EndChatURL string

	AllowedOrigins  []string
	RateLimitPerMin int
	// TracingService enables OpenTelemetry HTTP instrumentation when non-empty.
	TracingService  string
	ShutdownTimeout time.Duration
}

// Load resolves the configuration. path may be empty; ENV wins over file values.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddr:       ":8080",
		LogLevel:         "info",
		RedisAddr:        "localhost:6379",
		PollInterval:     DefaultPollInterval,
		TerminationDelay: DefaultTerminationDelay,
		RateLimitPerMin:  DefaultRateLimitPerMin,
		ShutdownTimeout:  DefaultShutdownTimeout,
	}

	if path != "" {
		fc, err := loadFile(path)
		if err != nil {
			return Config{}, err
		}
		if fc != nil {
			cfg.applyFile(fc)
		}
	}

	cfg.ListenAddr = ParseString("NOTIFYD_LISTEN", cfg.ListenAddr)
	cfg.LogLevel = ParseString("NOTIFYD_LOG_LEVEL", cfg.LogLevel)
	cfg.RedisAddr = ParseString("NOTIFYD_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = ParseString("NOTIFYD_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = ParseInt("NOTIFYD_REDIS_DB", cfg.RedisDB)
	cfg.PollInterval = ParseDuration("NOTIFYD_POLL_INTERVAL", cfg.PollInterval)
	cfg.QueueHeartbeat = ParseBool("NOTIFYD_QUEUE_HEARTBEAT", cfg.QueueHeartbeat)
	cfg.TerminationDelay = ParseDuration("NOTIFYD_TERMINATION_DELAY", cfg.TerminationDelay)
	cfg.EndChatURL = ParseString("NOTIFYD_END_CHAT_URL", cfg.EndChatURL)
	cfg.RateLimitPerMin = ParseInt("NOTIFYD_RATE_LIMIT_PER_MIN", cfg.RateLimitPerMin)
	cfg.TracingService = ParseString("NOTIFYD_TRACING_SERVICE", cfg.TracingService)
	cfg.ShutdownTimeout = ParseDuration("NOTIFYD_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if origins := ParseString("NOTIFYD_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = splitOrigins(origins)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(fc *FileConfig) {
	if fc.ListenAddr != "" {
		c.ListenAddr = fc.ListenAddr
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.Redis.Addr != "" {
		c.RedisAddr = fc.Redis.Addr
	}
	if fc.Redis.Password != "" {
		c.RedisPassword = fc.Redis.Password
	}
	if fc.Redis.DB != 0 {
		c.RedisDB = fc.Redis.DB
	}
	if fc.Stream.PollInterval > 0 {
		c.PollInterval = fc.Stream.PollInterval
	}
	if fc.Stream.QueueHeartbeat {
		c.QueueHeartbeat = true
	}
	if fc.Termination.Delay > 0 {
		c.TerminationDelay = fc.Termination.Delay
	}
	if fc.Termination.EndChatURL != "" {
		c.EndChatURL = fc.Termination.EndChatURL
	}
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.RateLimitPerMin > 0 {
		c.RateLimitPerMin = fc.RateLimitPerMin
	}
	if fc.TracingService != "" {
		c.TracingService = fc.TracingService
	}
	if fc.ShutdownTimeout > 0 {
		c.ShutdownTimeout = fc.ShutdownTimeout
	}
}

// Validate rejects configurations that cannot produce a working server.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.ListenAddr, err)
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis address must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.TerminationDelay <= 0 {
		return fmt.Errorf("termination delay must be positive, got %s", c.TerminationDelay)
	}
	if c.EndChatURL != "" {
		u, err := url.Parse(c.EndChatURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid end-chat URL %q", c.EndChatURL)
		}
	}
	return nil
}

func splitOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
