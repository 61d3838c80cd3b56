// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML representation of the service configuration.
// Any field left at its zero value keeps the env/default value.
type FileConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	LogLevel   string `yaml:"logLevel"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Stream struct {
		PollInterval   time.Duration `yaml:"pollInterval"`
		QueueHeartbeat bool          `yaml:"queueHeartbeat"`
	} `yaml:"stream"`

	Termination struct {
		Delay      time.Duration `yaml:"delay"`
		EndChatURL string        `yaml:"endChatURL"`
	} `yaml:"termination"`

	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	RateLimitPerMin int           `yaml:"rateLimitPerMin"`
	TracingService  string        `yaml:"tracingService"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// loadFile reads and decodes a YAML config file. A missing file is not an
// error; callers fall back to env and defaults.
func loadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-provided
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}
