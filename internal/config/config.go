package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// AppConfig holds the server settings. Values come from defaults, then the
// optional CHESS_CONFIG_FILE, then the environment.
type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	CORSOrigin string `yaml:"cors_origin"`

	NameMinLength  int   `yaml:"name_min_length"`
	NameMaxLength  int   `yaml:"name_max_length"`
	BoardMaxLength int   `yaml:"board_max_length"`
	TotalTimeMinMs int64 `yaml:"total_time_min_ms"`
	TotalTimeMaxMs int64 `yaml:"total_time_max_ms"`
	IncrementMaxMs int64 `yaml:"increment_max_ms"`

	MonitorInterval time.Duration `yaml:"monitor_interval"`
	WSPingInterval  time.Duration `yaml:"ws_ping_interval"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	MessagesDir string `yaml:"messages_dir"`
}

func Default() *AppConfig {
	return &AppConfig{
		ListenAddr:      ":3000",
		CORSOrigin:      "*",
		NameMinLength:   3,
		NameMaxLength:   25,
		BoardMaxLength:  100,
		TotalTimeMinMs:  60_000,
		TotalTimeMaxMs:  10_800_000,
		IncrementMaxMs:  180_000,
		MonitorInterval: time.Second,
		WSPingInterval:  30 * time.Second,
		MaxMessageBytes: 16 * 1024,
		ShutdownTimeout: 10 * time.Second,
	}
}

func Load() (*AppConfig, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CHESS_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("CORS_ORIGIN")); v != "" {
		cfg.CORSOrigin = v
	}
	if v := strings.TrimSpace(os.Getenv("MESSAGES_DIR")); v != "" {
		cfg.MessagesDir = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"NAME_MIN_LENGTH", &cfg.NameMinLength},
		{"NAME_MAX_LENGTH", &cfg.NameMaxLength},
		{"BOARD_MAX_LENGTH", &cfg.BoardMaxLength},
	}
	for _, it := range ints {
		if v := strings.TrimSpace(os.Getenv(it.key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", it.key, err)
			}
			*it.dst = n
		}
	}

	int64s := []struct {
		key string
		dst *int64
	}{
		{"TOTAL_TIME_MIN_MS", &cfg.TotalTimeMinMs},
		{"TOTAL_TIME_MAX_MS", &cfg.TotalTimeMaxMs},
		{"INCREMENT_MAX_MS", &cfg.IncrementMaxMs},
		{"MAX_MESSAGE_BYTES", &cfg.MaxMessageBytes},
	}
	for _, it := range int64s {
		if v := strings.TrimSpace(os.Getenv(it.key)); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", it.key, err)
			}
			*it.dst = n
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"MONITOR_INTERVAL", &cfg.MonitorInterval},
		{"WS_PING_INTERVAL", &cfg.WSPingInterval},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, it := range durations {
		if v := strings.TrimSpace(os.Getenv(it.key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", it.key, err)
			}
			*it.dst = d
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects limits that cannot be satisfied together.
func (c *AppConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.ListenAddr) == "":
		return errors.New("LISTEN_ADDR is required")
	case c.NameMinLength < 1 || c.NameMaxLength < c.NameMinLength:
		return fmt.Errorf("invalid name length bounds %d..%d", c.NameMinLength, c.NameMaxLength)
	case c.BoardMaxLength < 1:
		return errors.New("BOARD_MAX_LENGTH must be positive")
	case c.TotalTimeMinMs < 1 || c.TotalTimeMaxMs < c.TotalTimeMinMs:
		return fmt.Errorf("invalid total time bounds %d..%d", c.TotalTimeMinMs, c.TotalTimeMaxMs)
	case c.IncrementMaxMs < 0:
		return errors.New("INCREMENT_MAX_MS must not be negative")
	case c.MonitorInterval <= 0:
		return errors.New("MONITOR_INTERVAL must be positive")
	case c.WSPingInterval <= 0:
		return errors.New("WS_PING_INTERVAL must be positive")
	case c.MaxMessageBytes < 256:
		return errors.New("MAX_MESSAGE_BYTES must be at least 256")
	}
	return nil
}
