// Package config loads the YAML-driven configuration for profilerd.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates all subsystem configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Profiler ProfilerConfig `yaml:"profiler"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP command surface.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
}

func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

// DatabaseConfig configures the Postgres pool used by the default
// profiler plugin backend.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
}

// GetDSN builds a libpq-style connection string.
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// AuthConfig configures JWT issuance for attachment sessions.
type AuthConfig struct {
	JWTSecret      string `yaml:"jwt_secret"`
	JWTExpiryHours int    `yaml:"jwt_expiry_hours"`

	// AdminUsername/AdminPasswordHash bootstrap the one account Login
	// accepts. AdminPasswordHash is a bcrypt hash, never a plaintext
	// password.
	AdminUsername     string `yaml:"admin_username"`
	AdminPasswordHash string `yaml:"admin_password_hash"`

	// ProfileAnyAttachmentUsers lists usernames granted the
	// PROFILE_ANY_ATTACHMENT-equivalent privilege: they may target any
	// attachment's profiler manager, not only their own.
	ProfileAnyAttachmentUsers []string `yaml:"profile_any_attachment_users"`
}

func (a AuthConfig) JWTExpiry() time.Duration {
	return time.Duration(a.JWTExpiryHours) * time.Hour
}

// ProfilerConfig configures profiler manager defaults.
type ProfilerConfig struct {
	// DefaultPlugin is the backend plugin name used when a caller
	// doesn't specify one explicitly via startSession.
	DefaultPlugin string `yaml:"default_plugin"`

	// MaxFlushIntervalSeconds bounds SetFlushInterval's resolution;
	// requests above this fail with profiler/invalid-flush-interval.
	MaxFlushIntervalSeconds int32 `yaml:"max_flush_interval_seconds"`

	// ListenerShutdownTimeoutMS bounds how long Listener.Close waits
	// on the startup semaphore before giving up (spec: 5s).
	ListenerShutdownTimeoutMS int `yaml:"listener_shutdown_timeout_ms"`
}

func (p ProfilerConfig) ListenerShutdownTimeout() time.Duration {
	return time.Duration(p.ListenerShutdownTimeoutMS) * time.Millisecond
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Default returns sensible defaults, matching the teacher's practice
// of always having a working zero-config example.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8743,
			ReadTimeoutMS:  5000,
			WriteTimeoutMS: 5000,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "profilerd",
			Password: "profilerd",
			DBName:   "profilerd",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		Auth: AuthConfig{
			JWTSecret:      "change-me-to-a-random-32-byte-value!!",
			JWTExpiryHours: 8,
			AdminUsername:  "admin",
			// bcrypt hash of "change-me", regenerate for real deployments
			AdminPasswordHash:         "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5MD8OzvDLNvw.j2Cp9uBfbWSXQX2a",
			ProfileAnyAttachmentUsers: []string{"admin"},
		},
		Profiler: ProfilerConfig{
			DefaultPlugin:             "default",
			MaxFlushIntervalSeconds:   3600,
			ListenerShutdownTimeoutMS: 5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file, falling back to defaults for
// anything the file doesn't set.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// DumpExample writes the default configuration to w as plain YAML
// (no comments).
func DumpExample(w io.Writer) error {
	cfg := Default()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal example config: %w", err)
	}
	_, err = w.Write(data)
	return err
}
