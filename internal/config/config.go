// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/maauso/audiosplit/internal/archive"
	"github.com/maauso/audiosplit/internal/audio"
)

// Static errors for configuration validation.
var (
	// ErrInvalidSegmentMinutes is returned when SEGMENT_MINUTES is below 1.
	ErrInvalidSegmentMinutes = errors.New("config: SEGMENT_MINUTES must be at least 1")
	// ErrInvalidArchiveMethod is returned when ARCHIVE_METHOD is not store or deflate.
	ErrInvalidArchiveMethod = errors.New("config: ARCHIVE_METHOD must be store or deflate")
	// ErrInvalidLogHistory is returned when LOG_HISTORY is below 1.
	ErrInvalidLogHistory = errors.New("config: LOG_HISTORY must be at least 1")
	// ErrInvalidPort is returned when PORT is outside 1-65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Host        string `env:"HOST, default=127.0.0.1" json:"host"`
	Port        int    `env:"PORT, default=8080" json:"port"`
	MaxUploadMB int64  `env:"MAX_UPLOAD_MB, default=1024" json:"max_upload_mb"`

	// Cross-origin pages allowed to call the API; empty means same-origin only.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" json:"allowed_origins,omitempty"`

	// Engine settings
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	TempDir     string `env:"TEMP_DIR, default=/tmp/audiosplit" json:"temp_dir"`
	WatchOutput bool   `env:"WATCH_OUTPUT, default=true" json:"watch_output"`
	LogHistory  int    `env:"LOG_HISTORY, default=5" json:"log_history"`

	// Processing settings
	SegmentMinutes int    `env:"SEGMENT_MINUTES, default=10" json:"segment_minutes"`
	ArchiveMethod  string `env:"ARCHIVE_METHOD, default=store" json:"archive_method"`

	// Logging settings
	LogFormat     string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel      string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
	LogFile       string `env:"LOG_FILE" json:"log_file,omitempty"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB, default=100" json:"log_max_size_mb"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS, default=3" json:"log_max_backups"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS, default=28" json:"log_max_age_days"`
}

// Load reads configuration from environment variables using go-envconfig.
// A .env file in the working directory is read first; it never overrides
// variables that are already set.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(context.Background(), envconfig.OsLookuper())
}

// LoadFrom reads configuration through lookuper and validates it.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.SegmentMinutes < 1 {
		return ErrInvalidSegmentMinutes
	}
	if c.LogHistory < 1 {
		return ErrInvalidLogHistory
	}
	if _, err := archive.ParseMethod(c.ArchiveMethod); err != nil {
		return ErrInvalidArchiveMethod
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SegmentDuration returns the initial segment duration.
func (c *Config) SegmentDuration() audio.Duration {
	return audio.FromMinutes(c.SegmentMinutes)
}

// Archive returns the configured archive method, falling back to store.
func (c *Config) Archive() archive.Method {
	m, err := archive.ParseMethod(c.ArchiveMethod)
	if err != nil {
		return archive.MethodStore
	}
	return m
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// LogOutput returns stdout, or stdout plus a rotating file when LogFile is set.
func (c *Config) LogOutput() io.Writer {
	if c.LogFile == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAge:     c.LogMaxAgeDays,
	})
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(c.LogOutput())
}

// NewLoggerTo is NewLogger writing to w.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Addr: %s, FFmpegPath: %s, TempDir: %s, SegmentMinutes: %d, ArchiveMethod: %s, LogHistory: %d, LogFormat: %s, LogLevel: %s}",
		c.Addr(),
		c.FFmpegPath,
		c.TempDir,
		c.SegmentMinutes,
		c.ArchiveMethod,
		c.LogHistory,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
