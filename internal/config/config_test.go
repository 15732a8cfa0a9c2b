package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/audiosplit/internal/archive"
	"github.com/maauso/audiosplit/internal/audio"
)

func loadMap(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return LoadFrom(context.Background(), envconfig.MapLookuper(env))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadMap(t, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "/tmp/audiosplit", cfg.TempDir)
	assert.Equal(t, 10, cfg.SegmentMinutes)
	assert.Equal(t, 5, cfg.LogHistory)
	assert.Equal(t, int64(1024), cfg.MaxUploadMB)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, "store", cfg.ArchiveMethod)
	assert.True(t, cfg.WatchOutput)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.LogFile)
	assert.Equal(t, 100, cfg.LogMaxSizeMB)
	assert.Equal(t, 3, cfg.LogMaxBackups)
	assert.Equal(t, 28, cfg.LogMaxAgeDays)

	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, audio.DefaultDuration, cfg.SegmentDuration())
	assert.Equal(t, archive.MethodStore, cfg.Archive())
	assert.Equal(t, int64(1024<<20), cfg.MaxUploadBytes())
}

func TestLoad_CustomValues(t *testing.T) {
	cfg, err := loadMap(t, map[string]string{
		"HOST":            "0.0.0.0",
		"PORT":            "3000",
		"FFMPEG_PATH":     "/opt/ffmpeg/bin/ffmpeg",
		"TEMP_DIR":        "/custom/temp",
		"SEGMENT_MINUTES": "3",
		"LOG_HISTORY":     "20",
		"MAX_UPLOAD_MB":   "64",
		"ALLOWED_ORIGINS": "http://a.example,http://b.example",
		"ARCHIVE_METHOD":  "deflate",
		"WATCH_OUTPUT":    "false",
		"LOG_FORMAT":      "json",
		"LOG_LEVEL":       "debug",
		"LOG_FILE":        "/var/log/audiosplit.log",
	})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3000", cfg.Addr())
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.Equal(t, audio.Duration(180), cfg.SegmentDuration())
	assert.Equal(t, 20, cfg.LogHistory)
	assert.Equal(t, int64(64<<20), cfg.MaxUploadBytes())
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, archive.MethodDeflate, cfg.Archive())
	assert.False(t, cfg.WatchOutput)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/log/audiosplit.log", cfg.LogFile)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SEGMENT_MINUTES", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 7, cfg.SegmentMinutes)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{"port not a number", map[string]string{"PORT": "not-a-number"}, nil},
		{"port out of range", map[string]string{"PORT": "70000"}, ErrInvalidPort},
		{"zero segment minutes", map[string]string{"SEGMENT_MINUTES": "0"}, ErrInvalidSegmentMinutes},
		{"zero log history", map[string]string{"LOG_HISTORY": "0"}, ErrInvalidLogHistory},
		{"unknown archive method", map[string]string{"ARCHIVE_METHOD": "bzip2"}, ErrInvalidArchiveMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadMap(t, tt.env)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Host:           "127.0.0.1",
		Port:           8080,
		FFmpegPath:     "ffmpeg",
		TempDir:        "/tmp/test",
		SegmentMinutes: 10,
		ArchiveMethod:  "store",
		LogFormat:      "json",
		LogLevel:       "info",
	}

	str := cfg.String()
	assert.Contains(t, str, "127.0.0.1:8080")
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "SegmentMinutes: 10")
}

func TestConfig_NewLoggerTo_JSON(t *testing.T) {
	cfg := &Config{LogFormat: "json", LogLevel: "info"}

	var buf bytes.Buffer
	logger := cfg.NewLoggerTo(&buf)
	logger.Info("test message")
	logger.Debug("hidden")

	assert.Contains(t, buf.String(), `"msg":"test message"`)
	assert.NotContains(t, buf.String(), "hidden")
}

func TestConfig_NewLoggerTo_Text(t *testing.T) {
	cfg := &Config{LogFormat: "text", LogLevel: "debug"}

	var buf bytes.Buffer
	logger := cfg.NewLoggerTo(&buf)
	logger.Debug("visible", slog.String("run_id", "r1"))

	assert.Contains(t, buf.String(), "msg=visible")
	assert.Contains(t, buf.String(), "run_id=r1")
}

func TestConfig_LogOutput(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, os.Stdout, cfg.LogOutput())

	path := filepath.Join(t.TempDir(), "audiosplit.log")
	cfg = &Config{LogFile: path, LogFormat: "text", LogMaxSizeMB: 1, LogMaxBackups: 1, LogMaxAgeDays: 1}

	logger := cfg.NewLogger()
	logger.Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{Port: 8080, SegmentMinutes: 1, LogHistory: 1, ArchiveMethod: "store"}
	assert.NoError(t, valid.Validate())

	c := valid
	c.ArchiveMethod = ""
	assert.ErrorIs(t, c.Validate(), ErrInvalidArchiveMethod)

	c = valid
	c.Port = 0
	assert.ErrorIs(t, c.Validate(), ErrInvalidPort)
}
