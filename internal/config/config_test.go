package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 256, cfg.Store.TileSize)
	assert.Equal(t, 2, cfg.Store.ScaleFactor)
	assert.Equal(t, "clip", cfg.Store.EdgePolicy)
	assert.Equal(t, "zstd", cfg.Store.Compression)
	assert.True(t, cfg.Store.VerifyChecksums)
	assert.Positive(t, cfg.Pyramid.Workers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingFileGivesDefaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_PartialFile(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	path := filepath.Join(t.TempDir(), "slide.yaml")
	yaml := "store:\n  tileSize: 512\n  edgePolicy: pad\n  compression: lz4\npyramid:\n  workers: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Store.TileSize)
	assert.Equal(t, "pad", cfg.Store.EdgePolicy)
	assert.Equal(t, "lz4", cfg.Store.Compression)
	assert.Equal(t, 3, cfg.Pyramid.Workers)
	// untouched keys keep their defaults
	assert.Equal(t, 2, cfg.Store.ScaleFactor)
	assert.True(t, cfg.Store.VerifyChecksums)
}

func TestLoadConfig_EnvLogLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	dir := t.TempDir()

	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "store: [unterminated"},
		{"tile size", "store:\n  tileSize: 100\n"},
		{"scale factor", "store:\n  scaleFactor: 1\n"},
		{"edge policy", "store:\n  edgePolicy: mirror\n"},
		{"compression", "store:\n  compression: brotli\n"},
		{"log level", "log:\n  level: loud\n"},
		{"open slides", "server:\n  maxOpenSlides: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	path := filepath.Join(t.TempDir(), "nested", "dir", "slide.yaml")

	cfg := DefaultConfig()
	cfg.Store.MaxLevels = 4
	cfg.Store.Compression = "auto"
	cfg.Log.Level = "warn"
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/slide.yaml")
	assert.Equal(t, "/etc/slide.yaml", Path())

	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, DefaultFileName, filepath.Base(Path()))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestSlideOptions(t *testing.T) {
	cfg := DefaultConfig()
	opts := cfg.SlideOptions(slog.New(slog.DiscardHandler))
	assert.Len(t, opts, 8)
	for _, opt := range opts {
		assert.NotNil(t, opt)
	}
}
