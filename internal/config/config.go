// Package config loads the YAML settings shared by the slide tools.
//
// A missing file is not an error: LoadConfig returns DefaultConfig. Two
// environment variables override the file:
//
//	SLIDE_CONFIG      path of the config file (see Path)
//	SLIDE_LOG_LEVEL   debug, info, warn or error
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/slide-tools-mcp/internal/pyramid"
	"github.com/ironsheep/slide-tools-mcp/internal/slide"
	"github.com/ironsheep/slide-tools-mcp/internal/tilecodec"
	"github.com/ironsheep/slide-tools-mcp/internal/tilestore"
)

const (
	// EnvConfigPath names the variable holding the config file path.
	EnvConfigPath = "SLIDE_CONFIG"
	// EnvLogLevel names the variable overriding log.level.
	EnvLogLevel = "SLIDE_LOG_LEVEL"

	// DefaultFileName is used when SLIDE_CONFIG is unset.
	DefaultFileName = "slide-tools.yaml"
)

// Config holds every tunable of the store, the pyramid builder and the tools.
type Config struct {
	Store struct {
		// TileSize is the edge length of new tiles; a multiple of 16.
		TileSize int `yaml:"tileSize"`

		// ScaleFactor is the downsample ratio between pyramid levels.
		ScaleFactor int `yaml:"scaleFactor"`

		// MaxLevels caps the pyramid depth. 0 builds until a level fits one tile.
		MaxLevels int `yaml:"maxLevels"`

		// EdgePolicy is "clip" or "pad".
		EdgePolicy string `yaml:"edgePolicy"`

		// Compression is "none", "lz4", "zstd" or "auto".
		Compression string `yaml:"compression"`

		SyncEveryPut    bool `yaml:"syncEveryPut"`
		VerifyChecksums bool `yaml:"verifyChecksums"`
	} `yaml:"store"`

	Pyramid struct {
		// Workers is the number of tiles downsampled in parallel.
		Workers int `yaml:"workers"`
	} `yaml:"pyramid"`

	Server struct {
		// MaxOpenSlides bounds the reader sessions the MCP server keeps open.
		MaxOpenSlides int `yaml:"maxOpenSlides"`

		// MaxRegionPixels bounds a single region request.
		MaxRegionPixels int `yaml:"maxRegionPixels"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Store.TileSize = 256
	cfg.Store.ScaleFactor = pyramid.DefaultFactor
	cfg.Store.EdgePolicy = tilestore.EdgeClip.String()
	cfg.Store.Compression = tilecodec.Zstd.String()
	cfg.Store.VerifyChecksums = true

	cfg.Pyramid.Workers = runtime.NumCPU()

	cfg.Server.MaxOpenSlides = 8
	cfg.Server.MaxRegionPixels = 4096 * 4096

	cfg.Log.Level = "info"
	return cfg
}

// Path returns the config file to load: $SLIDE_CONFIG if set, otherwise
// DefaultFileName in the user config directory.
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(dir, "slide-tools", DefaultFileName)
}

// LoadConfig loads configuration from a YAML file and applies environment
// overrides. If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("error reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", configPath, err)
		}
	}

	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Log.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML, creating the directory if needed.
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	g := tilestore.Geometry{Width: 1, Height: 1, TileSize: c.Store.TileSize}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("store.tileSize: %w", err)
	}
	if c.Store.ScaleFactor < 2 {
		return fmt.Errorf("store.scaleFactor must be at least 2, got %d", c.Store.ScaleFactor)
	}
	if c.Store.MaxLevels < 0 {
		return fmt.Errorf("store.maxLevels must not be negative, got %d", c.Store.MaxLevels)
	}
	if _, err := tilestore.ParseEdgePolicy(c.Store.EdgePolicy); err != nil {
		return fmt.Errorf("store.edgePolicy: %w", err)
	}
	if _, err := tilecodec.ParseTag(c.Store.Compression); err != nil {
		return fmt.Errorf("store.compression: %w", err)
	}
	if c.Server.MaxOpenSlides < 1 {
		return fmt.Errorf("server.maxOpenSlides must be positive, got %d", c.Server.MaxOpenSlides)
	}
	if c.Server.MaxRegionPixels < 1 {
		return fmt.Errorf("server.maxRegionPixels must be positive, got %d", c.Server.MaxRegionPixels)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// SlideOptions converts the store and pyramid sections to session options.
// Call Validate first; names that fail to parse fall back to defaults.
func (c *Config) SlideOptions(logger slide.Logger) []slide.Option {
	edge, _ := tilestore.ParseEdgePolicy(c.Store.EdgePolicy)
	codec, _ := tilecodec.ParseTag(c.Store.Compression)
	return []slide.Option{
		slide.WithLogger(logger),
		slide.WithCompression(codec),
		slide.WithEdgePolicy(edge),
		slide.WithSyncEveryPut(c.Store.SyncEveryPut),
		slide.WithVerifyChecksums(c.Store.VerifyChecksums),
		slide.WithScaleFactor(c.Store.ScaleFactor),
		slide.WithMaxLevels(c.Store.MaxLevels),
		slide.WithWorkers(c.Pyramid.Workers),
	}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// NewLogger returns a text logger on stderr at the configured level.
// stdout is reserved for protocol traffic.
func (c *Config) NewLogger() *slog.Logger {
	level, _ := ParseLevel(c.Log.Level)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
