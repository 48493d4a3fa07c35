// Package config loads the pageselect YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sanonone/pageselect/pkg/core"
	"github.com/sanonone/pageselect/pkg/engine"
	"github.com/sanonone/pageselect/pkg/persistence"
	"github.com/sanonone/pageselect/pkg/selection"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root of the YAML file.
type Config struct {
	DataDir     string `yaml:"data_dir"`
	AofFilename string `yaml:"aof_filename"`

	AutoSaveInterval     time.Duration `yaml:"auto_save_interval"`
	AutoSaveThreshold    int64         `yaml:"auto_save_threshold"`
	AofRewritePercentage int           `yaml:"aof_rewrite_percentage"`
	MaintenanceInterval  time.Duration `yaml:"maintenance_interval"`
	FlushInterval        time.Duration `yaml:"flush_interval"`
	SyncInterval         time.Duration `yaml:"sync_interval"`

	Selection SelectionConfig `yaml:"selection"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// HTTPConfig configures the optional API server.
type HTTPConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
}

// SelectionConfig bounds tree expansion.
type SelectionConfig struct {
	RecursionDepth int `yaml:"recursion_depth"`
	DepthCeiling   int `yaml:"depth_ceiling"`
}

// StoreConfig configures the in-memory tree.
type StoreConfig struct {
	Order         string `yaml:"order"` // "uid" or "newest"
	IncludeHidden bool   `yaml:"include_hidden"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns a working configuration storing data in ./data.
func DefaultConfig() Config {
	lazy := persistence.DefaultLazyConfig()
	return Config{
		DataDir:              "./data",
		AofFilename:          "pages.aof",
		AutoSaveInterval:     60 * time.Second,
		AutoSaveThreshold:    1000,
		AofRewritePercentage: 100,
		MaintenanceInterval:  1 * time.Second,
		FlushInterval:        lazy.FlushInterval,
		SyncInterval:         lazy.SyncInterval,
		Selection: SelectionConfig{
			RecursionDepth: selection.DefaultRecursionDepth,
			DepthCeiling:   selection.DefaultDepthCeiling,
		},
		Store: StoreConfig{Order: "uid"},
		Log:   LogConfig{Level: "info", Format: "text"},
		HTTP:  HTTPConfig{Addr: ":9091"},
	}
}

// LoadConfig reads the YAML configuration file using strict parsing.
// An empty path returns DefaultConfig. Missing keys keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	return Decode(file)
}

// Decode reads a configuration from r on top of DefaultConfig and validates it.
func Decode(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("YAML syntax error in config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalidConfig)
	}
	if c.AofRewritePercentage < 0 {
		return fmt.Errorf("%w: aof_rewrite_percentage must not be negative", ErrInvalidConfig)
	}
	if c.Selection.DepthCeiling <= 0 {
		return fmt.Errorf("%w: selection.depth_ceiling must be positive", ErrInvalidConfig)
	}
	if c.Selection.RecursionDepth < 0 || c.Selection.RecursionDepth > c.Selection.DepthCeiling {
		return fmt.Errorf("%w: selection.recursion_depth must be between 0 and %d", ErrInvalidConfig, c.Selection.DepthCeiling)
	}
	if _, err := core.ParseOrder(c.Store.Order); err != nil {
		return fmt.Errorf("%w: store.order: %v", ErrInvalidConfig, err)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json", ErrInvalidConfig)
	}
	return nil
}

// EngineOptions maps the configuration to engine options.
func (c Config) EngineOptions(logger *slog.Logger) (engine.Options, error) {
	order, err := core.ParseOrder(c.Store.Order)
	if err != nil {
		return engine.Options{}, err
	}
	opts := engine.DefaultOptions(c.DataDir)
	opts.AofFilename = c.AofFilename
	opts.AutoSaveInterval = c.AutoSaveInterval
	opts.AutoSaveThreshold = c.AutoSaveThreshold
	opts.AofRewritePercentage = c.AofRewritePercentage
	opts.MaintenanceInterval = c.MaintenanceInterval
	opts.AOF.FlushInterval = c.FlushInterval
	opts.AOF.SyncInterval = c.SyncInterval
	opts.Store = core.Options{Order: order, IncludeHidden: c.Store.IncludeHidden}
	opts.Selection = selection.Options{
		RecursionDepth: c.Selection.RecursionDepth,
		DepthCeiling:   c.Selection.DepthCeiling,
		Logger:         logger,
	}
	opts.Logger = logger
	return opts, nil
}

// NewLogger builds the slog logger described by the log section.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
	}
}
