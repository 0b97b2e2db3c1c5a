// Package config loads readaloud's settings from viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/bridge"
	"github.com/dgnsrekt/readaloud/internal/highlight"
	"github.com/dgnsrekt/readaloud/internal/protocol"
	"github.com/dgnsrekt/readaloud/internal/reader"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Engines a worker can run.
const (
	EnginePiper = "piper"
	EngineMock  = "mock"
)

// DefaultWorkerBinary is the worker started when no command is configured.
const DefaultWorkerBinary = "readaloud-worker"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the whole configuration file.
type Config struct {
	Voice     string          `mapstructure:"voice"`
	Speed     float64         `mapstructure:"speed"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Model     ModelConfig     `mapstructure:"model"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Prefetch  PrefetchConfig  `mapstructure:"prefetch"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Segment   SegmentConfig   `mapstructure:"segment"`
	Highlight HighlightConfig `mapstructure:"highlight"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Listen    string          `mapstructure:"listen"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// WorkerConfig selects the speech worker.
type WorkerConfig struct {
	// Command overrides the worker command line. Environment variables
	// are expanded.
	Command     string `mapstructure:"command"`
	Engine      string `mapstructure:"engine"`
	ModelDir    string `mapstructure:"model_dir"`
	PiperBinary string `mapstructure:"piper_binary"`
}

// ModelConfig is sent to the worker with init.
type ModelConfig struct {
	Name    string            `mapstructure:"name"`
	Dtype   string            `mapstructure:"dtype"`
	Device  string            `mapstructure:"device"`
	Options map[string]string `mapstructure:"options"`
}

// BridgeConfig tunes worker requests.
type BridgeConfig struct {
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxChars          int           `mapstructure:"max_chars"`
}

// PrefetchConfig tunes look-ahead synthesis.
type PrefetchConfig struct {
	Window      int `mapstructure:"window"`
	Concurrency int `mapstructure:"concurrency"`
}

// CacheConfig configures the persistent clip cache.
type CacheConfig struct {
	Disk DiskCacheConfig `mapstructure:"disk"`
}

// DiskCacheConfig configures cache.disk.
type DiskCacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Dir     string        `mapstructure:"dir"`
	MaxSize int64         `mapstructure:"max_size"` // MB
	Level   int           `mapstructure:"level"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// AudioConfig configures the output device.
type AudioConfig struct {
	SampleRate int           `mapstructure:"sample_rate"`
	Buffer     time.Duration `mapstructure:"buffer"`
}

// SegmentConfig tunes block detection.
type SegmentConfig struct {
	MinChars int `mapstructure:"min_chars"`
	MaxChars int `mapstructure:"max_chars"`
}

// HighlightConfig names the marker classes.
type HighlightConfig struct {
	PendingClass string `mapstructure:"pending_class"`
	ActiveClass  string `mapstructure:"active_class"`
}

// NATSConfig configures the NATS command transport. An empty URL disables
// it.
type NATSConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
	Token  string `mapstructure:"token"`
}

// MetricsConfig configures the Prometheus endpoint. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("voice", "")
	v.SetDefault("speed", 1.0)

	v.SetDefault("worker.command", "")
	v.SetDefault("worker.engine", EnginePiper)
	v.SetDefault("worker.model_dir", "~/.local/share/piper")
	v.SetDefault("worker.piper_binary", "")

	v.SetDefault("model.name", protocol.DefaultModel)
	v.SetDefault("model.dtype", protocol.DefaultDtype)
	v.SetDefault("model.device", protocol.DefaultDevice)

	v.SetDefault("bridge.request_timeout", bridge.DefaultRequestTimeout)
	v.SetDefault("bridge.requests_per_second", 0)
	v.SetDefault("bridge.max_chars", bridge.DefaultMaxChars)

	v.SetDefault("prefetch.window", reader.DefaultPrefetchWindow)
	v.SetDefault("prefetch.concurrency", reader.DefaultConcurrency)

	v.SetDefault("cache.disk.enabled", false)
	v.SetDefault("cache.disk.dir", "")
	v.SetDefault("cache.disk.max_size", 256)
	v.SetDefault("cache.disk.level", 3)
	v.SetDefault("cache.disk.ttl", 30*24*time.Hour)

	def := audio.DefaultPlayerConfig()
	v.SetDefault("audio.sample_rate", def.SampleRate)
	v.SetDefault("audio.buffer", def.BufferSize)

	v.SetDefault("segment.min_chars", 1)
	v.SetDefault("segment.max_chars", 0)

	v.SetDefault("highlight.pending_class", highlight.DefaultPendingClass)
	v.SetDefault("highlight.active_class", highlight.DefaultActiveClass)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.prefix", "readaloud")
	v.SetDefault("listen", "")
	v.SetDefault("metrics.addr", "")
}

// Load decodes and validates v. Paths are expanded.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode configuration: %w", err)
	}

	var err error
	if cfg.Worker.ModelDir, err = homedir.Expand(cfg.Worker.ModelDir); err != nil {
		return cfg, fmt.Errorf("expand worker.model_dir: %w", err)
	}
	if cfg.Worker.PiperBinary, err = homedir.Expand(cfg.Worker.PiperBinary); err != nil {
		return cfg, fmt.Errorf("expand worker.piper_binary: %w", err)
	}
	if cfg.Cache.Disk.Dir, err = homedir.Expand(cfg.Cache.Disk.Dir); err != nil {
		return cfg, fmt.Errorf("expand cache.disk.dir: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Speed < reader.MinSpeed || c.Speed > reader.MaxSpeed {
		return fmt.Errorf("%w: speed must be between %v and %v, got %v", ErrInvalid, reader.MinSpeed, reader.MaxSpeed, c.Speed)
	}
	if c.Worker.Command == "" && !slices.Contains([]string{EnginePiper, EngineMock}, c.Worker.Engine) {
		return fmt.Errorf("%w: worker.engine must be %q or %q, got %q", ErrInvalid, EnginePiper, EngineMock, c.Worker.Engine)
	}
	if c.Bridge.RequestTimeout < time.Second {
		return fmt.Errorf("%w: bridge.request_timeout must be at least 1s, got %v", ErrInvalid, c.Bridge.RequestTimeout)
	}
	if c.Bridge.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: bridge.requests_per_second cannot be negative", ErrInvalid)
	}
	if c.Prefetch.Window < 0 || c.Prefetch.Window > 16 {
		return fmt.Errorf("%w: prefetch.window must be between 0 and 16, got %d", ErrInvalid, c.Prefetch.Window)
	}
	if c.Prefetch.Concurrency < 1 || c.Prefetch.Concurrency > 16 {
		return fmt.Errorf("%w: prefetch.concurrency must be between 1 and 16, got %d", ErrInvalid, c.Prefetch.Concurrency)
	}
	if c.Audio.SampleRate != 44100 && c.Audio.SampleRate != 48000 {
		return fmt.Errorf("%w: audio.sample_rate must be 44100 or 48000, got %d", ErrInvalid, c.Audio.SampleRate)
	}
	if c.Segment.MinChars < 1 {
		return fmt.Errorf("%w: segment.min_chars must be at least 1, got %d", ErrInvalid, c.Segment.MinChars)
	}
	if c.Cache.Disk.Enabled {
		if c.Cache.Disk.MaxSize < 1 || c.Cache.Disk.MaxSize > 10000 {
			return fmt.Errorf("%w: cache.disk.max_size must be between 1 and 10000 MB, got %d", ErrInvalid, c.Cache.Disk.MaxSize)
		}
		if c.Cache.Disk.Level < 1 || c.Cache.Disk.Level > 22 {
			return fmt.Errorf("%w: cache.disk.level must be between 1 and 22, got %d", ErrInvalid, c.Cache.Disk.Level)
		}
	}
	if c.Highlight.PendingClass == "" || c.Highlight.ActiveClass == "" {
		return fmt.Errorf("%w: highlight classes cannot be empty", ErrInvalid)
	}
	if c.Highlight.PendingClass == c.Highlight.ActiveClass {
		return fmt.Errorf("%w: highlight classes must differ", ErrInvalid)
	}
	return nil
}

// Settings returns the initial reading settings.
func (c *Config) Settings() reader.Settings {
	return reader.Settings{Voice: c.Voice, Speed: c.Speed}
}

// InProcess reports whether the worker runs inside this process.
func (c *Config) InProcess() bool {
	return c.Worker.Command == "" && c.Worker.Engine == EngineMock
}

// WorkerCommand is the command line that starts the worker.
func (c *Config) WorkerCommand() string {
	if c.Worker.Command != "" {
		return c.Worker.Command
	}
	args := []string{DefaultWorkerBinary, "--engine", c.Worker.Engine}
	if c.Worker.ModelDir != "" {
		args = append(args, "--model-dir", strconv.Quote(c.Worker.ModelDir))
	}
	if c.Worker.PiperBinary != "" {
		args = append(args, "--piper", strconv.Quote(c.Worker.PiperBinary))
	}
	return strings.Join(args, " ")
}

// BridgeConfig converts to the bridge's configuration.
func (c *Config) BridgeConfig() bridge.Config {
	return bridge.Config{
		Model: protocol.ModelConfig{
			Model:   c.Model.Name,
			Dtype:   c.Model.Dtype,
			Device:  c.Model.Device,
			Options: c.Model.Options,
		},
		RequestTimeout:    c.Bridge.RequestTimeout,
		RequestsPerSecond: c.Bridge.RequestsPerSecond,
		MaxChars:          c.Bridge.MaxChars,
	}
}

// PlayerConfig converts to the audio output configuration.
func (c *Config) PlayerConfig() audio.PlayerConfig {
	return audio.PlayerConfig{SampleRate: c.Audio.SampleRate, BufferSize: c.Audio.Buffer}
}

// CacheDir is the disk cache directory, falling back to base when unset.
func (c *Config) CacheDir(base string) string {
	if c.Cache.Disk.Dir != "" {
		return c.Cache.Disk.Dir
	}
	return filepath.Join(base, "clips")
}
