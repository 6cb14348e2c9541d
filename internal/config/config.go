// Package config holds the tuner settings, read from an optional YAML file
// and overridden by command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/0xlemi/guitartune/internal/pitch"
	"github.com/0xlemi/guitartune/internal/tuning"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete tuner configuration.
type Config struct {
	// Audio settings
	SampleRate    int     `yaml:"sample_rate"`
	BufferSize    int     `yaml:"buffer_size"`
	Channels      int     `yaml:"channels"`
	Amplification float64 `yaml:"amplification"`

	// Pitch pipeline
	Estimator            string  `yaml:"estimator"`
	HighPassAlpha        float64 `yaml:"high_pass_alpha"`
	GateRatio            float64 `yaml:"gate_ratio"`
	CorrelationThreshold float64 `yaml:"correlation_threshold"`

	// Session
	HistorySize    int           `yaml:"history_size"`
	GraphInterval  time.Duration `yaml:"graph_interval"`
	MaxGraphPoints int           `yaml:"max_graph_points"`
	FreshFor       time.Duration `yaml:"fresh_for"`
	DefaultNote    string        `yaml:"default_note"`
	AutoMode       bool          `yaml:"auto_mode"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
	StatusOut string `yaml:"status_out"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SampleRate:           44100,
		BufferSize:           2048,
		Channels:             1,
		Amplification:        1.0,
		Estimator:            pitch.EstimatorAutocorr,
		HighPassAlpha:        pitch.DefaultHighPassAlpha,
		GateRatio:            pitch.DefaultGateRatio,
		CorrelationThreshold: pitch.DefaultCorrelationThreshold,
		HistorySize:          5,
		GraphInterval:        200 * time.Millisecond,
		MaxGraphPoints:       20,
		FreshFor:             500 * time.Millisecond,
		DefaultNote:          tuning.DefaultNote,
		LogLevel:             "info",
	}
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// RegisterFlags adds one flag per setting to fs, bound to c.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.SampleRate, "sample-rate", c.SampleRate, "capture sample rate in Hz")
	fs.IntVar(&c.BufferSize, "buffer-size", c.BufferSize, "analysis window in samples")
	fs.IntVar(&c.Channels, "channels", c.Channels, "input channels, averaged to mono")
	fs.Float64Var(&c.Amplification, "amplification", c.Amplification, "input gain factor")
	fs.StringVar(&c.Estimator, "estimator", c.Estimator, "pitch estimator (autocorr|fft)")
	fs.Float64Var(&c.HighPassAlpha, "high-pass-alpha", c.HighPassAlpha, "high-pass filter coefficient")
	fs.Float64Var(&c.GateRatio, "gate-ratio", c.GateRatio, "noise gate threshold as a fraction of RMS")
	fs.Float64Var(&c.CorrelationThreshold, "correlation-threshold", c.CorrelationThreshold, "minimum normalized autocorrelation")
	fs.IntVar(&c.HistorySize, "history-size", c.HistorySize, "recent buffers retained")
	fs.DurationVar(&c.GraphInterval, "graph-interval", c.GraphInterval, "graph sampling cadence")
	fs.IntVar(&c.MaxGraphPoints, "max-graph-points", c.MaxGraphPoints, "graph length")
	fs.DurationVar(&c.FreshFor, "fresh-for", c.FreshFor, "how long a stable reading stays on the graph")
	fs.StringVar(&c.DefaultNote, "note", c.DefaultNote, "initial and fallback target note")
	fs.BoolVar(&c.AutoMode, "auto", c.AutoMode, "select the target from the detected string")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug|info|warn|error)")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "write logs to this file")
	fs.StringVar(&c.StatusOut, "status-out", c.StatusOut, "write status lines to this file ('-' for stdout)")
}

// Resolve builds the effective configuration: defaults, then the YAML file
// at path (if any), then every flag explicitly set on fs. flags must be the
// Config that RegisterFlags bound to fs.
func Resolve(flags *Config, fs *pflag.FlagSet, path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *pflag.Flag) {
		cfg.copyFlag(flags, f.Name)
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) copyFlag(from *Config, name string) {
	switch name {
	case "sample-rate":
		c.SampleRate = from.SampleRate
	case "buffer-size":
		c.BufferSize = from.BufferSize
	case "channels":
		c.Channels = from.Channels
	case "amplification":
		c.Amplification = from.Amplification
	case "estimator":
		c.Estimator = from.Estimator
	case "high-pass-alpha":
		c.HighPassAlpha = from.HighPassAlpha
	case "gate-ratio":
		c.GateRatio = from.GateRatio
	case "correlation-threshold":
		c.CorrelationThreshold = from.CorrelationThreshold
	case "history-size":
		c.HistorySize = from.HistorySize
	case "graph-interval":
		c.GraphInterval = from.GraphInterval
	case "max-graph-points":
		c.MaxGraphPoints = from.MaxGraphPoints
	case "fresh-for":
		c.FreshFor = from.FreshFor
	case "note":
		c.DefaultNote = from.DefaultNote
	case "auto":
		c.AutoMode = from.AutoMode
	case "log-level":
		c.LogLevel = from.LogLevel
	case "log-file":
		c.LogFile = from.LogFile
	case "status-out":
		c.StatusOut = from.StatusOut
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample_rate must be positive", ErrInvalid)
	case c.BufferSize < pitch.MinBufferLength:
		return fmt.Errorf("%w: buffer_size must be at least %d", ErrInvalid, pitch.MinBufferLength)
	case c.Channels < 1:
		return fmt.Errorf("%w: channels must be at least 1", ErrInvalid)
	case c.Amplification <= 0:
		return fmt.Errorf("%w: amplification must be positive", ErrInvalid)
	case c.HighPassAlpha <= 0 || c.HighPassAlpha > 1:
		return fmt.Errorf("%w: high_pass_alpha must be in (0, 1]", ErrInvalid)
	case c.GateRatio < 0:
		return fmt.Errorf("%w: gate_ratio must not be negative", ErrInvalid)
	case c.CorrelationThreshold < 0 || c.CorrelationThreshold >= 1:
		return fmt.Errorf("%w: correlation_threshold must be in [0, 1)", ErrInvalid)
	case c.HistorySize < 1:
		return fmt.Errorf("%w: history_size must be at least 1", ErrInvalid)
	case c.GraphInterval <= 0:
		return fmt.Errorf("%w: graph_interval must be positive", ErrInvalid)
	case c.MaxGraphPoints < 1:
		return fmt.Errorf("%w: max_graph_points must be at least 1", ErrInvalid)
	case c.FreshFor <= 0:
		return fmt.Errorf("%w: fresh_for must be positive", ErrInvalid)
	}

	if _, ok := pitch.LookupNote(c.DefaultNote); !ok {
		return fmt.Errorf("%w: unknown note %q", ErrInvalid, c.DefaultNote)
	}
	if _, err := pitch.NewEstimator(c.Estimator); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// SessionOptions converts the configuration into tuning session options.
func (c *Config) SessionOptions() (tuning.Options, error) {
	estimator, err := pitch.NewEstimator(c.Estimator)
	if err != nil {
		return tuning.Options{}, err
	}
	if ac, ok := estimator.(*pitch.AutocorrEstimator); ok {
		ac.Threshold = c.CorrelationThreshold
	}

	opts := tuning.DefaultOptions()
	opts.Estimator = estimator
	opts.Conditioner = &pitch.Conditioner{
		Alpha:     c.HighPassAlpha,
		GateRatio: c.GateRatio,
	}
	opts.GraphInterval = c.GraphInterval
	opts.MaxGraphPoints = c.MaxGraphPoints
	opts.HistorySize = c.HistorySize
	opts.FreshFor = c.FreshFor
	opts.DefaultNote = c.DefaultNote
	return opts, nil
}
