// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/genesoup/genome"
	"github.com/pthm-cable/genesoup/neural"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Network     NetworkConfig     `yaml:"network"`
	Population  PopulationConfig  `yaml:"population"`
	Environment EnvironmentConfig `yaml:"environment"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Observer    ObserverConfig    `yaml:"observer"`
	Trace       TraceConfig       `yaml:"trace"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// NetworkConfig fixes the size of every organism's network.
type NetworkConfig struct {
	Genes       int    `yaml:"genes"`
	Neurons     int    `yaml:"neurons"`
	Inputs      int    `yaml:"inputs"`
	Outputs     int    `yaml:"outputs"`
	WeightRange string `yaml:"weight_range"` // signed [-1,1] or unsigned [0,1]
	UpdateMode  string `yaml:"update_mode"`  // sequential or buffered
}

// PopulationConfig holds population stepping parameters.
type PopulationConfig struct {
	Size              int `yaml:"size"`
	Workers           int `yaml:"workers"`            // 0 = GOMAXPROCS
	ParallelThreshold int `yaml:"parallel_threshold"` // Below this, step single-threaded
	PublishChannel    int `yaml:"publish_channel"`    // Output index published per organism
}

// EnvironmentConfig drives organism inputs with a sine wave.
type EnvironmentConfig struct {
	DT              float64 `yaml:"dt"`               // Simulated seconds per tick
	Frequency       float64 `yaml:"frequency"`        // Base frequency in Hz
	FrequencyJitter float64 `yaml:"frequency_jitter"` // Per-organism +/- fraction of frequency
	Amplitude       float64 `yaml:"amplitude"`
	PhaseJitter     float64 `yaml:"phase_jitter"`   // Max random phase offset per organism (radians)
	ChannelOffset   float64 `yaml:"channel_offset"` // Phase offset between input channels (radians)
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         int  `yaml:"stats_window"` // Ticks per stats window
	PerfCollectorWindow int  `yaml:"perf_collector_window"`
	SQLite              bool `yaml:"sqlite"` // Also record stats in telemetry.db
}

// ObserverConfig holds the observer feed settings.
type ObserverConfig struct {
	Addr          string `yaml:"addr"` // Empty disables the observer
	IntervalMS    int    `yaml:"interval_ms"`
	AllowNonLocal bool   `yaml:"allow_non_local"`
}

// Interval returns the default frame interval.
func (o ObserverConfig) Interval() time.Duration {
	return time.Duration(o.IntervalMS) * time.Millisecond
}

// TraceConfig holds output trace settings.
type TraceConfig struct {
	Every int `yaml:"every"` // Record every N ticks; 0 disables
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Layout genome.Layout
	Mode   neural.Mode
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return Parse(data)
}

// Parse overlays data onto the embedded defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Unmarshal into same struct - only overwrites fields present in data
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	weights, err := genome.ParseWeightRange(c.Network.WeightRange)
	if err != nil {
		return fmt.Errorf("network.weight_range: %w", err)
	}
	mode, err := neural.ParseMode(c.Network.UpdateMode)
	if err != nil {
		return fmt.Errorf("network.update_mode: %w", err)
	}

	c.Derived.Layout = genome.Layout{
		Genes:   c.Network.Genes,
		Neurons: c.Network.Neurons,
		Inputs:  c.Network.Inputs,
		Outputs: c.Network.Outputs,
		Weights: weights,
	}
	c.Derived.Mode = mode
	return nil
}

// Validate checks the preconditions the simulation relies on.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Derived.Layout.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("network: %w", err))
	}
	if c.Population.Size < 1 {
		errs = append(errs, fmt.Errorf("population.size must be positive, got %d", c.Population.Size))
	}
	if ch := c.Population.PublishChannel; ch < 0 || ch >= c.Network.Outputs {
		errs = append(errs, fmt.Errorf("population.publish_channel %d outside [0, %d)", ch, c.Network.Outputs))
	}
	env := c.Environment
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"dt", env.DT},
		{"frequency", env.Frequency},
		{"frequency_jitter", env.FrequencyJitter},
		{"amplitude", env.Amplitude},
		{"phase_jitter", env.PhaseJitter},
		{"channel_offset", env.ChannelOffset},
	} {
		// sensors hold float32, so anything past its range overflows to Inf
		if math.IsNaN(f.v) || math.Abs(f.v) > math.MaxFloat32 {
			errs = append(errs, fmt.Errorf("environment.%s must be a finite float32, got %v", f.name, f.v))
		}
	}
	if env.DT <= 0 {
		errs = append(errs, fmt.Errorf("environment.dt must be positive, got %v", env.DT))
	}
	if c.Telemetry.StatsWindow < 1 {
		errs = append(errs, fmt.Errorf("telemetry.stats_window must be positive, got %d", c.Telemetry.StatsWindow))
	}
	if c.Trace.Every < 0 {
		errs = append(errs, fmt.Errorf("trace.every must not be negative, got %d", c.Trace.Every))
	}
	if c.Observer.Addr != "" && c.Observer.IntervalMS < 1 {
		errs = append(errs, fmt.Errorf("observer.interval_ms must be positive, got %d", c.Observer.IntervalMS))
	}
	return errors.Join(errs...)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
