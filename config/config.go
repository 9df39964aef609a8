package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/JeanRibes/keycapture/shared"

	"gopkg.in/yaml.v3"
)

type Synth struct {
	SampleRate int     `yaml:"sample_rate"`
	Gain       float64 `yaml:"gain"`
}

type Timing struct {
	Resolution    int     `yaml:"resolution"`
	BPM           float64 `yaml:"bpm"`
	ClockPeriodMs int     `yaml:"clock_period_ms"`
	Velocity      uint8   `yaml:"velocity"`
	Channel       uint8   `yaml:"channel"`
}

type Serial struct {
	Port   string `yaml:"port"`
	Baud   int    `yaml:"baud"`
	Keymap string `yaml:"keymap"`
}

type Config struct {
	Input            string   `yaml:"input"`
	Output           string   `yaml:"output"`
	Synth            Synth    `yaml:"synth"`
	Timing           Timing   `yaml:"timing"`
	OpenTimeoutMs    int      `yaml:"open_timeout_ms"`
	RescanIntervalMs int      `yaml:"rescan_interval_ms"`
	ExportDir        string   `yaml:"export_dir"`
	LogLevel         string   `yaml:"log_level"`
	RecentTakes      []string `yaml:"recent_takes,omitempty"`
	Serial           Serial   `yaml:"serial"`
}

const maxRecent = 10

func Default() *Config {
	return &Config{
		Synth: Synth{SampleRate: 48000, Gain: 0.3},
		Timing: Timing{
			Resolution:    shared.DefaultResolution,
			BPM:           shared.DefaultBPM,
			ClockPeriodMs: 63,
			Velocity:      90,
		},
		OpenTimeoutMs:    3000,
		RescanIntervalMs: 2000,
		ExportDir:        ".",
		LogLevel:         "info",
		Serial:           Serial{Baud: 115200},
	}
}

// Dir is where the configuration lives unless a path is given.
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "keycapture"), nil
}

func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) Validate() error {
	var errs error
	if c.Timing.Resolution <= 0 {
		errs = errors.Join(errs, fmt.Errorf("timing.resolution must be positive, got %d", c.Timing.Resolution))
	}
	if c.Timing.BPM <= 0 {
		errs = errors.Join(errs, fmt.Errorf("timing.bpm must be positive, got %v", c.Timing.BPM))
	}
	// velocity 0 would turn every recorded On into a release
	if c.Timing.Velocity < 1 || c.Timing.Velocity > 127 {
		errs = errors.Join(errs, fmt.Errorf("timing.velocity must be in 1..127, got %d", c.Timing.Velocity))
	}
	if c.Timing.Channel > 15 {
		errs = errors.Join(errs, fmt.Errorf("timing.channel must be at most 15, got %d", c.Timing.Channel))
	}
	if c.Synth.SampleRate <= 0 {
		errs = errors.Join(errs, fmt.Errorf("synth.sample_rate must be positive, got %d", c.Synth.SampleRate))
	}
	return errs
}

func (c *Config) ClockPeriod() time.Duration {
	return time.Duration(c.Timing.ClockPeriodMs) * time.Millisecond
}

func (c *Config) OpenTimeout() time.Duration {
	return time.Duration(c.OpenTimeoutMs) * time.Millisecond
}

func (c *Config) RescanInterval() time.Duration {
	return time.Duration(c.RescanIntervalMs) * time.Millisecond
}

// AddRecent puts path first in the recent takes, without duplicates.
func (c *Config) AddRecent(path string) {
	recent := []string{path}
	for _, p := range c.RecentTakes {
		if p != path && len(recent) < maxRecent {
			recent = append(recent, p)
		}
	}
	c.RecentTakes = recent
}
