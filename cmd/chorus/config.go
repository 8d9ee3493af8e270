package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"chorus/stability"
	"chorus/synth"
)

// Config is the top-level chorus configuration, loaded from chorus.yaml.
// Every field has a working default; a missing config file is not an error.
type Config struct {
	// ControlURL is the browser debugging endpoint.
	ControlURL string `yaml:"control_url"`

	// OutDir is the root directory for run folders.
	OutDir string `yaml:"out_dir"`

	// EnginesFile optionally points at a YAML engine profile override file.
	EnginesFile string `yaml:"engines_file"`

	Poll      PollConfig   `yaml:"poll"`
	Synthesis SynthConfig  `yaml:"synthesis"`
	Events    EventsConfig `yaml:"events"`
}

// PollConfig tunes the stability extractor.
type PollConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Threshold int           `yaml:"threshold"`
	Deadline  time.Duration `yaml:"deadline"`
}

// SynthConfig configures the external synthesis process.
type SynthConfig struct {
	Disabled   bool          `yaml:"disabled"`
	Command    string        `yaml:"command"`
	Args       []string      `yaml:"args"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxOutput  int64         `yaml:"max_output"`
	MinAnswers int           `yaml:"min_answers"`
}

// EventsConfig selects progress event sinks.
type EventsConfig struct {
	Stdout     bool   `yaml:"stdout"`
	WebhookURL string `yaml:"webhook_url"`
}

// loadConfig reads a YAML configuration file. An empty path returns the
// defaults.
func loadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ControlURL == "" {
		c.ControlURL = "http://127.0.0.1:9222"
	}
	if c.OutDir == "" {
		c.OutDir = "./runs"
	}
}

func (c *Config) pollPolicy() stability.Policy {
	return stability.Policy{
		Interval:  c.Poll.Interval,
		Threshold: c.Poll.Threshold,
		Deadline:  c.Poll.Deadline,
	}
}

func (c *Config) synthConfig() synth.Config {
	return synth.Config{
		Command:   c.Synthesis.Command,
		Args:      c.Synthesis.Args,
		Timeout:   c.Synthesis.Timeout,
		MaxOutput: c.Synthesis.MaxOutput,
	}
}
