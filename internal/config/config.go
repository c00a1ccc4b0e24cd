// Package config handles TOML and YAML configuration for kirja.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults matching the original deployment.
const (
	DefaultBucket    = "bucketinventorymanagement"
	DefaultPrefix    = "InventoryDetails"
	DefaultOutputDir = "/tmp"
	DefaultUTCOffset = "+05:30"
	DefaultMirrorDir = "/tmp/kirja-mirror"
)

// Config is the root configuration structure.
type Config struct {
	AWS     AWSConfig     `toml:"aws" yaml:"aws"`
	Publish PublishConfig `toml:"publish" yaml:"publish"`
	Report  ReportConfig  `toml:"report" yaml:"report"`
	Filter  FilterConfig  `toml:"filter" yaml:"filter"`
	OTEL    OTELConfig    `toml:"otel" yaml:"otel"`
	Metrics MetricsPush   `toml:"metrics" yaml:"metrics"`
	History HistoryConfig `toml:"history" yaml:"history"`
	Log     LogConfig     `toml:"log" yaml:"log"`
}

// AWSConfig holds AWS provider settings.
type AWSConfig struct {
	Region   string `toml:"region" yaml:"region"`
	Profile  string `toml:"profile" yaml:"profile"`
	Endpoint string `toml:"endpoint" yaml:"endpoint"`
}

// PublishConfig holds the upload destination.
type PublishConfig struct {
	Bucket    string `toml:"bucket" yaml:"bucket"`
	Prefix    string `toml:"prefix" yaml:"prefix"`
	DryRun    bool   `toml:"dry_run" yaml:"dry_run"`
	MirrorDir string `toml:"mirror_dir" yaml:"mirror_dir"`
}

// ReportConfig holds report file settings.
type ReportConfig struct {
	OutputDir string `toml:"output_dir" yaml:"output_dir"`
	UTCOffset string `toml:"utc_offset" yaml:"utc_offset"`

	Location *time.Location `toml:"-" yaml:"-"`
}

// FilterConfig holds optional tag filters applied to every kind.
type FilterConfig struct {
	IncludeTags map[string]string `toml:"include_tags" yaml:"include_tags"`
	ExcludeTags map[string]string `toml:"exclude_tags" yaml:"exclude_tags"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint" yaml:"endpoint"`
	Insecure    bool          `toml:"insecure" yaml:"insecure"`
	ServiceName string        `toml:"service_name" yaml:"service_name"`
	Traces      TracesConfig  `toml:"traces" yaml:"traces"`
	Metrics     MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled" yaml:"enabled"`
	SampleRate float64 `toml:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds OTLP metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
}

// MetricsPush holds Prometheus Pushgateway settings.
type MetricsPush struct {
	PushgatewayURL string `toml:"pushgateway_url" yaml:"pushgateway_url"`
	Job            string `toml:"job" yaml:"job"`
}

// HistoryConfig holds the local run ledger settings. Empty Path disables it.
type HistoryConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// Load reads and parses a TOML or YAML config file. Environment overrides
// are applied on top of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults (with environment
// overrides) when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		cfg := &Config{}
		if err := finish(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

func finish(cfg *Config) error {
	applyEnv(cfg)
	applyDefaults(cfg)
	return parseOffset(cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Publish.Bucket == "" {
		cfg.Publish.Bucket = DefaultBucket
	}
	if cfg.Publish.Prefix == "" {
		cfg.Publish.Prefix = DefaultPrefix
	}
	cfg.Publish.Prefix = strings.Trim(cfg.Publish.Prefix, "/")
	if cfg.Publish.DryRun && cfg.Publish.MirrorDir == "" {
		cfg.Publish.MirrorDir = DefaultMirrorDir
	}
	if cfg.Report.OutputDir == "" {
		cfg.Report.OutputDir = DefaultOutputDir
	}
	if cfg.Report.UTCOffset == "" {
		cfg.Report.UTCOffset = DefaultUTCOffset
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "kirja"
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "kirja"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// envOverrides maps environment variables onto config fields.
var envOverrides = []struct {
	name string
	set  func(*Config, string)
}{
	{"KIRJA_BUCKET", func(c *Config, v string) { c.Publish.Bucket = v }},
	{"KIRJA_PREFIX", func(c *Config, v string) { c.Publish.Prefix = v }},
	{"KIRJA_OUTPUT_DIR", func(c *Config, v string) { c.Report.OutputDir = v }},
	{"KIRJA_UTC_OFFSET", func(c *Config, v string) { c.Report.UTCOffset = v }},
	{"KIRJA_AWS_REGION", func(c *Config, v string) { c.AWS.Region = v }},
	{"KIRJA_AWS_ENDPOINT", func(c *Config, v string) { c.AWS.Endpoint = v }},
	{"KIRJA_PUSHGATEWAY_URL", func(c *Config, v string) { c.Metrics.PushgatewayURL = v }},
	{"KIRJA_HISTORY_PATH", func(c *Config, v string) { c.History.Path = v }},
	{"KIRJA_LOG_LEVEL", func(c *Config, v string) { c.Log.Level = v }},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", func(c *Config, v string) { c.OTEL.Endpoint = v }},
}

func applyEnv(cfg *Config) {
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.name); ok && v != "" {
			o.set(cfg, v)
		}
	}
}

// parseOffset turns "+05:30" style offsets into a fixed zone.
func parseOffset(cfg *Config) error {
	t, err := time.Parse("-07:00", cfg.Report.UTCOffset)
	if err != nil {
		return fmt.Errorf("parse utc_offset %q: %w", cfg.Report.UTCOffset, err)
	}
	_, offset := t.Zone()
	cfg.Report.Location = time.FixedZone("UTC"+cfg.Report.UTCOffset, offset)
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if c.Publish.Bucket == "" && !c.Publish.DryRun {
		return fmt.Errorf("publish: bucket required")
	}
	if c.Report.OutputDir == "" {
		return fmt.Errorf("report: output_dir required")
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}
