// Package config is the YAML-backed options carrier of spec §6. It is
// an opaque collaborator concern per spec §1: NEMB core only requires
// File.Into(*coordinator.Config) to turn parsed options into the
// coordinator's own configuration type.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ja7ad/nemb/pkg/coordinator"
	"gopkg.in/yaml.v3"
)

// ProviderOptions is the per-provider section of the options table
// (spec §6 `providers.<name>.enabled`, `providers.intel_rapl.domains`).
type ProviderOptions struct {
	Enabled bool     `yaml:"enabled"`
	Domains []string `yaml:"domains,omitempty"`
}

// File mirrors the documented options table verbatim. Field names use
// the table's own keys so a YAML document can be copy-pasted from the
// spec's documentation into a config file.
type File struct {
	Enabled                  bool                       `yaml:"enabled"`
	IntervalMS               float64                    `yaml:"interval_ms"`
	BufferSize               int                        `yaml:"buffer_size"`
	AlignmentToleranceMS     float64                    `yaml:"alignment_tolerance_ms"`
	CrossValidationThreshold float64                    `yaml:"cross_validation_threshold"`
	AutoRestart              bool                       `yaml:"auto_restart"`
	RestartIntervalS         float64                    `yaml:"restart_interval_s"`
	EnableFiltering          *bool                      `yaml:"enable_filtering,omitempty"`
	EnableOutlierDetection   *bool                      `yaml:"enable_outlier_detection,omitempty"`
	Providers                map[string]ProviderOptions `yaml:"providers"`
}

// Default returns a File populated with the options table's documented
// defaults (spec §6).
func Default() File {
	return File{
		Enabled:                  true,
		IntervalMS:               1,
		BufferSize:               1000,
		AlignmentToleranceMS:     0.1,
		CrossValidationThreshold: 0.05,
		AutoRestart:              true,
		RestartIntervalS:         30,
		Providers: map[string]ProviderOptions{
			"intel_rapl": {Enabled: true, Domains: []string{"package", "pp0", "pp1", "dram", "psys"}},
		},
	}
}

// Load reads and parses a YAML config file, filling any field absent
// from the document with Default()'s value.
func Load(path string) (File, error) {
	f := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return f, nil
}

// Into translates the options table into a coordinator.Config, leaving
// the Providers slice for the caller to populate (providers are
// instantiated by the CLI, not by this package — spec §6 scopes
// instantiation as a collaborator concern).
func (f File) Into(cfg *coordinator.Config) {
	if !f.Enabled {
		cfg.BufferSize = 0
		return
	}
	cfg.MeasurementInterval = durationFromMS(f.IntervalMS)
	cfg.BufferSize = f.BufferSize
	cfg.TemporalAlignmentTolerance = durationFromMS(f.AlignmentToleranceMS)
	cfg.CrossValidationThreshold = f.CrossValidationThreshold
	cfg.AutoRestart = f.AutoRestart
	cfg.RestartInterval = time.Duration(f.RestartIntervalS * float64(time.Second))
	if f.EnableFiltering != nil {
		cfg.EnableFiltering = *f.EnableFiltering
	}
	if f.EnableOutlierDetection != nil {
		cfg.EnableOutlierDetection = *f.EnableOutlierDetection
	}
}

// ProviderEnabled reports whether the named provider's section is
// enabled, defaulting to true when the provider has no section at all.
func (f File) ProviderEnabled(name string) bool {
	p, ok := f.Providers[name]
	if !ok {
		return true
	}
	return p.Enabled
}

// ProviderDomains returns the configured domain subset for name, or nil
// if unset (meaning: use every domain the provider detects).
func (f File) ProviderDomains(name string) []string {
	return f.Providers[name].Domains
}

func durationFromMS(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
