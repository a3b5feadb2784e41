package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ja7ad/nemb/pkg/coordinator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesDocumentedDefaults(t *testing.T) {
	f := Default()
	assert.True(t, f.Enabled)
	assert.Equal(t, float64(1), f.IntervalMS)
	assert.Equal(t, 1000, f.BufferSize)
	assert.Equal(t, 0.1, f.AlignmentToleranceMS)
	assert.Equal(t, 0.05, f.CrossValidationThreshold)
	assert.True(t, f.AutoRestart)
	assert.Equal(t, float64(30), f.RestartIntervalS)
	assert.True(t, f.ProviderEnabled("intel_rapl"))
	assert.True(t, f.ProviderEnabled("anything_unlisted"))
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nemb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
interval_ms: 5
buffer_size: 200
cross_validation_threshold: 0.1
providers:
  intel_rapl:
    enabled: false
    domains: [package, dram]
`), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, float64(5), f.IntervalMS)
	assert.Equal(t, 200, f.BufferSize)
	assert.Equal(t, 0.1, f.CrossValidationThreshold)
	assert.False(t, f.ProviderEnabled("intel_rapl"))
	assert.Equal(t, []string{"package", "dram"}, f.ProviderDomains("intel_rapl"))
	// untouched field keeps its default
	assert.Equal(t, 0.1, f.AlignmentToleranceMS)
}

func TestIntoPopulatesCoordinatorConfig(t *testing.T) {
	f := Default()
	f.IntervalMS = 2
	f.RestartIntervalS = 15

	var cfg coordinator.Config
	f.Into(&cfg)

	assert.Equal(t, 2*time.Millisecond, cfg.MeasurementInterval)
	assert.Equal(t, 1000, cfg.BufferSize)
	assert.Equal(t, 100*time.Microsecond, cfg.TemporalAlignmentTolerance)
	assert.Equal(t, 0.05, cfg.CrossValidationThreshold)
	assert.Equal(t, 15*time.Second, cfg.RestartInterval)
}

func TestIntoDisabledZeroesBuffer(t *testing.T) {
	f := Default()
	f.Enabled = false

	var cfg coordinator.Config
	f.Into(&cfg)
	assert.Equal(t, 0, cfg.BufferSize)
}

func TestDomainCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.yaml")

	SaveDomainCache(path, DomainCache{
		CPUID:      "GenuineIntel-6-142-10",
		AccessPath: map[string]string{"package": "sysfs", "dram": "msr"},
	})

	c, ok := LoadDomainCache(path, "GenuineIntel-6-142-10")
	require.True(t, ok)
	assert.Equal(t, "sysfs", c.AccessPath["package"])

	_, ok = LoadDomainCache(path, "different-cpu")
	assert.False(t, ok)

	_, ok = LoadDomainCache(filepath.Join(dir, "missing.yaml"), "anything")
	assert.False(t, ok)
}
