//go:build linux

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderSpecification(t *testing.T) {
	p := New(Options{})
	assert.Equal(t, "proc_model", p.Name())

	spec := p.GetSpecification()
	assert.Equal(t, "proc_model", spec.ProviderName)
	assert.False(t, spec.IsSharedResource)
	assert.ElementsMatch(t, []string{"cpu", "disk", "ram"}, spec.SupportedDomains)
}

func TestProviderUninitializedReading(t *testing.T) {
	p := New(Options{})
	r := p.GetReading()
	assert.False(t, r.IsValid)
}

func TestProviderLifecycle(t *testing.T) {
	p := New(Options{})
	ok, err := p.Initialize()
	require.NoError(t, err)
	if !ok {
		t.Skip("skip: no collector available (needs /sys/fs/cgroup on this host)")
	}
	defer p.Shutdown()

	r1 := p.GetReading()
	require.True(t, r1.IsValid)

	time.Sleep(5 * time.Millisecond)
	r2 := p.GetReading()
	require.True(t, r2.IsValid)

	assert.Greater(t, r2.TimestampNS, r1.TimestampNS)
	assert.GreaterOrEqual(t, float64(r2.TotalEnergyJoules), float64(r1.TotalEnergyJoules))

	ok2, err := p.SelfTest()
	require.NoError(t, err)
	assert.True(t, ok2)
}
