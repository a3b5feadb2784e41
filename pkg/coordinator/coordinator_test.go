package coordinator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ja7ad/nemb/pkg/energy"
	"github.com/ja7ad/nemb/pkg/provider"
	"github.com/ja7ad/nemb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a deterministic provider.Provider double for exercising
// the coordinator without touching real hardware.
type fakeProvider struct {
	name           string
	initOK         bool
	initErr        error
	failNextReads  atomic.Int32 // number of subsequent GetReading calls to report invalid
	cumJoules      atomic.Int64 // fixed-point: *1000
	powerWatts     float64
	readCount      atomic.Int32
	shutdownCalled atomic.Int32
}

func newFakeProvider(name string, power float64) *fakeProvider {
	return &fakeProvider{name: name, initOK: true, powerWatts: power}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Initialize() (bool, error) { return f.initOK, f.initErr }

func (f *fakeProvider) GetReading() energy.Reading {
	n := f.readCount.Add(1)
	ts := uint64(n) * 1_000_000

	if f.failNextReads.Load() > 0 {
		f.failNextReads.Add(-1)
		return energy.Reading{TimestampNS: ts, ProviderName: f.name, IsValid: false, ErrorMessage: "injected failure"}
	}

	joules := float64(f.cumJoules.Add(int64(f.powerWatts*1000))) / 1000.0
	return energy.Reading{
		TimestampNS:       ts,
		ProviderName:      f.name,
		IsValid:           true,
		TotalEnergyJoules: types.Joules(joules),
		TotalPowerWatts:   types.Watts(f.powerWatts),
		Confidence:        1.0,
	}
}

func (f *fakeProvider) GetSpecification() provider.Specification {
	return provider.Specification{ProviderName: f.name}
}

func (f *fakeProvider) SelfTest() (bool, error) { return true, nil }

func (f *fakeProvider) Shutdown() error {
	f.shutdownCalled.Add(1)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MeasurementInterval = 2 * time.Millisecond
	cfg.RestartInterval = 10 * time.Millisecond
	cfg.BufferSize = 100
	return cfg
}

func TestAddProviderRejectedOutsideStopped(t *testing.T) {
	c := New(testConfig())
	c.state.Store(int32(Running))
	err := c.AddProvider(newFakeProvider("p", 10), ProviderConfig{Name: "p", Disjoint: true})
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestStartMeasurementsRequiresProviders(t *testing.T) {
	c := New(testConfig())
	err := c.StartMeasurements(context.Background())
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestStartMeasurementsFailsWhenEveryProviderFails(t *testing.T) {
	c := New(testConfig())
	bad := newFakeProvider("bad", 10)
	bad.initOK = false
	require.NoError(t, c.AddProvider(bad, ProviderConfig{Name: "bad", Disjoint: true}))

	err := c.StartMeasurements(context.Background())
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.Equal(t, Stopped, c.State())
}

func TestSamplingLoopProducesOrderedBuffer(t *testing.T) {
	c := New(testConfig())
	p := newFakeProvider("p", 10)
	require.NoError(t, c.AddProvider(p, ProviderConfig{Name: "p", Disjoint: true}))

	require.NoError(t, c.StartMeasurements(context.Background()))
	assert.Equal(t, Running, c.State())

	time.Sleep(30 * time.Millisecond)
	c.StopMeasurements()
	assert.Equal(t, Stopped, c.State())

	buf := c.Buffer()
	require.NotEmpty(t, buf)
	for i := 1; i < len(buf); i++ {
		assert.Greater(t, buf[i].CommonTimestampNS, buf[i-1].CommonTimestampNS)
	}
	assert.Equal(t, int32(1), p.shutdownCalled.Load())
}

func TestStopMeasurementsIsIdempotent(t *testing.T) {
	c := New(testConfig())
	p := newFakeProvider("p", 10)
	require.NoError(t, c.AddProvider(p, ProviderConfig{Name: "p", Disjoint: true}))
	require.NoError(t, c.StartMeasurements(context.Background()))

	c.StopMeasurements()
	c.StopMeasurements()
	assert.Equal(t, Stopped, c.State())
}

// TestCrossValidation is seed scenario S4.
func TestCrossValidation(t *testing.T) {
	cfg := testConfig()
	cfg.EnableFiltering = false
	c := New(cfg)
	a := &entry{cfg: ProviderConfig{Name: "a", CrossValidateWith: []string{"b"}}}
	b := &entry{cfg: ProviderConfig{Name: "b", CrossValidateWith: []string{"a"}}}

	readings := []readingAt{
		{e: a, r: energy.Reading{ProviderName: "a", IsValid: true, TotalPowerWatts: 50, TimestampNS: 1}},
		{e: b, r: energy.Reading{ProviderName: "b", IsValid: true, TotalPowerWatts: 48, TimestampNS: 1}},
	}
	synced := c.buildSynchronized(readings)
	assert.InDelta(t, 0.04, synced.MaxProviderDeviation, 1e-9)
	assert.True(t, synced.CrossValidationPassed)

	readings[1].r.TotalPowerWatts = 45
	synced = c.buildSynchronized(readings)
	assert.InDelta(t, 0.1, synced.MaxProviderDeviation, 1e-9)
	assert.False(t, synced.CrossValidationPassed)
}

// TestAlignmentFailure is seed scenario S3.
func TestAlignmentFailure(t *testing.T) {
	cfg := testConfig()
	cfg.TemporalAlignmentTolerance = 100 * time.Microsecond
	cfg.EnableFiltering = false
	c := New(cfg)
	a := &entry{cfg: ProviderConfig{Name: "a"}}
	b := &entry{cfg: ProviderConfig{Name: "b"}}

	readings := []readingAt{
		{e: a, r: energy.Reading{ProviderName: "a", IsValid: true, TimestampNS: 1_000_000}},
		{e: b, r: energy.Reading{ProviderName: "b", IsValid: true, TimestampNS: 1_500_000}}, // +500µs
	}
	synced := c.buildSynchronized(readings)
	assert.False(t, synced.TemporalAlignmentValid)
	assert.NotEmpty(t, synced.Readings)
}

func TestHealthMonitorRestartsAfterThreeFailures(t *testing.T) {
	c := New(testConfig())
	p := newFakeProvider("p", 10)
	p.failNextReads.Store(100) // the next 100 reads fail; a restart does not reset this
	require.NoError(t, c.AddProvider(p, ProviderConfig{Name: "p", Disjoint: true}))
	require.NoError(t, c.StartMeasurements(context.Background()))

	time.Sleep(50 * time.Millisecond)
	c.StopMeasurements()

	diag := c.Diagnostics()
	assert.GreaterOrEqual(t, diag.Restarts, 1)
}
