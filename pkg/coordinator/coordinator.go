// Package coordinator implements spec §4.F: multi-provider time-aligned
// sampling at a fixed cadence, cross-validation, buffered history and
// provider health/restart. The sampler and health monitor run as
// independent goroutines supervised by an errgroup.Group.
package coordinator

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ja7ad/nemb/pkg/energy"
	"github.com/ja7ad/nemb/pkg/provider"
	"github.com/ja7ad/nemb/pkg/system/util"
	"golang.org/x/sync/errgroup"
)

const maxRestartAttempts = 5

// entry is the coordinator's bookkeeping for one registered provider.
type entry struct {
	cfg      ProviderConfig
	provider provider.Provider

	state               atomic.Uint32 // providerState
	consecutiveFailures atomic.Int32
	restartAttempts     atomic.Int32

	mu           sync.Mutex
	smoother     *util.Smoother
	powerHistory []float64 // last up to 100 raw power samples, for outlier detection
}

func newEntry(p provider.Provider, cfg ProviderConfig) *entry {
	e := &entry{cfg: cfg, provider: p, smoother: util.NewSmoother(2.0 / 6.0)} // window-5 EMA
	e.state.Store(uint32(providerActive))
	return e
}

// Diagnostics summarizes coordinator-level counters the session folds
// into its own diagnostic report (spec §4.I).
type Diagnostics struct {
	Restarts          int
	PermanentlyFailed []string
	OutlierTicks      int
}

// Coordinator drives the sampling loop and health monitor described in
// spec §4.F.
type Coordinator struct {
	cfg Config

	mu      sync.Mutex
	state   atomic.Int32
	entries []*entry
	buffer  *ringBuffer

	cancel context.CancelFunc
	group  *errgroup.Group

	diagMu     sync.Mutex
	restarts   int
	outlierTck int
}

// New constructs a Coordinator in state Stopped.
func New(cfg Config) *Coordinator {
	return &Coordinator{cfg: cfg, buffer: newRingBuffer(cfg.BufferSize)}
}

func (c *Coordinator) State() State { return State(c.state.Load()) }

// MeasurementIntervalNS reports the configured sampling cadence, used by
// the session to derive the correlator's "expected samples" term.
func (c *Coordinator) MeasurementIntervalNS() uint64 {
	return uint64(c.cfg.MeasurementInterval.Nanoseconds())
}

// AddProvider registers a provider; valid only while Stopped (spec
// §4.F).
func (c *Coordinator) AddProvider(p provider.Provider, cfg ProviderConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != Stopped {
		return ErrWrongState
	}
	c.entries = append(c.entries, newEntry(p, cfg))
	return nil
}

// RemoveProvider unregisters a provider by name; valid only while
// Stopped.
func (c *Coordinator) RemoveProvider(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != Stopped {
		return ErrWrongState
	}
	for i, e := range c.entries {
		if e.cfg.Name == name {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// StartMeasurements initializes every registered provider and, if at
// least one succeeds, starts the sampler and health monitor goroutines
// (spec §4.F state transition Stopped -> Starting -> Running).
func (c *Coordinator) StartMeasurements(ctx context.Context) error {
	c.mu.Lock()
	if c.State() != Stopped {
		c.mu.Unlock()
		return ErrWrongState
	}
	if len(c.entries) == 0 {
		c.mu.Unlock()
		return ErrNoProviders
	}
	c.state.Store(int32(Starting))
	entries := append([]*entry(nil), c.entries...)
	c.mu.Unlock()

	succeeded := 0
	for _, e := range entries {
		ok, err := e.provider.Initialize()
		if err != nil || !ok {
			e.state.Store(uint32(providerFailed))
			continue
		}
		e.state.Store(uint32(providerActive))
		succeeded++
	}
	if succeeded == 0 {
		c.state.Store(int32(Stopped))
		return ErrAllProvidersFailed
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(runCtx)
	c.cancel = cancel
	c.group = group

	group.Go(func() error { return c.samplerLoop(gctx) })
	if c.cfg.AutoRestart {
		group.Go(func() error { return c.healthLoop(gctx) })
	}

	c.state.Store(int32(Running))
	return nil
}

// StopMeasurements is idempotent and cooperative: it cancels the
// sampler/health context and waits for both to reach their next
// suspension point (spec §5 "Cancellation / timeouts").
func (c *Coordinator) StopMeasurements() {
	c.mu.Lock()
	if c.State() == Stopped || c.State() == Stopping {
		c.mu.Unlock()
		return
	}
	c.state.Store(int32(Stopping))
	cancel := c.cancel
	group := c.group
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if group != nil {
		_ = group.Wait()
	}

	c.mu.Lock()
	entries := append([]*entry(nil), c.entries...)
	c.mu.Unlock()
	for _, e := range entries {
		_ = e.provider.Shutdown()
	}

	c.state.Store(int32(Stopped))
}

// Buffer returns a consistent snapshot of the sample history.
func (c *Coordinator) Buffer() []energy.Synchronized { return c.buffer.Snapshot() }

// Providers returns the registered providers, for collaborators (the
// session) that need to query provider-specific diagnostics the
// Provider interface doesn't generalize (e.g. RAPL wraparound counts).
func (c *Coordinator) Providers() []provider.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]provider.Provider, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.provider
	}
	return out
}

// Diagnostics reports coordinator-owned counters.
func (c *Coordinator) Diagnostics() Diagnostics {
	c.diagMu.Lock()
	defer c.diagMu.Unlock()

	var failed []string
	c.mu.Lock()
	for _, e := range c.entries {
		if providerState(e.state.Load()) == providerFailed {
			failed = append(failed, e.cfg.Name)
		}
	}
	c.mu.Unlock()

	return Diagnostics{Restarts: c.restarts, PermanentlyFailed: failed, OutlierTicks: c.outlierTck}
}

func (c *Coordinator) samplerLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.MeasurementInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.tick()
		}
	}
}

// readingAt pairs one tick's reading with the entry that produced it.
type readingAt struct {
	e *entry
	r energy.Reading
}

func (c *Coordinator) tick() {
	c.mu.Lock()
	entries := append([]*entry(nil), c.entries...)
	c.mu.Unlock()

	var readings []readingAt
	for _, e := range entries {
		if providerState(e.state.Load()) != providerActive {
			continue
		}
		r := e.provider.GetReading()
		readings = append(readings, readingAt{e: e, r: r})

		if !r.IsValid {
			e.consecutiveFailures.Add(1)
		} else {
			e.consecutiveFailures.Store(0)
		}
	}
	if len(readings) == 0 {
		return
	}

	synced := c.buildSynchronized(readings)
	c.buffer.Push(synced)
}

func (c *Coordinator) buildSynchronized(readings []readingAt) energy.Synchronized {
	earliest, latest := readings[0].r.TimestampNS, readings[0].r.TimestampNS
	for _, ra := range readings[1:] {
		if ra.r.TimestampNS < earliest {
			earliest = ra.r.TimestampNS
		}
		if ra.r.TimestampNS > latest {
			latest = ra.r.TimestampNS
		}
	}
	common := earliest + (latest-earliest)/2
	alignmentValid := time.Duration(latest-earliest) <= c.cfg.TemporalAlignmentTolerance

	out := energy.Synchronized{
		CommonTimestampNS:      common,
		TemporalAlignmentValid: alignmentValid,
	}

	filteredPower := make(map[string]float64, len(readings))
	maxUncertainty := 0.0
	var isOutlierTick bool

	for _, ra := range readings {
		out.Readings = append(out.Readings, ra.r)
		if ra.r.IsValid {
			out.ProvidersActive = append(out.ProvidersActive, ra.e.cfg.Name)
			if ra.r.UncertaintyPercent > maxUncertainty {
				maxUncertainty = ra.r.UncertaintyPercent
			}
			if ra.e.cfg.Disjoint {
				out.TotalSystemPowerWatts += ra.r.TotalPowerWatts
				out.TotalSystemEnergyJoules += ra.r.TotalEnergyJoules
			}

			raw := float64(ra.r.TotalPowerWatts)
			filtered := raw
			if c.cfg.EnableFiltering {
				ra.e.mu.Lock()
				filtered = ra.e.smoother.Update(raw)
				ra.e.mu.Unlock()
			}
			filteredPower[ra.e.cfg.Name] = filtered

			if c.cfg.EnableOutlierDetection && ra.e.trackOutlier(raw) {
				isOutlierTick = true
			}
		} else {
			out.ProvidersFailed = append(out.ProvidersFailed, ra.e.cfg.Name)
		}
	}
	out.MaxProviderUncertainty = maxUncertainty
	if isOutlierTick {
		c.diagMu.Lock()
		c.outlierTck++
		c.diagMu.Unlock()
	}

	out.CrossValidationPassed = true
	for _, ra := range readings {
		if !ra.r.IsValid {
			continue
		}
		for _, peer := range ra.e.cfg.CrossValidateWith {
			peerPower, ok := filteredPower[peer]
			if !ok {
				continue
			}
			p1, p2 := filteredPower[ra.e.cfg.Name], peerPower
			m := p1
			if p2 > m {
				m = p2
			}
			if m == 0 {
				continue
			}
			deviation := absF(p1-p2) / m
			if deviation > out.MaxProviderDeviation {
				out.MaxProviderDeviation = deviation
			}
			if deviation > c.cfg.CrossValidationThreshold {
				out.CrossValidationPassed = false
			}
		}
	}

	return out
}

// trackOutlier appends raw to the entry's rolling 100-sample power
// history and reports whether it falls beyond 3 standard deviations of
// that window (spec §4.F "outliers ... flagged but not dropped").
func (e *entry) trackOutlier(raw float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.powerHistory = append(e.powerHistory, raw)
	if len(e.powerHistory) > 100 {
		e.powerHistory = e.powerHistory[len(e.powerHistory)-100:]
	}
	n := len(e.powerHistory)
	if n < 2 {
		return false
	}

	var sum float64
	for _, v := range e.powerHistory {
		sum += v
	}
	mean := sum / float64(n)

	var variance float64
	for _, v := range e.powerHistory {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return false
	}
	return absF(raw-mean) > 3*stddev
}

func (c *Coordinator) healthLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.RestartInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.healthPass()
		}
	}
}

func (c *Coordinator) healthPass() {
	c.mu.Lock()
	entries := append([]*entry(nil), c.entries...)
	c.mu.Unlock()

	for _, e := range entries {
		if providerState(e.state.Load()) != providerActive {
			continue
		}
		if e.consecutiveFailures.Load() < 3 {
			continue
		}
		if !e.state.CompareAndSwap(uint32(providerActive), uint32(providerHealthCheck)) {
			continue // state changed since the load above; try again next pass.
		}

		_ = e.provider.Shutdown()
		ok, err := e.provider.Initialize()
		if err == nil && ok {
			e.consecutiveFailures.Store(0)
			e.restartAttempts.Store(0)
			e.state.Store(uint32(providerActive))
			c.diagMu.Lock()
			c.restarts++
			c.diagMu.Unlock()
			continue
		}

		attempts := e.restartAttempts.Add(1)
		if attempts >= maxRestartAttempts {
			e.state.Store(uint32(providerFailed))
		} else {
			e.state.Store(uint32(providerActive))
		}
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

