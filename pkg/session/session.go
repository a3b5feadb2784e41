// Package session implements spec §4.I: the top-level object that starts
// and stops a measurement, owns the sample buffer and checkpoint logs
// through its collaborators, and produces the immutable SessionResult.
package session

import (
	"context"
	"sync"

	"github.com/ja7ad/nemb/pkg/checkpoint"
	"github.com/ja7ad/nemb/pkg/coordinator"
	"github.com/ja7ad/nemb/pkg/correlator"
	"github.com/ja7ad/nemb/pkg/timer"
	"github.com/google/uuid"
)

// wraparoundDiagnoser is implemented by providers that track wraparound
// counter state (currently only pkg/provider/rapl.Provider); queried via
// type assertion so the session doesn't depend on the rapl package
// directly.
type wraparoundDiagnoser interface {
	Diagnostics() (wraparounds, resets uint64)
}

// Session ties a coordinator and a checkpoint recorder together and
// turns their output into a SessionResult at Stop.
type Session struct {
	coord    *coordinator.Coordinator
	recorder *checkpoint.Recorder

	mu         sync.Mutex
	id         string
	threadLogs map[uint64][]checkpoint.Record
	startNS    uint64
	started    bool
	stopped    bool
	cached     *Result
}

// New constructs a session over an already-configured (but not yet
// started) coordinator and recorder.
func New(coord *coordinator.Coordinator, recorder *checkpoint.Recorder) *Session {
	return &Session{
		coord:      coord,
		recorder:   recorder,
		id:         uuid.New().String(),
		threadLogs: make(map[uint64][]checkpoint.Record),
	}
}

func (s *Session) ID() string { return s.id }

// Start begins measurement. A fatal failure here (spec §7: no
// monotonic clock, zero providers initialize) is the only error the
// core returns directly to the caller; after Start succeeds, Stop
// always produces a result.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	if err := timer.Init(); err != nil {
		return err
	}
	if err := s.coord.StartMeasurements(ctx); err != nil {
		return err
	}
	s.startNS = timer.Now()
	s.started = true
	return nil
}

// AddThreadLog hands a terminated thread's checkpoint log to the
// session, matching spec §4.I's add_thread_log, so the log survives past
// RemoveThread. The recorder does not call this itself; the caller that
// removes the thread hands its log over here.
func (s *Session) AddThreadLog(threadID uint64, log *checkpoint.Log) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadLogs[threadID] = log.Records()
}

// Stop ends measurement and computes the SessionResult. Calling Stop
// twice returns the identical cached result (spec testable property #6).
func (s *Session) Stop() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return *s.cached
	}

	stopNS := timer.Now()
	s.coord.StopMeasurements()

	// Sweep any thread logs still registered with the recorder (threads
	// that never hit their own exit hook) into the session's store.
	for _, tid := range s.recorder.Threads() {
		if _, already := s.threadLogs[tid]; already {
			continue
		}
		if log, ok := s.recorder.ThreadLog(tid); ok {
			s.threadLogs[tid] = log.Records()
		}
	}

	buffer := s.coord.Buffer()
	corr := correlator.Correlate(s.threadLogs, buffer, stopNS, s.coord.MeasurementIntervalNS())

	result := Result{
		SessionID:                   s.id,
		StartNS:                     s.startNS,
		StopNS:                      stopNS,
		TotalEnergyByProviderJoules: map[string]float64{},
		TotalEnergyByDomainJoules:   map[string]float64{},
		Attributions:                corr.Attributions,
	}
	if stopNS > s.startNS {
		result.DurationNS = stopNS - s.startNS
	}

	if last, ok := lastTick(buffer); ok {
		for _, r := range last.Readings {
			if !r.IsValid {
				continue
			}
			result.TotalEnergyByProviderJoules[r.ProviderName] = float64(r.TotalEnergyJoules)
			for domain, comp := range r.ComponentBreakdown {
				result.TotalEnergyByDomainJoules[domain] += float64(comp.EnergyJoules)
			}
		}
	}

	diag := s.coord.Diagnostics()
	result.Diagnostics = Diagnostics{
		ProviderRestarts:           diag.Restarts,
		PermanentlyFailedProviders: diag.PermanentlyFailed,
		OrphanCheckpoints:          corr.OrphanCount,
		TruncatedRegions:           corr.TruncatedCount,
	}
	for _, p := range s.coord.Providers() {
		if wd, ok := p.(wraparoundDiagnoser); ok {
			w, r := wd.Diagnostics()
			result.Diagnostics.Wraparounds += w
			result.Diagnostics.Resets += r
		}
	}
	for _, a := range corr.Attributions {
		if a.LowConfidence {
			result.Diagnostics.LowConfidenceIntervals++
		}
	}

	s.cached = &result
	s.stopped = true
	return result
}

// Snapshot produces a partial result from the current buffer and
// in-flight thread logs without stopping the session, for live
// monitoring (spec §4.I, optional operation).
func (s *Session) Snapshot() Result {
	s.mu.Lock()
	if s.stopped {
		cached := *s.cached
		s.mu.Unlock()
		return cached
	}
	logs := make(map[uint64][]checkpoint.Record, len(s.threadLogs))
	for tid, recs := range s.threadLogs {
		logs[tid] = recs
	}
	startNS := s.startNS
	s.mu.Unlock()

	for _, tid := range s.recorder.Threads() {
		if log, ok := s.recorder.ThreadLog(tid); ok {
			logs[tid] = log.Records()
		}
	}

	now := timer.Now()
	buffer := s.coord.Buffer()
	corr := correlator.Correlate(logs, buffer, now, s.coord.MeasurementIntervalNS())

	result := Result{SessionID: s.id, StartNS: startNS, StopNS: now, Attributions: corr.Attributions}
	if now > startNS {
		result.DurationNS = now - startNS
	}
	return result
}

func lastTick[T any](s []T) (T, bool) {
	var zero T
	if len(s) == 0 {
		return zero, false
	}
	return s[len(s)-1], true
}
