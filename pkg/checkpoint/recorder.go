// Package checkpoint implements the per-thread checkpoint log and
// region-id interner of spec §4.G: the low-overhead side of the
// checkpoint-to-energy correlator. It never reads an energy counter;
// attribution happens offline in pkg/correlator.
package checkpoint

import (
	"sync"
	"sync/atomic"
)

// Recorder is the thread registry behind mark_checkpoint. Thread
// registration is lazy on first call; logs are never removed except
// explicitly via RemoveThread, called at thread termination or session
// stop (spec §3 "Ownership and lifecycle").
type Recorder struct {
	interner *Interner
	logs     sync.Map // uint64 threadID -> *Log
	enabled  atomic.Bool
}

// NewRecorder constructs a Recorder. Callers that need the process-wide
// singleton required by the C ABI should go through pkg/abi instead of
// constructing one directly.
func NewRecorder() *Recorder {
	r := &Recorder{interner: NewInterner()}
	r.enabled.Store(true)
	return r
}

// SetEnabled implements the `enabled` option of spec §6: when disabled,
// MarkCheckpoint is a no-op, matching nemb_initialize's contract that a
// disabled recorder still reports success.
func (r *Recorder) SetEnabled(v bool) { r.enabled.Store(v) }

func (r *Recorder) Enabled() bool { return r.enabled.Load() }

// MarkCheckpoint is the ABI-facing entry point (spec §4.G / §6
// nemb_mark_checkpoint). ts is supplied by the caller rather than read
// here so tests can drive deterministic timestamps; production callers
// pass timer.Now().
func (r *Recorder) MarkCheckpoint(threadID uint64, regionID string, kind Kind, ts uint64) error {
	if !r.enabled.Load() {
		return nil
	}
	if regionID == "" {
		return ErrEmptyRegionID
	}
	log := r.logFor(threadID)
	switch kind {
	case Enter:
		log.Enter(regionID, ts)
	case Exit:
		log.Exit(regionID, ts)
	default:
		log.Mark(regionID, ts)
	}
	return nil
}

func (r *Recorder) logFor(threadID uint64) *Log {
	if v, ok := r.logs.Load(threadID); ok {
		return v.(*Log)
	}
	fresh := newLog(threadID, r.interner)
	actual, _ := r.logs.LoadOrStore(threadID, fresh)
	return actual.(*Log)
}

// ThreadLog returns the log registered for threadID, if any.
func (r *Recorder) ThreadLog(threadID uint64) (*Log, bool) {
	v, ok := r.logs.Load(threadID)
	if !ok {
		return nil, false
	}
	return v.(*Log), true
}

// RemoveThread detaches and returns a thread's log, handing ownership
// to the caller (the session, per spec §4.I add_thread_log). Returns
// ErrUnknownThread if the thread never registered.
func (r *Recorder) RemoveThread(threadID uint64) (*Log, error) {
	v, ok := r.logs.LoadAndDelete(threadID)
	if !ok {
		return nil, ErrUnknownThread
	}
	return v.(*Log), nil
}

// Threads returns every currently registered thread id. Order is
// unspecified.
func (r *Recorder) Threads() []uint64 {
	var out []uint64
	r.logs.Range(func(k, _ any) bool {
		out = append(out, k.(uint64))
		return true
	})
	return out
}

// Interner exposes the shared region-id interner so the correlator can
// resolve handles back to names without threading a second reference
// through the session.
func (r *Recorder) Interner() *Interner { return r.interner }
