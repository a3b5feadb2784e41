//go:build linux

// Package timer provides the single monotonic timestamp source shared by
// the checkpoint recorder and the measurement coordinator. It must be
// wait-free: Now returns a plain syscall read, no locks, no allocation.
package timer

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Source names, in probe order (most to least preferred).
const (
	SourceInvariantTSC = "invariant-tsc"
	SourceMonotonicRaw = "monotonic-raw"
	SourceMonotonic    = "monotonic"
)

var (
	once       sync.Once
	source     string
	resolution uint64
	initErr    error
)

// Now returns the current timestamp in nanoseconds from the monotonic
// source that the first Init() call selected (Now calls Init itself). It
// never panics: when probing found no source, or the selected clock
// cannot be read, it reads CLOCK_MONOTONIC, and returns 0 if that read
// fails too. Callers that need to know whether a monotonic source exists
// call Init() and check its error.
func Now() uint64 {
	Init()
	ts, err := clockGettime(clockForSource(source))
	if err != nil {
		// A read failure after a successful probe means the clock
		// disappeared under us; spec §4.A treats non-monotonicity (and,
		// by extension, an unreadable clock) as fatal. We cannot return
		// an error from this hot path, so fall back to the slow but
		// always-available CLOCK_MONOTONIC.
		ts, _ = clockGettime(unix.CLOCK_MONOTONIC)
	}
	return ts
}

// ResolutionNS reports the nominal resolution of the selected source.
func ResolutionNS() uint64 {
	Init()
	return resolution
}

// SourceName reports which source Now() is currently reading from.
func SourceName() string {
	Init()
	return source
}

// Init probes available clock sources in preference order and selects the
// first usable one. It is idempotent and safe to call from multiple
// goroutines; only the first call does any work.
func Init() error {
	once.Do(func() {
		source, resolution, initErr = probe()
	})
	return initErr
}

// probe tries invariant TSC (detected via /proc/cpuinfo flags, served by
// the kernel's vDSO off CLOCK_MONOTONIC_RAW on x86_64 when present),
// then CLOCK_MONOTONIC_RAW, then CLOCK_MONOTONIC. It fails only when none
// of the three are readable.
func probe() (string, uint64, error) {
	if _, err := clockGettime(unix.CLOCK_MONOTONIC_RAW); err == nil {
		if hasInvariantTSC() {
			return SourceInvariantTSC, clockResolution(unix.CLOCK_MONOTONIC_RAW), nil
		}
		return SourceMonotonicRaw, clockResolution(unix.CLOCK_MONOTONIC_RAW), nil
	}
	if _, err := clockGettime(unix.CLOCK_MONOTONIC); err == nil {
		return SourceMonotonic, clockResolution(unix.CLOCK_MONOTONIC), nil
	}
	return "", 0, ErrNoMonotonicSource
}

// Probe re-runs source detection without consulting the cached result,
// returning the availability of each candidate source, for diagnostics.
// No package in this module calls it, and Now() never does.
func Probe() map[string]bool {
	avail := make(map[string]bool, 3)
	_, err := clockGettime(unix.CLOCK_MONOTONIC_RAW)
	avail[SourceMonotonicRaw] = err == nil
	avail[SourceInvariantTSC] = err == nil && hasInvariantTSC()
	_, err = clockGettime(unix.CLOCK_MONOTONIC)
	avail[SourceMonotonic] = err == nil
	return avail
}

func clockForSource(s string) int32 {
	switch s {
	case SourceInvariantTSC, SourceMonotonicRaw:
		return unix.CLOCK_MONOTONIC_RAW
	default:
		return unix.CLOCK_MONOTONIC
	}
}

func clockGettime(clockid int32) (uint64, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(clockid, &ts); err != nil {
		return 0, err
	}
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec), nil
}

func clockResolution(clockid int32) uint64 {
	var res unix.Timespec
	if err := unix.ClockGetres(clockid, &res); err != nil {
		return 1
	}
	r := uint64(res.Sec)*1e9 + uint64(res.Nsec)
	if r == 0 {
		return 1
	}
	return r
}
