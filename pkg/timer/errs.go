package timer

import "errors"

var (
	// ErrNoMonotonicSource indicates that neither CLOCK_MONOTONIC_RAW nor
	// CLOCK_MONOTONIC could be read on this platform. Fatal per spec §4.A.
	ErrNoMonotonicSource = errors.New("timer: no monotonic clock source available")

	// ErrNonMonotonic indicates that a clock source returned a timestamp
	// that went backwards between two reads. Fatal: the spec treats clock
	// non-monotonicity as a fatal error.
	ErrNonMonotonic = errors.New("timer: clock source is not monotonic")
)
