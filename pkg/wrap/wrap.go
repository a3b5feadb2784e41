// Package wrap implements the fixed-width wraparound counter of spec §4.B:
// it accumulates a monotonically increasing uint64 total from a narrower
// hardware register that periodically rolls over, distinguishing a
// legitimate wraparound from a counter reset.
package wrap

import "sync"

// Width is the bit width of the underlying hardware register.
type Width int

const (
	Width32 Width = 32
	Width64 Width = 64
)

// legitimateWrapWindowNS bounds how much wall-clock time may pass between
// two updates for a rollover to be treated as legitimate rather than a
// reset (spec §4.B: "≤ 60 s").
const legitimateWrapWindowNS = 60_000_000_000

// Counter accumulates a width-W unsigned register across wraps. The zero
// value is not usable; construct with New. A single writer / single
// reader is sufficient per spec §4.B; Update and the read accessors take
// a short mutex to be safe under casual concurrent use.
type Counter struct {
	mu sync.Mutex

	maxValue uint64
	lastRaw  uint64
	lastT    uint64

	accumulated     uint64
	wraparoundCount uint64
	resetCount      uint64
	initialized     bool
}

// New creates a Counter for a register of the given width whose maximum
// representable value is maxValue (must be ≤ 2^width − 1).
func New(width Width, maxValue uint64) *Counter {
	limit := uint64(1)<<uint(width) - 1
	if maxValue == 0 || maxValue > limit {
		maxValue = limit
	}
	return &Counter{maxValue: maxValue}
}

// Initialize seeds the counter with the first raw reading, taken at
// monotonic timestamp t (nanoseconds). Any prior state is discarded.
func (c *Counter) Initialize(raw uint64, t uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRaw = raw
	c.lastT = t
	c.initialized = true
}

// Update folds a new raw reading into the running total and returns the
// accumulated value. t is the monotonic timestamp of this reading.
func (c *Counter) Update(raw uint64, t uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		c.lastRaw, c.lastT, c.initialized = raw, t, true
		return c.accumulated
	}

	switch {
	case raw >= c.lastRaw:
		c.accumulated += raw - c.lastRaw
	case c.isLegitimateWrap(raw, t):
		c.accumulated += (c.maxValue - c.lastRaw) + raw + 1
		c.wraparoundCount++
	default:
		// Counter reset: the delta since lastRaw is unrecoverable and is
		// not folded into accumulated, only counted as lost.
		c.resetCount++
	}

	c.lastRaw, c.lastT = raw, t
	return c.accumulated
}

// isLegitimateWrap distinguishes a single rollover from an unrelated
// counter reset: the elapsed time must be short enough that one rollover
// explains it, and the previous/new raw values must straddle the
// register's midpoint in the right direction (previous reading in the
// upper half, new reading in the lower half) so the wrapped delta is
// never larger than the range itself.
func (c *Counter) isLegitimateWrap(raw, t uint64) bool {
	if t < c.lastT || t-c.lastT > legitimateWrapWindowNS {
		return false
	}
	half := float64(c.maxValue) / 2
	highPrev := float64(c.lastRaw) >= half
	lowNow := float64(raw) < half
	return highPrev && lowNow
}

// Accumulated returns the current running total.
func (c *Counter) Accumulated() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accumulated
}

// WraparoundCount returns how many legitimate rollovers have been folded in.
func (c *Counter) WraparoundCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wraparoundCount
}

// ResetCount returns how many times a raw reading was judged a counter
// reset rather than a rollover.
func (c *Counter) ResetCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetCount
}
