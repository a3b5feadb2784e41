package wrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ns = 1_000_000_000

func TestCounter_MonotonicDeltas_NoWrap(t *testing.T) {
	c := New(Width32, 1<<32-1)
	assert.EqualValues(t, 0, c.Update(0, 0))
	assert.EqualValues(t, 1_000_000_000, c.Update(1_000_000_000, 1*ns))
	assert.EqualValues(t, 3_000_000_000, c.Update(3_000_000_000, 2*ns))
	assert.EqualValues(t, 0, c.WraparoundCount())
	assert.EqualValues(t, 0, c.ResetCount())
}

func TestCounter_LegitimateWraparound(t *testing.T) {
	const maxValue = 1<<32 - 1
	c := New(Width32, maxValue)

	c.Update(4_200_000_000, 0)
	got := c.Update(100_000_000, 1*ns)

	want := uint64((maxValue - 4_200_000_000) + 100_000_000 + 1)
	assert.EqualValues(t, want, got)
	assert.EqualValues(t, 1, c.WraparoundCount())
	assert.EqualValues(t, 0, c.ResetCount())
}

func TestCounter_LegitimateWraparound_MidRangeDrop(t *testing.T) {
	// A backward jump from the upper half of the range to the lower half
	// is still a single rollover even when the previous reading isn't
	// within the last 10% of the range: the gate only needs the two
	// readings to straddle the midpoint in the right direction.
	const maxValue = 1<<32 - 1
	c := New(Width32, maxValue)
	c.Update(3_000_000_000, 0)
	got := c.Update(500_000_000, 1*ns)

	want := uint64((maxValue - 3_000_000_000) + 500_000_000 + 1)
	assert.EqualValues(t, want, got)
	assert.EqualValues(t, 1, c.WraparoundCount())
	assert.EqualValues(t, 0, c.ResetCount())
}

func TestCounter_ResetWhenWindowExceeded(t *testing.T) {
	// Even a boundary-adjacent rollover is treated as a reset once more
	// than 60s elapsed between readings.
	const maxValue = 1<<32 - 1
	c := New(Width32, maxValue)
	c.Update(4_200_000_000, 0)
	got := c.Update(100_000_000, 61*ns)

	assert.EqualValues(t, 0, got)
	assert.EqualValues(t, 1, c.ResetCount())
}

func TestCounter_UniformSteps_ExactAccumulationAcrossWraps(t *testing.T) {
	const maxValue = 1 << 20 // small register to force many wraps cheaply

	// Exactness holds for step sizes small enough that a post-wrap raw
	// value still lands below the midpoint the legitimate-wraparound
	// gate requires (k well under half the range).
	for _, k := range []uint64{1, 7, 1000, 300_000} {
		for _, q := range []uint64{0, 1, 5, 50, 500} {
			c := New(Width32, maxValue)
			var tNS uint64
			var raw uint64
			c.Initialize(0, 0)
			for i := uint64(1); i <= q; i++ {
				raw = (i * k) % (maxValue + 1)
				tNS += 500_000 // 0.5ms per step, well under the 60s wrap window
				c.Update(raw, tNS)
			}
			got := c.Accumulated()
			require.Equalf(t, q*k, got, "k=%d q=%d", k, q)
		}
	}
}

func TestCounter_FourPointReadingSequence(t *testing.T) {
	const maxValue = 1<<32 - 1
	const joulesPerUnit = 15.3e-6
	c := New(Width32, maxValue)

	raws := []uint64{0, 1_000_000_000, 3_000_000_000, 500_000_000}
	times := []uint64{0, 1 * ns, 2 * ns, 3 * ns}
	want := []uint64{0, 1_000_000_000, 3_000_000_000, 4_794_967_296}

	var got uint64
	for i, raw := range raws {
		got = c.Update(raw, times[i])
		assert.EqualValuesf(t, want[i], got, "step %d", i)
	}

	assert.EqualValues(t, 1, c.WraparoundCount())
	assert.EqualValues(t, 0, c.ResetCount())
	assert.InDelta(t, 73_363.0, float64(got)*joulesPerUnit, 0.5)
}

func TestCounter_LargeBackwardJump_TreatedAsResetNotWrap(t *testing.T) {
	// A backward jump where the previous reading never reached the upper
	// half of the range can't be explained by a single rollover: the
	// counter correctly refuses to guess and reports a reset instead of
	// silently fabricating a wraparound delta.
	const maxValue = 1 << 20
	c := New(Width32, maxValue)
	c.Initialize(0, 0)
	c.Update(400_000, 500_000)
	c.Update(100_000, 1_000_000)

	assert.EqualValues(t, 400_000, c.Accumulated()) // only the 0→400_000 step; the reset adds nothing
	assert.EqualValues(t, 1, c.ResetCount())
	assert.EqualValues(t, 0, c.WraparoundCount())
}
