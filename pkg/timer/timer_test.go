//go:build linux

package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_SelectsAMonotonicSource(t *testing.T) {
	require.NoError(t, Init())
	assert.NotEmpty(t, SourceName())
	assert.Greater(t, ResolutionNS(), uint64(0))
}

func TestNow_IsMonotonicallyIncreasing(t *testing.T) {
	require.NoError(t, Init())
	prev := Now()
	for i := 0; i < 1000; i++ {
		cur := Now()
		assert.GreaterOrEqual(t, cur, prev, "timestamp went backwards at iteration %d", i)
		prev = cur
	}
}

func TestProbe_ReportsAtLeastOneAvailableSource(t *testing.T) {
	avail := Probe()
	found := false
	for _, ok := range avail {
		if ok {
			found = true
		}
	}
	assert.True(t, found, "expected at least one monotonic source to be available: %+v", avail)
}
