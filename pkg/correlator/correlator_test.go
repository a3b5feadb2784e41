package correlator

import (
	"testing"

	"github.com/ja7ad/nemb/pkg/checkpoint"
	"github.com/ja7ad/nemb/pkg/energy"
	"github.com/ja7ad/nemb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syncTick(ts uint64, cumJoules float64, aligned bool, confidence float64) energy.Synchronized {
	return energy.Synchronized{
		CommonTimestampNS:       ts,
		TotalSystemEnergyJoules: types.Joules(cumJoules),
		TemporalAlignmentValid:  aligned,
		Readings: []energy.Reading{
			{
				ProviderName: "intel_rapl",
				IsValid:      true,
				Confidence:   confidence,
				ComponentBreakdown: map[string]energy.ComponentEnergy{
					"package": {EnergyJoules: types.Joules(cumJoules)},
				},
			},
		},
	}
}

// TestCorrelateExactInterpolation is seed scenario S2.
func TestCorrelateExactInterpolation(t *testing.T) {
	buffer := []energy.Synchronized{
		syncTick(0, 0, true, 1),
		syncTick(1_000_000, 0.001, true, 1),
		syncTick(2_000_000, 0.003, true, 1),
		syncTick(3_000_000, 0.006, true, 1),
	}
	logs := map[uint64][]checkpoint.Record{
		1: {
			{TimestampNS: 500_000, Kind: checkpoint.Enter, RegionID: "R", ThreadID: 1},
			{TimestampNS: 2_500_000, Kind: checkpoint.Exit, RegionID: "R", ThreadID: 1},
		},
	}

	result := Correlate(logs, buffer, 3_000_000, 1_000_000)
	require.Len(t, result.Attributions, 1)

	a := result.Attributions[0]
	assert.InDelta(t, 0.004, a.EnergyJoules, 1e-12)
	assert.Equal(t, uint64(2_000_000), a.DurationNS)
	assert.InDelta(t, 2.0, a.AveragePowerWatts, 1e-9)
	assert.False(t, a.Truncated)
}

// TestCorrelateRecursion is seed scenario S5.
func TestCorrelateRecursion(t *testing.T) {
	buffer := []energy.Synchronized{
		syncTick(0, 0, true, 1),
		syncTick(50, 0.0005, true, 1),
	}
	logs := map[uint64][]checkpoint.Record{
		1: {
			{TimestampNS: 10, Kind: checkpoint.Enter, RegionID: "R", ThreadID: 1, InvocationIndex: 0},
			{TimestampNS: 20, Kind: checkpoint.Enter, RegionID: "R", ThreadID: 1, InvocationIndex: 1},
			{TimestampNS: 30, Kind: checkpoint.Exit, RegionID: "R", ThreadID: 1, InvocationIndex: 1},
			{TimestampNS: 40, Kind: checkpoint.Exit, RegionID: "R", ThreadID: 1, InvocationIndex: 0},
		},
	}

	result := Correlate(logs, buffer, 50, 50)
	require.Len(t, result.Attributions, 2)

	byIndex := map[uint64]RegionAttribution{}
	for _, a := range result.Attributions {
		byIndex[a.InvocationIndex] = a
	}

	assert.Equal(t, uint64(20), byIndex[1].EnterNS)
	assert.Equal(t, uint64(30), byIndex[1].ExitNS)
	assert.Equal(t, uint64(10), byIndex[0].EnterNS)
	assert.Equal(t, uint64(40), byIndex[0].ExitNS)
}

// TestCorrelateTruncation is seed scenario S6.
func TestCorrelateTruncation(t *testing.T) {
	buffer := []energy.Synchronized{
		syncTick(0, 0, true, 1),
		syncTick(1000, 0.01, true, 1),
	}
	logs := map[uint64][]checkpoint.Record{
		1: {
			{TimestampNS: 100, Kind: checkpoint.Enter, RegionID: "R", ThreadID: 1},
		},
	}

	result := Correlate(logs, buffer, 1000, 0)
	require.Len(t, result.Attributions, 1)
	assert.Equal(t, 1, result.TruncatedCount)

	a := result.Attributions[0]
	assert.True(t, a.Truncated)
	assert.Equal(t, uint64(1000), a.ExitNS)
}

func TestCorrelateOrphanExitNotAttributed(t *testing.T) {
	buffer := []energy.Synchronized{syncTick(0, 0, true, 1), syncTick(1000, 0.01, true, 1)}
	logs := map[uint64][]checkpoint.Record{
		1: {
			{TimestampNS: 100, Kind: checkpoint.Exit, RegionID: "R", ThreadID: 1, Orphan: true},
		},
	}

	result := Correlate(logs, buffer, 1000, 0)
	assert.Empty(t, result.Attributions)
	assert.Equal(t, 1, result.OrphanCount)
}

// TestCorrelateZeroCheckpoints is testable property #9.
func TestCorrelateZeroCheckpoints(t *testing.T) {
	buffer := []energy.Synchronized{syncTick(0, 0, true, 1), syncTick(1000, 0.01, true, 1)}
	result := Correlate(nil, buffer, 1000, 0)
	assert.Empty(t, result.Attributions)
}

// TestCorrelateSingleSampleIsInsufficient is testable property #11.
func TestCorrelateSingleSampleIsInsufficient(t *testing.T) {
	buffer := []energy.Synchronized{syncTick(500, 0.001, true, 1)}
	logs := map[uint64][]checkpoint.Record{
		1: {
			{TimestampNS: 100, Kind: checkpoint.Enter, RegionID: "R", ThreadID: 1},
			{TimestampNS: 900, Kind: checkpoint.Exit, RegionID: "R", ThreadID: 1},
		},
	}

	result := Correlate(logs, buffer, 1000, 0)
	require.Len(t, result.Attributions, 1)
	a := result.Attributions[0]
	assert.True(t, a.InsufficientSamples)
	assert.Equal(t, 0.0, a.EnergyJoules)
	assert.True(t, a.LowConfidence)
}

// TestCorrelateDeterministic is testable property #8.
func TestCorrelateDeterministic(t *testing.T) {
	buffer := []energy.Synchronized{
		syncTick(0, 0, true, 1),
		syncTick(1_000_000, 0.001, true, 1),
		syncTick(2_000_000, 0.003, true, 1),
	}
	logs := map[uint64][]checkpoint.Record{
		1: {
			{TimestampNS: 200_000, Kind: checkpoint.Enter, RegionID: "A", ThreadID: 1},
			{TimestampNS: 800_000, Kind: checkpoint.Exit, RegionID: "A", ThreadID: 1},
		},
		2: {
			{TimestampNS: 300_000, Kind: checkpoint.Enter, RegionID: "B", ThreadID: 2},
			{TimestampNS: 1_800_000, Kind: checkpoint.Exit, RegionID: "B", ThreadID: 2},
		},
	}

	r1 := Correlate(logs, buffer, 2_000_000, 1_000_000)
	r2 := Correlate(logs, buffer, 2_000_000, 1_000_000)
	assert.Equal(t, r1, r2)
}
