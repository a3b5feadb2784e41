//go:build linux

package model

import (
	"math"
	"testing"

	"github.com/ja7ad/nemb/pkg/system/proc"
	"github.com/ja7ad/nemb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wantSplit(cfg *Config, s proc.Snapshot) PowerSplit {
	vmShare := clamp01(s.UVm)
	procShare := clamp01(s.UProc)

	dynamicRange := float64(cfg.PeakPower - cfg.IdlePower)
	var cpu float64
	if vmShare > 1e-12 {
		cpu = (procShare / vmShare) * dynamicRange * math.Pow(vmShare, cfg.CPUExponent)
	}

	dt := math.Max(s.TimeSec, 1e-6)
	disk := (cfg.DiskReadJoulesPerByte*float64(s.ReadBytes) + cfg.DiskWriteJoulesPerByte*float64(s.WriteBytes)) / dt
	ram := (cfg.MemRefaultJoulesPerByte*float64(s.RefaultBytes) + cfg.MemRSSJoulesPerByte*float64(s.RSSChurnBytes)) / dt

	var baseline float64
	if vmShare > 1e-12 && cfg.BaselineShare > 0 {
		baseline = cfg.BaselineShare * float64(cfg.IdlePower) * (procShare / vmShare)
	}

	total := cpu + disk + ram + baseline
	return PowerSplit{
		CPU:   types.Watts(cpu),
		Disk:  types.Watts(disk),
		RAM:   types.Watts(ram),
		Total: types.Watts(total),
	}
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

func testConfig() *Config {
	return &Config{
		IdlePower:               5,
		PeakPower:               20,
		CPUExponent:             1.3,
		DiskReadJoulesPerByte:   4.8e-8,
		DiskWriteJoulesPerByte:  9.5e-8,
		MemRefaultJoulesPerByte: 7e-10,
		MemRSSJoulesPerByte:     3e-10,
		BaselineShare:           0.1,
	}
}

func TestEstimateSequenceMatchesExpectedSplit(t *testing.T) {
	cfg := testConfig()
	est := NewEstimator(cfg)

	const MB = 1 << 20
	snaps := []proc.Snapshot{
		{TimeSec: 1.0, UVm: 0.10, UProc: 0.05, ReadBytes: 1 * MB, WriteBytes: 0, RefaultBytes: 64 * 1024, RSSChurnBytes: 128 * 1024},
		{TimeSec: 1.0, UVm: 0.25, UProc: 0.12, ReadBytes: 2 * MB, WriteBytes: 1 * MB, RefaultBytes: 256 * 1024, RSSChurnBytes: 512 * 1024},
		{TimeSec: 1.0, UVm: 0.50, UProc: 0.25, ReadBytes: 4 * MB, WriteBytes: 2 * MB, RefaultBytes: 512 * 1024, RSSChurnBytes: 1 * MB},
		{TimeSec: 1.0, UVm: 0.80, UProc: 0.40, ReadBytes: 8 * MB, WriteBytes: 4 * MB, RefaultBytes: 1 * MB, RSSChurnBytes: 2 * MB},
	}

	var sumCPU, sumDisk, sumRAM, sumTotal, sumEnergy float64
	for i, s := range snaps {
		split := est.Estimate(s)
		sumCPU += float64(split.CPU)
		sumDisk += float64(split.Disk)
		sumRAM += float64(split.RAM)
		sumTotal += float64(split.Total)
		sumEnergy += float64(split.Total) * s.TimeSec

		want := wantSplit(cfg, s)
		require.InDelta(t, float64(want.CPU), float64(split.CPU), 1e-9, "cpu mismatch at tick %d", i)
		require.InDelta(t, float64(want.Disk), float64(split.Disk), 1e-9, "disk mismatch at tick %d", i)
		require.InDelta(t, float64(want.RAM), float64(split.RAM), 1e-9, "ram mismatch at tick %d", i)
		require.InDelta(t, float64(want.Total), float64(split.Total), 1e-9, "total mismatch at tick %d", i)
	}

	assert.InDelta(t, sumEnergy, float64(est.CumulativeJoules()), 1e-9)

	avg := est.Averages()
	n := float64(len(snaps))
	assert.InDelta(t, sumCPU/n, float64(avg.CPU), 1e-12)
	assert.InDelta(t, sumDisk/n, float64(avg.Disk), 1e-12)
	assert.InDelta(t, sumRAM/n, float64(avg.RAM), 1e-12)
	assert.InDelta(t, sumTotal/n, float64(avg.Total), 1e-12)
}

func TestEstimateZeroAndClampPaths(t *testing.T) {
	cfg := testConfig()
	est := NewEstimator(cfg)

	cases := []proc.Snapshot{
		// UVm=0 means no CPU attribution at all; only disk contributes.
		{TimeSec: 1, UVm: 0, UProc: 0.9, ReadBytes: 2_000_000, WriteBytes: 1_000_000},
		// UProc<0 and UVm>1 both clamp before they reach the model.
		{TimeSec: 1, UVm: 1.5, UProc: -0.5, ReadBytes: 0, WriteBytes: 0},
	}

	for i, s := range cases {
		split := est.Estimate(s)
		want := wantSplit(cfg, s)
		require.InDelta(t, float64(want.CPU), float64(split.CPU), 1e-9, "cpu (case %d)", i)
		require.InDelta(t, float64(want.Disk), float64(split.Disk), 1e-9, "disk (case %d)", i)
		require.InDelta(t, float64(want.RAM), float64(split.RAM), 1e-9, "ram (case %d)", i)
		require.InDelta(t, float64(want.Total), float64(split.Total), 1e-9, "total (case %d)", i)
	}
}

func TestEstimateAveragesOverMany(t *testing.T) {
	cfg := &Config{
		IdlePower: 5, PeakPower: 20, CPUExponent: 1.3,
		DiskReadJoulesPerByte: 4.8e-8, DiskWriteJoulesPerByte: 9.5e-8,
		MemRefaultJoulesPerByte: 7e-10, MemRSSJoulesPerByte: 3e-10,
	}
	est := NewEstimator(cfg)

	var totalPower float64
	for i := 0; i < 20; i++ {
		vmShare := 0.3 + 0.02*float64(i%5)
		procShare := 0.1 + 0.01*float64(i%3)
		rb := uint64(200_000 * (1 + (i % 4)))
		wb := uint64(100_000 * (1 + (i % 3)))
		s := snapshotAt(vmShare, procShare, rb, wb)
		split := est.Estimate(s)
		totalPower += float64(split.Total)
	}

	avg := est.Averages()
	require.Greater(t, float64(avg.Total), 0.0)
	assert.InDelta(t, totalPower/20.0, float64(avg.Total), 1e-12)
}

func snapshotAt(uvm, uproc float64, rb, wb uint64) proc.Snapshot {
	return proc.Snapshot{
		TimeSec: 1.0, UVm: uvm, UProc: uproc,
		ReadBytes: types.ToBytes(rb), WriteBytes: types.ToBytes(wb),
		RefaultBytes: 32 * 1024, RSSChurnBytes: 64 * 1024,
	}
}

func TestEstimatorWithNilConfigUsesDefaults(t *testing.T) {
	est := NewEstimator(nil)
	split := est.Estimate(proc.Snapshot{TimeSec: 1, UVm: 0.5, UProc: 0.25})
	assert.Greater(t, float64(split.Total), 0.0)
}
