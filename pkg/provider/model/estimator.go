//go:build linux

package model

import (
	"math"

	"github.com/ja7ad/nemb/pkg/system/proc"
	"github.com/ja7ad/nemb/pkg/system/util"
	"github.com/ja7ad/nemb/pkg/types"
)

// Estimator turns a proc.Snapshot into a per-domain power split and
// accumulates energy across calls, the proc-based counterpart to the
// hardware counters pkg/provider/rapl reads directly.
type Estimator struct {
	cfg *Config

	cumulative types.Joules
	samples    int
	sumCPU     types.Watts
	sumDisk    types.Watts
	sumRAM     types.Watts
	sumTotal   types.Watts
}

// NewEstimator builds an Estimator from cfg, falling back to
// defaultConfig() when cfg is nil.
func NewEstimator(cfg *Config) *Estimator {
	if cfg == nil {
		cfg = defaultConfig()
	}
	return &Estimator{cfg: cfg}
}

// Estimate runs the model on one snapshot spanning snap.TimeSec seconds,
// folds the result into the running cumulative energy and per-domain
// averages, and returns the instantaneous split.
func (e *Estimator) Estimate(snap proc.Snapshot) PowerSplit {
	vmShare := util.Clamp01(snap.UVm)
	procShare := util.Clamp01(snap.UProc)
	dtSec := math.Max(snap.TimeSec, 1e-6)

	cpu := e.cpuPower(vmShare, procShare)
	disk := e.diskPower(snap, dtSec)
	ram := e.ramPower(snap, dtSec)
	baseline := e.baselinePower(vmShare, procShare)

	total := cpu + disk + ram + baseline

	e.cumulative += types.Joules(float64(total) * dtSec)
	e.samples++
	e.sumCPU += cpu
	e.sumDisk += disk
	e.sumRAM += ram
	e.sumTotal += total

	return PowerSplit{CPU: cpu, Disk: disk, RAM: ram, Total: total}
}

// cpuPower attributes a nonlinear dynamic-power curve at VM scope down
// to the tracked processes' share of that scope.
func (e *Estimator) cpuPower(vmShare, procShare float64) types.Watts {
	dynamicRange := float64(e.cfg.PeakPower - e.cfg.IdlePower)
	vmDynamic := dynamicRange * util.Pow(vmShare, e.cfg.CPUExponent)
	if vmShare <= 1e-12 {
		return 0
	}
	return types.Watts((procShare / vmShare) * vmDynamic)
}

func (e *Estimator) diskPower(snap proc.Snapshot, dtSec float64) types.Watts {
	joules := e.cfg.DiskReadJoulesPerByte*float64(snap.ReadBytes) + e.cfg.DiskWriteJoulesPerByte*float64(snap.WriteBytes)
	return types.Watts(joules / dtSec)
}

func (e *Estimator) ramPower(snap proc.Snapshot, dtSec float64) types.Watts {
	joules := e.cfg.MemRefaultJoulesPerByte*float64(snap.RefaultBytes) + e.cfg.MemRSSJoulesPerByte*float64(snap.RSSChurnBytes)
	return types.Watts(joules / dtSec)
}

func (e *Estimator) baselinePower(vmShare, procShare float64) types.Watts {
	if vmShare <= 1e-12 || e.cfg.BaselineShare <= 0 {
		return 0
	}
	return types.Watts(e.cfg.BaselineShare * float64(e.cfg.IdlePower) * (procShare / vmShare))
}

// CumulativeJoules returns the energy accumulated across every Estimate
// call so far.
func (e *Estimator) CumulativeJoules() types.Joules { return e.cumulative }

// Averages returns the mean per-domain power across every Estimate call.
func (e *Estimator) Averages() PowerSplit {
	if e.samples == 0 {
		return PowerSplit{}
	}
	n := float64(e.samples)
	return PowerSplit{
		CPU:   e.sumCPU / types.Watts(n),
		Disk:  e.sumDisk / types.Watts(n),
		RAM:   e.sumRAM / types.Watts(n),
		Total: e.sumTotal / types.Watts(n),
	}
}
