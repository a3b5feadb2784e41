//go:build linux

package model

import (
	"fmt"
	"os"
	"sync"

	"github.com/ja7ad/nemb/pkg/energy"
	"github.com/ja7ad/nemb/pkg/provider"
	"github.com/ja7ad/nemb/pkg/system/proc"
	"github.com/ja7ad/nemb/pkg/timer"
	"github.com/ja7ad/nemb/pkg/types"
)

// Options configures the model-based estimator provider.
type Options struct {
	// PIDs lists the processes to attribute energy to. Empty defaults to
	// this process's own PID.
	PIDs []int
	// Alpha, when non-zero, smooths U_vm via EMA (see proc.NewCollector).
	Alpha float64
	// Config overrides the model coefficients. Nil uses the built-in
	// defaults.
	Config *Config
}

// Provider is a provider.Provider backed by the /proc + cgroup power
// model instead of a hardware counter. It never shares a physical
// meter with another provider, so spec §4.C's disjoint-domain rule
// does not constrain it: the coordinator uses it strictly for
// cross-validation against intel_rapl, never summed into a system
// total (spec §4.D, §9 Open Questions).
type Provider struct {
	opts Options

	mu        sync.Mutex
	collector proc.Collector
	est       *Estimator
	lastNS    uint64
	hasPrev   bool
}

// New constructs an uninitialized model-based provider.
func New(opts Options) *Provider {
	return &Provider{opts: opts}
}

func (p *Provider) Name() string { return "proc_model" }

// Initialize detects cgroup mode and constructs the matching collector.
// Like every provider, unavailability is reported via (false, nil), not
// an error (spec §7).
func (p *Provider) Initialize() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pids := p.opts.PIDs
	if len(pids) == 0 {
		pids = []int{os.Getpid()}
	}
	p.opts.PIDs = pids

	collector, err := proc.NewCollector(p.opts.Alpha)
	if err != nil {
		return false, nil
	}
	p.collector = collector
	p.est = NewEstimator(p.opts.Config)
	p.lastNS = timer.Now()
	p.hasPrev = false
	return true, nil
}

// GetReading samples the tracked PIDs over the interval since the last
// reading and runs them through the power model.
func (p *Provider) GetReading() energy.Reading {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.collector == nil {
		return energy.Reading{IsValid: false, ProviderName: p.Name(), ErrorMessage: "not initialized"}
	}

	now := timer.Now()
	var dtSec float64
	if p.hasPrev && now > p.lastNS {
		dtSec = float64(now-p.lastNS) / 1e9
	}
	if dtSec <= 0 {
		dtSec = 1e-3 // first call: nominal 1ms window so the model has a divisor.
	}

	snap, err := p.collector.Sample(p.opts.PIDs, dtSec)
	if err != nil {
		return energy.Reading{
			TimestampNS:  now,
			ProviderName: p.Name(),
			IsValid:      false,
			ErrorMessage: fmt.Sprintf("sample: %v", err),
		}
	}

	split := p.est.Estimate(snap)
	p.lastNS = now
	p.hasPrev = true

	breakdown := map[string]energy.ComponentEnergy{
		"cpu":  {EnergyJoules: types.Joules(float64(split.CPU) * dtSec), PowerWatts: split.CPU},
		"disk": {EnergyJoules: types.Joules(float64(split.Disk) * dtSec), PowerWatts: split.Disk},
		"ram":  {EnergyJoules: types.Joules(float64(split.RAM) * dtSec), PowerWatts: split.RAM},
	}

	return energy.Reading{
		TimestampNS:        now,
		ProviderName:       p.Name(),
		IsValid:            true,
		TotalEnergyJoules:  p.est.CumulativeJoules(),
		TotalPowerWatts:    split.Total,
		ComponentBreakdown: breakdown,
		UncertaintyPercent: 25.0, // model-based estimates run far looser than direct counters.
		Confidence:         1.0,
	}
}

func (p *Provider) GetSpecification() provider.Specification {
	return provider.Specification{
		ProviderName:           p.Name(),
		MaxUpdateFrequencyHz:   100,
		EnergyResolutionJoules: 0, // continuous estimate, not a discrete LSB.
		TypicalAccuracyPercent: 25.0,
		SupportedDomains:       []string{"cpu", "disk", "ram"},
		IsSharedResource:       false,
	}
}

// SelfTest takes two readings at least nominally spaced apart and checks
// the same monotonicity/Δt/Δenergy properties every provider must (spec
// §4.D); the model provider's energy is monotone non-decreasing by
// construction (P_total >= 0), so this mostly guards against a broken
// collector wiring.
func (p *Provider) SelfTest() (bool, error) {
	r1 := p.GetReading()
	if !r1.IsValid {
		return false, fmt.Errorf("model: self-test: first reading invalid: %s", r1.ErrorMessage)
	}
	r2 := p.GetReading()
	if !r2.IsValid {
		return false, fmt.Errorf("model: self-test: second reading invalid: %s", r2.ErrorMessage)
	}
	if r2.TimestampNS <= r1.TimestampNS {
		return false, fmt.Errorf("model: self-test: non-positive Δt")
	}
	if r2.TotalEnergyJoules < r1.TotalEnergyJoules {
		return false, fmt.Errorf("model: self-test: energy decreased")
	}
	return true, nil
}

func (p *Provider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.collector == nil {
		return nil
	}
	err := p.collector.Close()
	p.collector = nil
	return err
}
