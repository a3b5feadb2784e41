//go:build linux

// Package rapl implements the counter manager of spec §4.C and the Intel
// RAPL provider of spec §4.E: CPU/domain detection, sysfs-powercap-or-MSR
// reading, wraparound compensation and PSYS/PACKAGE+DRAM aggregation.
package rapl

import (
	"fmt"
	"time"

	"github.com/ja7ad/nemb/pkg/energy"
	"github.com/ja7ad/nemb/pkg/provider"
	"github.com/ja7ad/nemb/pkg/timer"
	"github.com/ja7ad/nemb/pkg/types"
)

// Options configures detection and domain selection.
type Options struct {
	// SysfsPath overrides the powercap mount root (default "/sys").
	SysfsPath string
	// Domains restricts detection to a subset, e.g. {"package", "dram"}.
	// Empty means "use whatever the host exposes".
	Domains []string
}

// Provider is the spec §4.D Provider implementation reading Intel RAPL
// counters via sysfs powercap (preferred) or the MSR device (fallback).
type Provider struct {
	opts Options

	cpu     cpuID
	reader  zoneReader
	zones   map[string]Zone // domain -> zone
	manager *Manager

	initialized bool
	lastMid     uint64
	lastJoules  map[string]types.Joules
	hasPrev     bool
}

// New constructs an uninitialized RAPL provider.
func New(opts Options) *Provider {
	return &Provider{opts: opts, lastJoules: make(map[string]types.Joules)}
}

func (p *Provider) Name() string { return "intel_rapl" }

// Initialize implements spec §4.E's detection steps 1-4.
func (p *Provider) Initialize() (bool, error) {
	cpu, err := detectCPU()
	if err != nil {
		return false, nil // Unavailable, not fatal: spec §7.
	}
	if !cpu.IsIntel() {
		return false, nil
	}
	p.cpu = cpu

	sysReader := newSysfsReader(p.opts.SysfsPath)
	msrReader := newMSRReader()

	var chosen zoneReader
	if sysReader.Available() {
		chosen = sysReader
	} else if msrReader.Available() {
		chosen = msrReader
	} else {
		return false, nil
	}

	if err := chosen.Init(); err != nil {
		return false, nil
	}
	zones, err := chosen.Zones()
	if err != nil || len(zones) == 0 {
		chosen.Close()
		return false, nil
	}

	p.reader = chosen
	p.zones = make(map[string]Zone)
	p.manager = NewManager()

	allowed := domainSet(p.opts.Domains)
	for _, z := range zones {
		if allowed != nil && !allowed[z.Domain()] {
			continue
		}
		p.zones[z.Domain()] = z
	}

	// spec §4.E step 4: a domain is available iff its counter reads
	// successfully twice with a non-negative delta.
	first := make(map[string]uint64)
	for name, z := range p.zones {
		v, err := z.ReadRaw()
		if err != nil {
			delete(p.zones, name)
			continue
		}
		first[name] = v
	}
	time.Sleep(time.Millisecond)
	for name, z := range p.zones {
		v, err := z.ReadRaw()
		if err != nil || v < first[name] {
			delete(p.zones, name)
		}
	}
	if len(p.zones) == 0 {
		p.reader.Close()
		return false, nil
	}

	for name, z := range p.zones {
		p.manager.Register(name, CounterSpec{
			Domain:           z.Domain(),
			BitWidth:         z.BitWidth(),
			MaxValue:         z.MaxValue(),
			ConversionFactor: z.ConversionFactor(),
			Unit:             z.Unit(),
		})
	}
	p.manager.ResolveActive()

	p.initialized = true
	// Seed the first reading so the next GetReading has a valid baseline
	// and a power figure right away.
	p.GetReading()
	return true, nil
}

// GetReading implements spec §4.E's single-pass reading algorithm.
func (p *Provider) GetReading() energy.Reading {
	if !p.initialized {
		return energy.Reading{IsValid: false, ProviderName: p.Name(), ErrorMessage: "not initialized"}
	}

	t0 := timer.Now()
	raw := make(map[string]uint64, len(p.zones))
	var failed []string
	for name, z := range p.zones {
		v, err := z.ReadRaw()
		if err != nil {
			failed = append(failed, name)
			continue
		}
		raw[name] = v
	}
	t1 := timer.Now()
	mid := (t0 + t1) / 2

	if len(raw) == 0 {
		return energy.Reading{
			TimestampNS:  mid,
			ProviderName: p.Name(),
			IsValid:      false,
			ErrorMessage: fmt.Sprintf("all %d domains failed to read", len(p.zones)),
		}
	}

	joules := p.manager.Update(raw, mid)
	total := p.manager.TotalEnergyJoules(joules)
	prevTotal := p.manager.TotalEnergyJoules(p.lastJoules)

	var dtSec float64
	if p.hasPrev && mid > p.lastMid {
		dtSec = float64(mid-p.lastMid) / 1e9
	}

	// Only the disjoint active subset is surfaced per-component: PP0/PP1
	// are subsets of PACKAGE and would otherwise double-count against
	// ComponentBreakdown's sum-to-total invariant (spec §3). They still
	// get folded into p.lastJoules so their accumulators stay seeded if
	// ResolveActive later promotes them.
	breakdown := make(map[string]energy.ComponentEnergy, len(p.manager.active))
	for name, j := range joules {
		var watts types.Watts
		if dtSec > 0 {
			if prev, ok := p.lastJoules[name]; ok {
				watts = (j - prev).OverInterval(dtSec)
			}
		}
		if p.manager.IsActive(name) {
			breakdown[name] = energy.ComponentEnergy{EnergyJoules: j, PowerWatts: watts}
		}
		p.lastJoules[name] = j
	}

	var totalWatts types.Watts
	if dtSec > 0 {
		totalWatts = (total - prevTotal).OverInterval(dtSec)
	}

	p.lastMid = mid
	p.hasPrev = true

	errMsg := ""
	if len(failed) > 0 {
		errMsg = fmt.Sprintf("%d of %d domains failed: %v", len(failed), len(p.zones), failed)
	}

	return energy.Reading{
		TimestampNS:        mid,
		ProviderName:       p.Name(),
		IsValid:            true,
		ErrorMessage:       errMsg,
		TotalEnergyJoules:  total,
		TotalPowerWatts:    totalWatts,
		ComponentBreakdown: breakdown,
		UncertaintyPercent: 3.0,
		Confidence:         confidenceFor(len(failed), len(p.zones)),
	}
}

func confidenceFor(failed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(total-failed) / float64(total)
}

// Diagnostics reports the wraparound/reset counts accumulated across
// this provider's domains, surfaced by the session as part of its
// diagnostic counters (spec §4.I).
func (p *Provider) Diagnostics() (wraparounds, resets uint64) {
	if p.manager == nil {
		return 0, 0
	}
	return p.manager.Diagnostics()
}

func (p *Provider) GetSpecification() provider.Specification {
	domains := make([]string, 0, len(p.zones))
	for d := range p.zones {
		domains = append(domains, d)
	}
	return provider.Specification{
		ProviderName:           p.Name(),
		MaxUpdateFrequencyHz:   1000,
		EnergyResolutionJoules: 15.3e-6,
		TypicalAccuracyPercent: 3.0,
		SupportedDomains:       domains,
		IsSharedResource:       true,
	}
}

// SelfTest implements spec §4.D: two readings ≥10ms apart, verifying
// monotonicity, positive Δt and non-negative Δenergy.
func (p *Provider) SelfTest() (bool, error) {
	r1 := p.GetReading()
	if !r1.IsValid {
		return false, fmt.Errorf("rapl: self-test: first reading invalid: %s", r1.ErrorMessage)
	}
	time.Sleep(10 * time.Millisecond)
	r2 := p.GetReading()
	if !r2.IsValid {
		return false, fmt.Errorf("rapl: self-test: second reading invalid: %s", r2.ErrorMessage)
	}
	if r2.TimestampNS <= r1.TimestampNS {
		return false, fmt.Errorf("rapl: self-test: non-positive Δt")
	}
	if r2.TotalEnergyJoules < r1.TotalEnergyJoules {
		return false, fmt.Errorf("rapl: self-test: energy decreased")
	}
	return true, nil
}

func (p *Provider) Shutdown() error {
	if !p.initialized {
		return nil
	}
	p.initialized = false
	if p.reader == nil {
		return nil
	}
	err := p.reader.Close()
	p.reader = nil
	return err
}

func domainSet(domains []string) map[string]bool {
	if len(domains) == 0 {
		return nil
	}
	out := make(map[string]bool, len(domains))
	for _, d := range domains {
		out[d] = true
	}
	return out
}
