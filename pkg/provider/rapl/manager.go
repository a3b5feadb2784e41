package rapl

import (
	"github.com/ja7ad/nemb/pkg/types"
	"github.com/ja7ad/nemb/pkg/wrap"
)

// CounterSpec describes one named hardware counter (spec §4.C).
type CounterSpec struct {
	Domain           string
	BitWidth         wrap.Width
	MaxValue         uint64
	ConversionFactor float64 // joules per raw unit
	Unit             string
}

// counterEntry pairs a spec with the wraparound-compensated accumulator
// tracking it.
type counterEntry struct {
	spec    CounterSpec
	counter *wrap.Counter
}

// Manager is the registry of named RAPL counters described in spec §4.C.
// It owns one wrap.Counter per registered domain and converts accumulated
// raw units to joules.
type Manager struct {
	entries map[string]*counterEntry
	// active is the caller-declared disjoint subset summed by
	// TotalEnergyJoules, avoiding the PACKAGE/PP0/PP1 double-counting
	// spec §4.C warns about.
	active map[string]bool
}

// NewManager creates an empty counter manager.
func NewManager() *Manager {
	return &Manager{
		entries: make(map[string]*counterEntry),
		active:  make(map[string]bool),
	}
}

// Register adds a named counter. Re-registering a name replaces its spec
// but preserves the accumulator so an in-flight session keeps its running
// total across a provider restart that re-discovers the same domains.
func (m *Manager) Register(name string, spec CounterSpec) {
	if e, ok := m.entries[name]; ok {
		e.spec = spec
		return
	}
	m.entries[name] = &counterEntry{
		spec:    spec,
		counter: wrap.New(spec.BitWidth, spec.MaxValue),
	}
}

// SetActive declares which registered counters are disjoint and should be
// summed by TotalEnergyJoules. Per spec §4.C: prefer PSYS alone when
// present; otherwise PACKAGE + DRAM (DRAM is independent); never PP0/PP1
// alongside PACKAGE (they are subsets of it).
func (m *Manager) SetActive(names ...string) {
	m.active = make(map[string]bool, len(names))
	for _, n := range names {
		m.active[n] = true
	}
}

// ResolveActive applies the default disjointness policy to whatever
// domains are currently registered and calls SetActive with the result.
func (m *Manager) ResolveActive() {
	has := func(d string) (string, bool) {
		for name, e := range m.entries {
			if e.spec.Domain == d {
				return name, true
			}
		}
		return "", false
	}

	if name, ok := has(DomainPSYS); ok {
		m.SetActive(name)
		return
	}

	var active []string
	if name, ok := has(DomainPackage); ok {
		active = append(active, name)
	}
	if name, ok := has(DomainDRAM); ok {
		active = append(active, name)
	}
	m.SetActive(active...)
}

// Update folds one raw reading per registered counter into its
// accumulator and returns each counter's cumulative energy in joules.
func (m *Manager) Update(raw map[string]uint64, t uint64) map[string]types.Joules {
	out := make(map[string]types.Joules, len(raw))
	for name, v := range raw {
		e, ok := m.entries[name]
		if !ok {
			continue
		}
		accumulated := e.counter.Update(v, t)
		out[name] = types.Joules(float64(accumulated) * e.spec.ConversionFactor)
	}
	return out
}

// TotalEnergyJoules sums the cumulative energy of the active (disjoint)
// counter subset only.
func (m *Manager) TotalEnergyJoules(joules map[string]types.Joules) types.Joules {
	var total types.Joules
	for name := range m.active {
		total += joules[name]
	}
	return total
}

// IsActive reports whether name is a member of the disjoint subset summed
// by TotalEnergyJoules. Component breakdowns must be restricted to this
// set so the reported per-component energies always sum to the total
// (spec §3); counters excluded here (e.g. PP0/PP1 once PACKAGE is active)
// are still tracked internally but never surfaced as a separate line.
func (m *Manager) IsActive(name string) bool {
	return m.active[name]
}

// Diagnostics returns the wraparound/reset counts accumulated across all
// registered counters, for session-level reporting.
func (m *Manager) Diagnostics() (wraparounds, resets uint64) {
	for _, e := range m.entries {
		wraparounds += e.counter.WraparoundCount()
		resets += e.counter.ResetCount()
	}
	return
}

// Domains returns the domain name registered under each counter name.
func (m *Manager) Domains() map[string]string {
	out := make(map[string]string, len(m.entries))
	for name, e := range m.entries {
		out[name] = e.spec.Domain
	}
	return out
}
