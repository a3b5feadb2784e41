// Package energy holds the data model shared by every provider and by
// the measurement coordinator: EnergyReading (one provider, one point in
// time) and SynchronizedReading (one coordinator tick across providers).
package energy

import "github.com/ja7ad/nemb/pkg/types"

// ComponentEnergy is one domain's share of an EnergyReading.
type ComponentEnergy struct {
	EnergyJoules types.Joules
	PowerWatts   types.Watts
}

// Reading is one provider's measurement at one point in time (spec §3
// EnergyReading).
type Reading struct {
	TimestampNS  uint64
	ProviderName string
	IsValid      bool
	ErrorMessage string

	TotalEnergyJoules types.Joules
	TotalPowerWatts   types.Watts

	ComponentBreakdown map[string]ComponentEnergy

	UncertaintyPercent float64
	Confidence         float64
}

// BreakdownSum returns the sum of per-domain energy in ComponentBreakdown,
// used to check the §3 invariant that it equals TotalEnergyJoules within
// tolerance.
func (r Reading) BreakdownSum() types.Joules {
	var sum types.Joules
	for _, c := range r.ComponentBreakdown {
		sum += c.EnergyJoules
	}
	return sum
}

// WithinTolerance reports whether BreakdownSum() matches TotalEnergyJoules
// within the given relative tolerance (spec default 0.5%).
func (r Reading) WithinTolerance(tolerance float64) bool {
	total := float64(r.TotalEnergyJoules)
	sum := float64(r.BreakdownSum())
	if total == 0 {
		return sum == 0
	}
	diff := sum - total
	if diff < 0 {
		diff = -diff
	}
	return diff/absF(total) <= tolerance
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Synchronized is one coordinator tick: the time-aligned set of readings
// from every active provider, plus the alignment/cross-validation/
// aggregation results spec §4.F mandates (spec §3 SynchronizedReading).
type Synchronized struct {
	CommonTimestampNS uint64
	Readings          []Reading

	TotalSystemPowerWatts   types.Watts
	TotalSystemEnergyJoules types.Joules

	ProvidersActive []string
	ProvidersFailed []string

	TemporalAlignmentValid bool
	MaxProviderUncertainty float64

	CrossValidationPassed bool
	MaxProviderDeviation  float64
}

// ByProvider returns the reading contributed by the named provider, if any.
func (s Synchronized) ByProvider(name string) (Reading, bool) {
	for _, r := range s.Readings {
		if r.ProviderName == name {
			return r, true
		}
	}
	return Reading{}, false
}
