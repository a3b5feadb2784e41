package session

import "github.com/ja7ad/nemb/pkg/correlator"

// Diagnostics aggregates the counters spec §4.I requires a SessionResult
// to expose: provider restarts, counter wraparounds/resets, orphan
// checkpoints, and low-confidence intervals.
type Diagnostics struct {
	ProviderRestarts           int
	PermanentlyFailedProviders []string
	Wraparounds                uint64
	Resets                     uint64
	OrphanCheckpoints          int
	TruncatedRegions           int
	LowConfidenceIntervals     int
}

// Result is the SessionResult of spec §3/§4.I: deterministic given the
// same input logs and sample buffer.
type Result struct {
	SessionID string

	StartNS    uint64
	StopNS     uint64
	DurationNS uint64

	TotalEnergyByProviderJoules map[string]float64
	TotalEnergyByDomainJoules   map[string]float64

	Attributions []correlator.RegionAttribution

	Diagnostics Diagnostics
}
