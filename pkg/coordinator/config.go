package coordinator

import "time"

// ProviderConfig declares one provider's static coverage properties.
// Disjointness and cross-validation pairing are configuration, not
// something the coordinator infers (spec §9 Open Questions).
type ProviderConfig struct {
	Name string
	// Disjoint marks this provider's coverage as non-overlapping with
	// every other Disjoint provider; only Disjoint providers contribute
	// to TotalSystemPowerWatts / TotalSystemEnergyJoules.
	Disjoint bool
	// CrossValidateWith lists provider names whose power reading should
	// be pairwise compared against this one each tick (spec §4.F
	// "declared by configuration").
	CrossValidateWith []string
}

// Config holds the coordinator's sampling and policy parameters (spec
// §4.F, mirrored from the options table of spec §6).
type Config struct {
	MeasurementInterval       time.Duration
	TemporalAlignmentTolerance time.Duration
	CrossValidationThreshold  float64
	EnableFiltering           bool
	EnableOutlierDetection    bool
	BufferSize                int
	AutoRestart               bool
	RestartInterval           time.Duration
	ProviderReadTimeout       time.Duration

	Providers []ProviderConfig
}

// DefaultConfig mirrors spec §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		MeasurementInterval:        time.Millisecond,
		TemporalAlignmentTolerance: 100 * time.Microsecond,
		CrossValidationThreshold:   0.05,
		EnableFiltering:            true,
		EnableOutlierDetection:     true,
		BufferSize:                 1000,
		AutoRestart:                true,
		RestartInterval:            30 * time.Second,
		ProviderReadTimeout:        5 * time.Millisecond,
	}
}
