// Package provider defines the abstract energy provider contract of spec
// §4.D. The number of implementations is small and known at compile time
// (RAPL, the model-based estimator); this is a plain interface rather
// than a plugin system.
package provider

import "github.com/ja7ad/nemb/pkg/energy"

// Specification describes a provider's capabilities (spec §4.D
// get_specification).
type Specification struct {
	ProviderName           string
	MaxUpdateFrequencyHz   float64
	EnergyResolutionJoules float64
	TypicalAccuracyPercent float64
	SupportedDomains       []string
	IsSharedResource       bool
}

// Provider is the uniform reading/specification/self-test contract every
// energy source implements (spec §4.D).
type Provider interface {
	// Name returns a stable identifier used in diagnostics and
	// configuration (e.g. "intel_rapl", "proc_model").
	Name() string

	// Initialize detects hardware, opens handles, and takes the first
	// reading. Returns false (never an error — see spec §7) when the
	// provider is entirely unavailable on this host.
	Initialize() (bool, error)

	// GetReading performs a single non-blocking read of every configured
	// domain. It must never panic or block on I/O beyond its own
	// self-imposed timeout; failures are reported via Reading.IsValid.
	GetReading() energy.Reading

	// GetSpecification reports static capability metadata.
	GetSpecification() Specification

	// SelfTest takes two readings at least 10ms apart and verifies
	// monotonicity, positive Δt and non-negative Δenergy.
	SelfTest() (bool, error)

	// Shutdown releases handles. Idempotent.
	Shutdown() error
}

// Factory constructs a Provider. No factory registry exists in this
// module: pkg/config does not instantiate providers, and cmd/nemb
// constructs them directly.
type Factory func() (Provider, error)
