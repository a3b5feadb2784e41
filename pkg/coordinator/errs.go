package coordinator

import "errors"

var (
	// ErrWrongState is returned by operations valid only in a specific
	// lifecycle state (e.g. AddProvider outside Stopped).
	ErrWrongState = errors.New("coordinator: invalid state for this operation")

	// ErrNoProviders is returned by StartMeasurements when zero
	// providers are registered.
	ErrNoProviders = errors.New("coordinator: no providers registered")

	// ErrAllProvidersFailed is the fatal §7 case: every registered
	// provider failed to initialize.
	ErrAllProvidersFailed = errors.New("coordinator: zero providers initialized")
)
