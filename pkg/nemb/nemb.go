// Package nemb is the public façade over the NEMB core: it re-exports
// the types an embedder actually needs (Session, coordinator/provider
// configuration, results) so most callers only import this one path
// instead of reaching into pkg/coordinator, pkg/session and
// pkg/checkpoint directly.
package nemb

import (
	"context"

	"github.com/ja7ad/nemb/pkg/checkpoint"
	"github.com/ja7ad/nemb/pkg/coordinator"
	"github.com/ja7ad/nemb/pkg/provider"
	"github.com/ja7ad/nemb/pkg/session"
)

type (
	// Config is the coordinator's sampling and policy configuration.
	Config = coordinator.Config
	// ProviderConfig declares one provider's coverage properties.
	ProviderConfig = coordinator.ProviderConfig
	// Provider is the uniform energy-source contract.
	Provider = provider.Provider
	// Result is a completed or in-flight session's output.
	Result = session.Result
	// Diagnostics summarizes health and correlation counters.
	Diagnostics = session.Diagnostics
)

// DefaultConfig returns the coordinator's documented default policy.
func DefaultConfig() Config { return coordinator.DefaultConfig() }

// Session wraps a coordinator and checkpoint recorder behind the
// lifecycle an embedder drives: New, AddProvider, Start, mark
// checkpoints through MarkCheckpoint, Stop.
type Session struct {
	coord    *coordinator.Coordinator
	recorder *checkpoint.Recorder
	inner    *session.Session
}

// New constructs a Session from a coordinator configuration. Providers
// must be added with AddProvider before Start.
func New(cfg Config) *Session {
	coord := coordinator.New(cfg)
	rec := checkpoint.NewRecorder()
	rec.SetEnabled(true)
	return &Session{
		coord:    coord,
		recorder: rec,
		inner:    session.New(coord, rec),
	}
}

// AddProvider registers a provider; only valid before Start.
func (s *Session) AddProvider(p Provider, cfg ProviderConfig) error {
	return s.coord.AddProvider(p, cfg)
}

// Start begins measurement.
func (s *Session) Start(ctx context.Context) error {
	return s.inner.Start(ctx)
}

// MarkCheckpoint records a checkpoint event on the calling logical
// thread. Embedders that don't go through the cgo ABI (pkg/abi) call
// this directly with their own thread identifier.
func (s *Session) MarkCheckpoint(threadID uint64, regionID string, kind checkpoint.Kind, timestampNS uint64) error {
	return s.recorder.MarkCheckpoint(threadID, regionID, kind, timestampNS)
}

// Snapshot returns a partial result without stopping the session.
func (s *Session) Snapshot() Result {
	return s.inner.Snapshot()
}

// Stop ends measurement and returns the final, deterministic result.
// Safe to call more than once; later calls return the same result.
func (s *Session) Stop() Result {
	return s.inner.Stop()
}
