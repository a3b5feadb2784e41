package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ja7ad/nemb/pkg/checkpoint"
	"github.com/ja7ad/nemb/pkg/coordinator"
	"github.com/ja7ad/nemb/pkg/energy"
	"github.com/ja7ad/nemb/pkg/provider"
	"github.com/ja7ad/nemb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name      string
	power     float64
	readCount atomic.Int32
	cumJoules atomic.Int64
}

func (s *stubProvider) Name() string              { return s.name }
func (s *stubProvider) Initialize() (bool, error) { return true, nil }
func (s *stubProvider) GetReading() energy.Reading {
	n := s.readCount.Add(1)
	joules := float64(s.cumJoules.Add(int64(s.power*1000))) / 1000.0
	return energy.Reading{
		TimestampNS:       uint64(n) * 2_000_000,
		ProviderName:      s.name,
		IsValid:           true,
		TotalEnergyJoules: types.Joules(joules),
		TotalPowerWatts:   types.Watts(s.power),
		Confidence:        1.0,
	}
}
func (s *stubProvider) GetSpecification() provider.Specification {
	return provider.Specification{ProviderName: s.name}
}
func (s *stubProvider) SelfTest() (bool, error) { return true, nil }
func (s *stubProvider) Shutdown() error         { return nil }

func newTestSession(t *testing.T) (*Session, *stubProvider) {
	t.Helper()
	cfg := coordinator.DefaultConfig()
	cfg.MeasurementInterval = 2 * time.Millisecond
	cfg.BufferSize = 100
	coord := coordinator.New(cfg)
	p := &stubProvider{name: "stub", power: 5}
	require.NoError(t, coord.AddProvider(p, coordinator.ProviderConfig{Name: "stub", Disjoint: true}))

	rec := checkpoint.NewRecorder()
	rec.SetEnabled(true)
	return New(coord, rec), p
}

func TestSessionStartStopProducesResult(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.recorderMark(1, "work", checkpoint.Enter, 1_000_000))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.recorderMark(1, "work", checkpoint.Exit, 10_000_000))

	res := s.Stop()
	assert.NotEmpty(t, res.SessionID)
	assert.Greater(t, res.StopNS, res.StartNS)
	assert.Contains(t, res.TotalEnergyByProviderJoules, "stub")
}

func TestSessionStopIsIdempotent(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Start(context.Background()))
	time.Sleep(10 * time.Millisecond)

	first := s.Stop()
	second := s.Stop()
	assert.Equal(t, first, second)
}

func TestSessionStartTwiceFails(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Start(context.Background()))
	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	s.Stop()
}

func TestSessionAddThreadLogIncludedAfterStop(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Start(context.Background()))

	log := checkpoint.NewRecorder()
	log.SetEnabled(true)
	require.NoError(t, log.MarkCheckpoint(7, "region", checkpoint.Enter, 1))
	require.NoError(t, log.MarkCheckpoint(7, "region", checkpoint.Exit, 2))
	l, ok := log.ThreadLog(7)
	require.True(t, ok)

	s.AddThreadLog(7, l)
	res := s.Stop()
	require.Len(t, res.Attributions, 1)
	assert.Equal(t, uint64(7), res.Attributions[0].ThreadID)
}

// recorderMark is a small test helper that marks a checkpoint through the
// session's own recorder, the way an instrumented binary would.
func (s *Session) recorderMark(threadID uint64, regionID string, kind checkpoint.Kind, ts uint64) error {
	err := s.recorder.MarkCheckpoint(threadID, regionID, kind, ts)
	if err != nil {
		return err
	}
	if l, ok := s.recorder.ThreadLog(threadID); ok {
		s.AddThreadLog(threadID, l)
	}
	return nil
}
