package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderLazyThreadRegistration(t *testing.T) {
	r := NewRecorder()

	_, ok := r.ThreadLog(7)
	assert.False(t, ok)

	require.NoError(t, r.MarkCheckpoint(7, "R", Enter, 1))

	log, ok := r.ThreadLog(7)
	require.True(t, ok)
	assert.Len(t, log.Records(), 1)
}

func TestRecorderDisabledIsNoOp(t *testing.T) {
	r := NewRecorder()
	r.SetEnabled(false)

	require.NoError(t, r.MarkCheckpoint(1, "R", Enter, 1))

	_, ok := r.ThreadLog(1)
	assert.False(t, ok)
}

func TestRecorderRejectsEmptyRegionID(t *testing.T) {
	r := NewRecorder()
	err := r.MarkCheckpoint(1, "", Enter, 1)
	assert.ErrorIs(t, err, ErrEmptyRegionID)
}

func TestRecorderRemoveThread(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.MarkCheckpoint(3, "R", Mark, 1))

	log, err := r.RemoveThread(3)
	require.NoError(t, err)
	assert.Len(t, log.Records(), 1)

	_, ok := r.ThreadLog(3)
	assert.False(t, ok)

	_, err = r.RemoveThread(3)
	assert.ErrorIs(t, err, ErrUnknownThread)
}

func TestRecorderSharesInternerAcrossThreads(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.MarkCheckpoint(1, "shared", Enter, 1))
	require.NoError(t, r.MarkCheckpoint(2, "shared", Enter, 1))

	log1, _ := r.ThreadLog(1)
	log2, _ := r.ThreadLog(2)
	assert.Equal(t, log1.Records()[0].RegionHandle, log2.Records()[0].RegionHandle)
}
