package hashing

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnstile-dp/censusd/faults"
)

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func TestKeyForStableAcrossEpoch(t *testing.T) {
	m := NewManager(zerolog.Nop(), []byte("secret"), mustDay(t, "2025-10-01"), 30)

	k1, err := m.KeyFor("alice", mustDay(t, "2025-10-01"))
	require.NoError(t, err)
	k2, err := m.KeyFor("alice", mustDay(t, "2025-10-15"))
	require.NoError(t, err)

	assert.Equal(t, k1, k2, "same user's key must be stable across days inside one salt epoch")
}

func TestKeyForDiffersAcrossUsers(t *testing.T) {
	m := NewManager(zerolog.Nop(), []byte("secret"), mustDay(t, "2025-10-01"), 30)

	day := mustDay(t, "2025-10-01")
	k1, err := m.KeyFor("alice", day)
	require.NoError(t, err)
	k2, err := m.KeyFor("bob", day)
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
}

func TestKeyForChangesAfterRotation(t *testing.T) {
	m := NewManager(zerolog.Nop(), []byte("secret"), mustDay(t, "2025-10-01"), 30)

	before, err := m.KeyFor("alice", mustDay(t, "2025-10-20"))
	require.NoError(t, err)

	_, err = m.Rotate(mustDay(t, "2025-11-01"), 30, mustDay(t, "2025-10-31"), 30)
	require.NoError(t, err)

	after, err := m.KeyFor("alice", mustDay(t, "2025-11-05"))
	require.NoError(t, err)

	assert.NotEqual(t, before, after, "a new epoch must derive a different key for the same user")
}

func TestRotateRejectsEffectiveDateInsideWindow(t *testing.T) {
	m := NewManager(zerolog.Nop(), []byte("secret"), mustDay(t, "2025-10-01"), 60)

	_, err := m.Rotate(mustDay(t, "2025-10-15"), 60, mustDay(t, "2025-10-30"), 30)
	require.Error(t, err)
	assert.Equal(t, faults.KindConflict, faults.Of(err))
}

func TestRotateRejectsRotationShorterThanWindow(t *testing.T) {
	m := NewManager(zerolog.Nop(), []byte("secret"), mustDay(t, "2025-10-01"), 60)

	_, err := m.Rotate(mustDay(t, "2025-11-01"), 10, mustDay(t, "2025-10-31"), 30)
	require.Error(t, err)
	assert.Equal(t, faults.KindValidation, faults.Of(err))
}

func TestEpochForFallsBackToLatestEpochPastItsOwnRotationWindow(t *testing.T) {
	m := NewManager(zerolog.Nop(), []byte("secret"), mustDay(t, "2025-10-01"), 30)

	epoch, err := m.EpochFor(mustDay(t, "2026-01-01"))
	require.NoError(t, err)
	assert.Equal(t, "e-20251001", epoch.ID)
}

func TestLoadEpochsRehydratesOrderedSet(t *testing.T) {
	m := NewManager(zerolog.Nop(), []byte("secret"), mustDay(t, "2025-10-01"), 30)

	m.LoadEpochs([]SaltEpoch{
		{ID: "e-20251101", Secret: []byte("b"), EffectiveDate: mustDay(t, "2025-11-01"), RotationDays: 30},
		{ID: "e-20251001", Secret: []byte("a"), EffectiveDate: mustDay(t, "2025-10-01"), RotationDays: 31},
	})

	epochs := m.Epochs()
	require.Len(t, epochs, 2)
	assert.True(t, epochs[0].EffectiveDate.Before(epochs[1].EffectiveDate))
}

func TestHash64DeterministicForSameKey(t *testing.T) {
	m := NewManager(zerolog.Nop(), []byte("secret"), mustDay(t, "2025-10-01"), 30)
	key, err := m.KeyFor("alice", mustDay(t, "2025-10-01"))
	require.NoError(t, err)

	assert.Equal(t, Hash64(key), Hash64(key))
}
