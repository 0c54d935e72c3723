// Package hashing pseudonymizes user identities into UserKeys and
// derives the 64-bit uniform hash sketches operate on.
//
// Key derivation mixes the HMAC salt with the epoch covering a day,
// never with the day itself, so a UserKey is
// stable across every day inside one salt epoch. That stability is
// load-bearing for MAU correctness, see Manager.KeyFor.
package hashing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/turnstile-dp/censusd/faults"
)

// UserKey is the pseudonymized identity used throughout the system.
type UserKey [sha256.Size]byte

// SaltEpoch is a time span over which the HMAC key is stable.
type SaltEpoch struct {
	ID            string
	Secret        []byte
	EffectiveDate time.Time
	RotationDays  int
}

// covers reports whether day falls within [EffectiveDate, EffectiveDate+RotationDays).
func (e SaltEpoch) covers(day time.Time) bool {
	if day.Before(e.EffectiveDate) {
		return false
	}
	end := e.EffectiveDate.AddDate(0, 0, e.RotationDays)
	return day.Before(end)
}

// Manager holds the ordered set of salt epochs and derives UserKeys.
// A mutex-guarded slice of epochs with generate/rotate operations,
// the same shape as a key-hierarchy cache, generalized from per-tenant
// keys to per-epoch HMAC secrets.
type Manager struct {
	mu     sync.RWMutex
	logger zerolog.Logger
	epochs []SaltEpoch // sorted by EffectiveDate ascending
}

// NewManager bootstraps a Manager with a single epoch starting at the
// given effective date using the provided secret.
func NewManager(logger zerolog.Logger, secret []byte, effectiveDate time.Time, rotationDays int) *Manager {
	m := &Manager{logger: logger.With().Str("component", "hashing").Logger()}
	m.epochs = []SaltEpoch{{
		ID:            epochID(effectiveDate),
		Secret:        secret,
		EffectiveDate: effectiveDate,
		RotationDays:  rotationDays,
	}}
	return m
}

func epochID(effective time.Time) string {
	return fmt.Sprintf("e-%s", effective.UTC().Format("20060102"))
}

// GenerateSecret produces a fresh cryptographically random HMAC secret,
// used when rotating without an operator-supplied value.
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, faults.New(faults.KindFatal, "generate salt secret: "+err.Error())
	}
	return secret, nil
}

// EpochFor returns the SaltEpoch covering day.
func (m *Manager) EpochFor(day time.Time) (SaltEpoch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// epochs are sorted ascending; the covering epoch is the last one
	// whose EffectiveDate is <= day.
	for i := len(m.epochs) - 1; i >= 0; i-- {
		if !day.Before(m.epochs[i].EffectiveDate) {
			if m.epochs[i].covers(day) || i == len(m.epochs)-1 {
				return m.epochs[i], nil
			}
		}
	}
	return SaltEpoch{}, faults.New(faults.KindFatal, "no salt epoch covers day", "day", day.Format("2006-01-02"))
}

// KeyFor derives the UserKey for userID on day:
// HMAC-SHA256(epoch.Secret, epoch.ID || userID).
func (m *Manager) KeyFor(userID string, day time.Time) (UserKey, error) {
	epoch, err := m.EpochFor(day)
	if err != nil {
		return UserKey{}, err
	}
	return deriveKey(epoch, userID), nil
}

func deriveKey(epoch SaltEpoch, userID string) UserKey {
	mac := hmac.New(sha256.New, epoch.Secret)
	mac.Write([]byte(epoch.ID))
	mac.Write([]byte(userID))
	var out UserKey
	copy(out[:], mac.Sum(nil))
	return out
}

// Hash64 is the uniform 64-bit hash sketches add to their buckets.
func Hash64(key UserKey) uint64 {
	return xxhash.Sum64(key[:])
}

// Rotate appends a new epoch effective strictly after windowEnd.
// A rotation whose effective date is on or before windowEnd (and so
// may fall inside the active MAU window [windowEnd-window+1, windowEnd])
// is rejected as Conflict and leaves state untouched.
func (m *Manager) Rotate(effectiveDate time.Time, rotationDays int, windowEnd time.Time, windowDays int) (SaltEpoch, error) {
	if rotationDays < windowDays {
		return SaltEpoch{}, faults.New(faults.KindValidation, "rotation_days must be >= MAU window days",
			"rotation_days", rotationDays, "window_days", windowDays)
	}

	windowStart := windowEnd.AddDate(0, 0, -(windowDays - 1))
	if !effectiveDate.After(windowEnd) {
		return SaltEpoch{}, faults.New(faults.KindConflict, "salt rotation effective date falls within the active MAU window",
			"effective_date", effectiveDate.Format("2006-01-02"),
			"window_start", windowStart.Format("2006-01-02"),
			"window_end", windowEnd.Format("2006-01-02"))
	}

	secret, err := GenerateSecret()
	if err != nil {
		return SaltEpoch{}, err
	}

	epoch := SaltEpoch{
		ID:            epochID(effectiveDate),
		Secret:        secret,
		EffectiveDate: effectiveDate,
		RotationDays:  rotationDays,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.epochs = append(m.epochs, epoch)
	sort.Slice(m.epochs, func(i, j int) bool {
		return m.epochs[i].EffectiveDate.Before(m.epochs[j].EffectiveDate)
	})
	m.logger.Info().Str("epoch_id", epoch.ID).Time("effective_date", effectiveDate).Msg("salt epoch rotated")
	return epoch, nil
}

// LoadEpochs replaces the in-memory epoch set, used at startup to
// rehydrate from the ledger's salt_epochs table.
func (m *Manager) LoadEpochs(epochs []SaltEpoch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]SaltEpoch, len(epochs))
	copy(cp, epochs)
	sort.Slice(cp, func(i, j int) bool { return cp[i].EffectiveDate.Before(cp[j].EffectiveDate) })
	m.epochs = cp
}

// Epochs returns a copy of the currently loaded epochs, newest last.
func (m *Manager) Epochs() []SaltEpoch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make([]SaltEpoch, len(m.epochs))
	copy(cp, m.epochs)
	return cp
}
