package ledger

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/hashing"
	"github.com/turnstile-dp/censusd/sketch"
)

// bloomThreshold is the number of distinct removed keys above which
// RebuildDay trades the exact removed-set for a Bloom filter with a
// bounded false-positive rate.
const bloomThreshold = 4096

// bloomFPRate is the false-positive rate used when RebuildDay falls
// back to a Bloom filter for the removed set.
const bloomFPRate = 0.01

// RebuildDay reconstructs day's sketch by adding every user with a
// '+' row that day, then subtracting the removed set R: users
// tombstoned for this day (a '-' row written here when a later
// deletion event reached back to a prior active day) plus users whose
// own erasure request's day equals this rebuild target.
// R is an exact set at or below bloomThreshold distinct removals and a
// Bloom filter above it: the documented source of sketch.Sketch.Diff's bias.
//
// This satisfies window.Rebuilder; the WindowStore holds a *Ledger as
// its Rebuilder without either package importing the other's types
// beyond the interface the Store itself defines.
func (l *Ledger) RebuildDay(ctx context.Context, day time.Time, impl sketch.Impl, k int) (sketch.Sketch, error) {
	dayKey := DayKey(day)

	excludedDirect, err := l.excludedOnDay(ctx, l.db, dayKey)
	if err != nil {
		return nil, err
	}

	added, tombstoned, err := l.activityForDay(ctx, dayKey)
	if err != nil {
		return nil, err
	}

	removed := make(map[string]struct{}, len(tombstoned)+len(excludedDirect))
	for k := range tombstoned {
		removed[k] = struct{}{}
	}
	for k := range excludedDirect {
		removed[k] = struct{}{}
	}

	sk := sketch.New(impl, k)
	for userKey := range added {
		sk.Add(hexToHash64(userKey))
	}

	if len(removed) == 0 {
		return sk, nil
	}

	var remover sketch.Remover
	usedBloom := len(removed) > bloomThreshold
	if usedBloom {
		bf := sketch.NewBloom(len(removed), bloomFPRate)
		for userKey := range removed {
			bf.Add(hexToHash64(userKey))
		}
		remover = bf
	} else {
		ex := sketch.NewExact()
		for userKey := range removed {
			ex.Add(hexToHash64(userKey))
		}
		remover = ex
	}
	l.markBloomUsed(dayKey, usedBloom)

	return sk.Diff(remover), nil
}

// activityForDay returns the set of user_key hex strings with at
// least one '+' row that day, and the set with at least one '-' row.
func (l *Ledger) activityForDay(ctx context.Context, dayKey string) (added, tombstoned map[string]struct{}, err error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT DISTINCT user_key, op FROM activity_log WHERE day = ?`, dayKey)
	if err != nil {
		return nil, nil, faults.New(faults.KindTransient, "query activity for rebuild: "+err.Error())
	}
	defer rows.Close()

	added = make(map[string]struct{})
	tombstoned = make(map[string]struct{})
	for rows.Next() {
		var userKey, op string
		if scanErr := rows.Scan(&userKey, &op); scanErr != nil {
			return nil, nil, faults.New(faults.KindTransient, "scan activity row: "+scanErr.Error())
		}
		if Op(op) == OpAdd {
			added[userKey] = struct{}{}
		} else {
			tombstoned[userKey] = struct{}{}
		}
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, nil, faults.New(faults.KindTransient, "iterate activity for rebuild: "+rowsErr.Error())
	}
	return added, tombstoned, nil
}

// hexToHash64 recovers the uint64 sketch hash from a stored user_key
// hex string the same way hashing.Hash64 would from the raw key.
func hexToHash64(userKeyHex string) uint64 {
	var key hashing.UserKey
	raw, err := hex.DecodeString(userKeyHex)
	if err != nil || len(raw) != len(key) {
		return 0
	}
	copy(key[:], raw)
	return hashing.Hash64(key)
}
