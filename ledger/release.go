package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/turnstile-dp/censusd/dp"
	"github.com/turnstile-dp/censusd/faults"
)

// ReleaseRecord is one row of the append-only releases audit trail:
// every DP release is durably recorded with its parameters and
// outcome, never mutated or deleted.
type ReleaseRecord struct {
	ID        string
	Metric    string // "DAU" or "MAU"
	Day       time.Time
	Window    int
	Epsilon   float64
	Delta     float64
	Mechanism dp.Mechanism
	Raw       float64
	Estimate  float64
	CILow     float64
	CIHigh    float64
	Seed      *int64
	BloomBias bool
	TS        time.Time
}

// RecordRelease inserts rel within tx.
func (l *Ledger) RecordRelease(ctx context.Context, tx *sql.Tx, rel ReleaseRecord) error {
	var seed sql.NullInt64
	if rel.Seed != nil {
		seed = sql.NullInt64{Int64: *rel.Seed, Valid: true}
	}
	bloomBias := 0
	if rel.BloomBias {
		bloomBias = 1
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO releases (id, metric, day, window, epsilon, delta, mechanism, raw, estimate, ci_low, ci_high, seed, bloom_bias, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rel.ID, rel.Metric, DayKey(rel.Day), rel.Window, rel.Epsilon, rel.Delta, string(rel.Mechanism),
		rel.Raw, rel.Estimate, rel.CILow, rel.CIHigh, seed, bloomBias, rel.TS.UnixNano())
	if err != nil {
		return faults.New(faults.KindTransient, "insert release: "+err.Error())
	}
	return nil
}

// RecentReleases returns up to limit most recent releases for metric,
// newest first.
func (l *Ledger) RecentReleases(ctx context.Context, metric string, limit int) ([]ReleaseRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, metric, day, window, epsilon, delta, mechanism, raw, estimate, ci_low, ci_high, seed, bloom_bias, ts
		 FROM releases WHERE metric = ? ORDER BY ts DESC LIMIT ?`, metric, limit)
	if err != nil {
		return nil, faults.New(faults.KindTransient, "query releases: "+err.Error())
	}
	defer rows.Close()

	var out []ReleaseRecord
	for rows.Next() {
		var rel ReleaseRecord
		var day, mechanism string
		var seed sql.NullInt64
		var bloomBias int
		var tsNanos int64
		if err := rows.Scan(&rel.ID, &rel.Metric, &day, &rel.Window, &rel.Epsilon, &rel.Delta, &mechanism,
			&rel.Raw, &rel.Estimate, &rel.CILow, &rel.CIHigh, &seed, &bloomBias, &tsNanos); err != nil {
			return nil, faults.New(faults.KindTransient, "scan release: "+err.Error())
		}
		d, err := ParseDay(day)
		if err != nil {
			return nil, faults.New(faults.KindFatal, "parse release day: "+err.Error())
		}
		rel.Day = d
		rel.Mechanism = dp.Mechanism(mechanism)
		rel.BloomBias = bloomBias != 0
		rel.TS = time.Unix(0, tsNanos).UTC()
		if seed.Valid {
			v := seed.Int64
			rel.Seed = &v
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}
