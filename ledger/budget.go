package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/turnstile-dp/censusd/faults"
)

// RDPPoint is one (order, cumulative epsilon spent at that order)
// pair tracked for RDP composition.
type RDPPoint struct {
	Order   float64 `json:"order"`
	Epsilon float64 `json:"epsilon"`
}

// BudgetEntry is the per-(metric, month) privacy ledger row: naive
// epsilon spent, number of releases, and the running RDP total at
// each tracked order. It round-trips through the accountant package,
// which computes admission decisions and composed bounds from it.
type BudgetEntry struct {
	Metric       string
	Month        string // "2025-10"
	NaiveSpent   float64
	ReleaseCount int
	RDP          []RDPPoint
}

// Month formats t as the canonical YYYY-MM budget period key.
func Month(t time.Time) string { return t.UTC().Format("2006-01") }

// LoadBudget returns metric/month's entry, or a zeroed entry if none
// exists yet (first release of the period).
func (l *Ledger) LoadBudget(ctx context.Context, tx *sql.Tx, metric, month string) (BudgetEntry, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT naive_spent, release_count, rdp_blob FROM budget WHERE metric = ? AND month = ?`, metric, month)
	var naiveSpent float64
	var releaseCount int
	var rdpBlob string
	err := row.Scan(&naiveSpent, &releaseCount, &rdpBlob)
	if err == sql.ErrNoRows {
		return BudgetEntry{Metric: metric, Month: month}, nil
	}
	if err != nil {
		return BudgetEntry{}, faults.New(faults.KindTransient, "load budget: "+err.Error())
	}
	var rdp []RDPPoint
	if err := json.Unmarshal([]byte(rdpBlob), &rdp); err != nil {
		return BudgetEntry{}, faults.New(faults.KindFatal, "unmarshal rdp blob: "+err.Error())
	}
	return BudgetEntry{Metric: metric, Month: month, NaiveSpent: naiveSpent, ReleaseCount: releaseCount, RDP: rdp}, nil
}

// SaveBudget upserts entry within tx.
func (l *Ledger) SaveBudget(ctx context.Context, tx *sql.Tx, entry BudgetEntry) error {
	blob, err := json.Marshal(entry.RDP)
	if err != nil {
		return faults.New(faults.KindFatal, "marshal rdp blob: "+err.Error())
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO budget (metric, month, naive_spent, release_count, rdp_blob) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(metric, month) DO UPDATE SET naive_spent = excluded.naive_spent,
		   release_count = excluded.release_count, rdp_blob = excluded.rdp_blob`,
		entry.Metric, entry.Month, entry.NaiveSpent, entry.ReleaseCount, string(blob))
	if err != nil {
		return faults.New(faults.KindTransient, "save budget: "+err.Error())
	}
	return nil
}

// ResetBudget zeroes metric's budget for month, used at the start of
// a new accounting period or by an operator override.
func (l *Ledger) ResetBudget(ctx context.Context, tx *sql.Tx, metric, month string) error {
	return l.SaveBudget(ctx, tx, BudgetEntry{Metric: metric, Month: month})
}
