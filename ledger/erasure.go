package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/hashing"
)

// ErasureRequest is the row created by an op="-" event:
// status transitions pending -> done only once the day's rebuild
// reflecting the exclusion has completed successfully.
type ErasureRequest struct {
	ID          string
	UserKey     hashing.UserKey
	Day         time.Time
	Status      string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

const (
	ErasureStatusPending = "pending"
	ErasureStatusDone    = "done"
)

// InsertErasure records a new pending erasure request within tx.
func (l *Ledger) InsertErasure(ctx context.Context, tx *sql.Tx, req ErasureRequest) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO erasure_log (id, user_key, day, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		req.ID, keyHex(req.UserKey), DayKey(req.Day), ErasureStatusPending, req.CreatedAt.UnixNano())
	if err != nil {
		return faults.New(faults.KindTransient, "insert erasure: "+err.Error())
	}
	return nil
}

// PendingErasures returns every erasure request not yet marked done,
// oldest first.
func (l *Ledger) PendingErasures(ctx context.Context, tx *sql.Tx) ([]ErasureRequest, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, user_key, day, status, created_at FROM erasure_log WHERE status = ? ORDER BY created_at ASC`,
		ErasureStatusPending)
	if err != nil {
		return nil, faults.New(faults.KindTransient, "query pending erasures: "+err.Error())
	}
	defer rows.Close()

	var out []ErasureRequest
	for rows.Next() {
		var req ErasureRequest
		var userKeyHex, day string
		var createdAtNanos int64
		if err := rows.Scan(&req.ID, &userKeyHex, &day, &req.Status, &createdAtNanos); err != nil {
			return nil, faults.New(faults.KindTransient, "scan erasure: "+err.Error())
		}
		d, err := ParseDay(day)
		if err != nil {
			return nil, faults.New(faults.KindFatal, "parse erasure day: "+err.Error())
		}
		req.Day = d
		req.CreatedAt = time.Unix(0, createdAtNanos).UTC()
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.New(faults.KindTransient, "iterate erasures: "+err.Error())
	}
	return out, nil
}

// CompleteErasure flips an erasure request to done.
func (l *Ledger) CompleteErasure(ctx context.Context, tx *sql.Tx, id string, completedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE erasure_log SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
		ErasureStatusDone, completedAt.UnixNano(), id, ErasureStatusPending)
	if err != nil {
		return faults.New(faults.KindTransient, "complete erasure: "+err.Error())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return faults.New(faults.KindTransient, "rows affected: "+err.Error())
	}
	if n == 0 {
		return faults.New(faults.KindConflict, "erasure already completed or missing", "id", id)
	}
	return nil
}

// excludedOnDay returns the set of user_key hex strings with an
// erasure request (pending or done) whose own day matches day; used
// by RebuildDay to exclude users whose deletion day is the rebuild
// target directly, as opposed to via a prior-day tombstone row.
// Pending rows must be included here: the rebuild this function feeds
// is exactly what justifies flipping a request from pending to done,
// so excluding only already-done rows would let the request for day
// itself have no effect on day's own rebuild.
func (l *Ledger) excludedOnDay(ctx context.Context, q querier, day string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_key FROM erasure_log WHERE day = ? AND status IN (?, ?)`,
		day, ErasureStatusPending, ErasureStatusDone)
	if err != nil {
		return nil, faults.New(faults.KindTransient, "query excluded users: "+err.Error())
	}
	defer rows.Close()

	excluded := make(map[string]bool)
	for rows.Next() {
		var userKey string
		if err := rows.Scan(&userKey); err != nil {
			return nil, faults.New(faults.KindTransient, "scan excluded user: "+err.Error())
		}
		excluded[userKey] = true
	}
	return excluded, rows.Err()
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting RebuildDay
// run either inside a caller's transaction or standalone.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
