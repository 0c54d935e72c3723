package ledger

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/hashing"
)

// Op is the append-only event kind recorded in activity_log.
type Op string

const (
	OpAdd    Op = "+"
	OpRemove Op = "-"
)

// ActivityRow is one append-only event: a UserKey was active (or,
// for a tombstone, became retroactively inactive) on Day.
type ActivityRow struct {
	UserKey  hashing.UserKey
	Day      time.Time
	Op       Op
	TS       time.Time
	Metadata map[string]string
}

func keyHex(k hashing.UserKey) string { return hex.EncodeToString(k[:]) }

// AppendActivity inserts rows within tx. Idempotent inserts of the
// same (user, day, op='+') are allowed; the rebuild replay treats
// repeated '+' for the same user/day as a no-op, per the sketch's own
// idempotent Add.
func (l *Ledger) AppendActivity(ctx context.Context, tx *sql.Tx, rows []ActivityRow) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO activity_log (user_key, day, op, ts, metadata) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return faults.New(faults.KindTransient, "prepare append activity: "+err.Error())
	}
	defer stmt.Close()

	for _, r := range rows {
		meta := "{}"
		if len(r.Metadata) > 0 {
			b, err := json.Marshal(r.Metadata)
			if err != nil {
				return faults.New(faults.KindValidation, "marshal metadata: "+err.Error())
			}
			meta = string(b)
		}
		if _, err := stmt.ExecContext(ctx, keyHex(r.UserKey), DayKey(r.Day), string(r.Op), r.TS.UnixNano(), meta); err != nil {
			return faults.New(faults.KindTransient, "insert activity row: "+err.Error())
		}
	}
	return nil
}

// ActiveDaysForUser returns every prior day (strictly before
// beforeDay) on which key had a net-active row, used to propagate a
// retroactive deletion's tombstones.
func (l *Ledger) ActiveDaysForUser(ctx context.Context, tx *sql.Tx, key hashing.UserKey, beforeDay time.Time) ([]time.Time, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT day, op FROM activity_log WHERE user_key = ? AND day < ? ORDER BY day ASC, id ASC`,
		keyHex(key), DayKey(beforeDay))
	if err != nil {
		return nil, faults.New(faults.KindTransient, "query active days: "+err.Error())
	}
	defer rows.Close()

	lastOp := make(map[string]string)
	order := make([]string, 0)
	for rows.Next() {
		var day, op string
		if err := rows.Scan(&day, &op); err != nil {
			return nil, faults.New(faults.KindTransient, "scan active day: "+err.Error())
		}
		if _, seen := lastOp[day]; !seen {
			order = append(order, day)
		}
		lastOp[day] = op
	}
	if err := rows.Err(); err != nil {
		return nil, faults.New(faults.KindTransient, "iterate active days: "+err.Error())
	}

	var days []time.Time
	for _, day := range order {
		if lastOp[day] != string(OpAdd) {
			continue
		}
		d, err := ParseDay(day)
		if err != nil {
			return nil, faults.New(faults.KindFatal, "parse day: "+err.Error())
		}
		days = append(days, d)
	}
	return days, nil
}
