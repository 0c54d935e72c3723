package ledger

import (
	"context"
	"database/sql"

	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/hashing"
)

// SaveSaltEpoch inserts a new salt epoch row within tx, called when
// hashing.Manager.Rotate produces a new epoch that needs to survive a
// restart.
func (l *Ledger) SaveSaltEpoch(ctx context.Context, tx *sql.Tx, epoch hashing.SaltEpoch) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO salt_epochs (id, secret, effective_date, rotation_days) VALUES (?, ?, ?, ?)`,
		epoch.ID, epoch.Secret, DayKey(epoch.EffectiveDate), epoch.RotationDays)
	if err != nil {
		return faults.New(faults.KindTransient, "save salt epoch: "+err.Error())
	}
	return nil
}

// LoadSaltEpochs returns every persisted epoch, used to rehydrate a
// hashing.Manager at startup.
func (l *Ledger) LoadSaltEpochs(ctx context.Context) ([]hashing.SaltEpoch, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, secret, effective_date, rotation_days FROM salt_epochs`)
	if err != nil {
		return nil, faults.New(faults.KindTransient, "load salt epochs: "+err.Error())
	}
	defer rows.Close()

	var out []hashing.SaltEpoch
	for rows.Next() {
		var epoch hashing.SaltEpoch
		var effectiveDate string
		if err := rows.Scan(&epoch.ID, &epoch.Secret, &effectiveDate, &epoch.RotationDays); err != nil {
			return nil, faults.New(faults.KindTransient, "scan salt epoch: "+err.Error())
		}
		d, err := ParseDay(effectiveDate)
		if err != nil {
			return nil, faults.New(faults.KindFatal, "parse salt epoch date: "+err.Error())
		}
		epoch.EffectiveDate = d
		out = append(out, epoch)
	}
	return out, rows.Err()
}
