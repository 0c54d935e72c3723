package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/hashing"
	"github.com/turnstile-dp/censusd/ledger"
)

// backupBeforeMutate snapshots the ledger to DATA_DIR/backups before a
// rare, operator-only, high-consequence mutation (reset_budget,
// rotate_salt). Best-effort: a backup failure is logged but never
// blocks the operator action it guards.
func (p *Pipeline) backupBeforeMutate(ctx context.Context, op string) {
	if p.dataDir == "" {
		return
	}
	dest := filepath.Join(p.dataDir, "backups", fmt.Sprintf("ledger-%s.db", time.Now().UTC().Format("20060102-150405")))
	if err := p.ledger.Backup(ctx, dest); err != nil {
		p.logger.Warn().Err(err).Str("op", op).Str("dest", dest).Msg("pre-mutation backup failed")
	}
}

// ResetBudget zeroes metric's current-month spend: an operator
// override, e.g. at the start of a new accounting period shorter
// than a calendar month.
func (p *Pipeline) ResetBudget(ctx context.Context, metric string, asOf time.Time) error {
	if _, ok := p.accountants[metric]; !ok {
		return faults.New(faults.KindValidation, "unknown metric", "metric", metric)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.backupBeforeMutate(ctx, "reset_budget")

	return p.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		return p.ledger.ResetBudget(ctx, tx, metric, ledger.Month(asOf))
	})
}

// RotateSalt rotates the HMAC salt epoch effective at effectiveDate,
// rejecting rotations that would fall inside the currently active MAU
// window. If persisting the new epoch fails, the in-memory
// hashing.Manager is rolled back to its prior epoch set so the two
// never diverge.
func (p *Pipeline) RotateSalt(ctx context.Context, effectiveDate time.Time, rotationDays int, windowEnd time.Time) (hashing.SaltEpoch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.backupBeforeMutate(ctx, "rotate_salt")

	previous := p.hashing.Epochs()
	epoch, err := p.hashing.Rotate(effectiveDate, rotationDays, windowEnd, p.params.WindowDays)
	if err != nil {
		return hashing.SaltEpoch{}, err
	}

	err = p.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		return p.ledger.SaveSaltEpoch(ctx, tx, epoch)
	})
	if err != nil {
		p.hashing.LoadEpochs(previous)
		return hashing.SaltEpoch{}, err
	}
	return epoch, nil
}
