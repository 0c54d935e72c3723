package pipeline

import (
	"context"
	"database/sql"
	"time"

	"github.com/turnstile-dp/censusd/faults"
)

// ReplayDeletions processes every pending erasure request: marks its
// day dirty, rebuilds that day (which excludes the erased user), and
// only then flips the request to done, so a crash mid-rebuild leaves
// the request pending for the next run rather than silently losing
// the deletion.
func (p *Pipeline) ReplayDeletions(ctx context.Context) (completed int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var pending []pendingErasure
	err = p.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		reqs, err := p.ledger.PendingErasures(ctx, tx)
		if err != nil {
			return err
		}
		for _, r := range reqs {
			pending = append(pending, pendingErasure{id: r.ID, day: r.Day})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, pe := range pending {
		p.window.MarkDirty(pe.day)
		if err := p.window.Rebuild(ctx, pe.day); err != nil {
			p.logger.Warn().Err(err).Time("day", pe.day).Msg("erasure rebuild failed; left pending for retry")
			continue
		}
		txErr := p.ledger.WithTx(ctx, func(tx *sql.Tx) error {
			return p.ledger.CompleteErasure(ctx, tx, pe.id, time.Now().UTC())
		})
		if txErr != nil {
			return completed, faults.New(faults.KindTransient, "mark erasure done: "+txErr.Error(), "id", pe.id)
		}
		completed++
	}
	return completed, nil
}

type pendingErasure struct {
	id  string
	day time.Time
}
