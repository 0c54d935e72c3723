package pipeline

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/hashing"
	"github.com/turnstile-dp/censusd/ledger"
)

// windowMutation is a deferred in-memory WindowStore update applied
// only after the ledger transaction that justifies it has committed,
// the store is a reconstructible cache, so a crash between commit and
// mutation just leaves it stale until the next rebuild, never
// inconsistent with what was actually persisted.
type windowMutation struct {
	day       time.Time
	touchHash *uint64 // non-nil: Touch(day, *touchHash)
	markDirty bool    // true: MarkDirty(day)
}

// IngestSync applies a batch of events atomically: every event's
// activity_log/erasure_log rows are written in one transaction, which
// either fully commits or fully rolls back. Takes the exclusive lock
// for the duration.
func (p *Pipeline) IngestSync(ctx context.Context, events []Event) (accepted int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var mutations []windowMutation

	err = p.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		for _, ev := range events {
			if ev.Day.IsZero() || ev.UserID == "" {
				return faults.New(faults.KindValidation, "event missing user_id or day")
			}
			if ev.Op != ledger.OpAdd && ev.Op != ledger.OpRemove {
				return faults.New(faults.KindValidation, "event op must be '+' or '-'", "op", ev.Op)
			}
			if ev.Day.After(time.Now().UTC()) {
				return faults.New(faults.KindValidation, "event day is in the future", "day", ledger.DayKey(ev.Day))
			}

			key, err := p.hashing.KeyFor(ev.UserID, ev.Day)
			if err != nil {
				return err
			}

			switch ev.Op {
			case ledger.OpAdd:
				if err := p.ledger.AppendActivity(ctx, tx, []ledger.ActivityRow{
					{UserKey: key, Day: ev.Day, Op: ledger.OpAdd, TS: ev.CreatedAt, Metadata: ev.Metadata},
				}); err != nil {
					return err
				}
				h := hashing.Hash64(key)
				mutations = append(mutations, windowMutation{day: ev.Day, touchHash: &h})

			case ledger.OpRemove:
				if err := p.applyErasure(ctx, tx, key, ev, &mutations); err != nil {
					return err
				}
			}
			accepted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, m := range mutations {
		if m.touchHash != nil {
			if terr := p.window.Touch(ctx, m.day, *m.touchHash); terr != nil {
				p.logger.Error().Err(terr).Msg("window touch failed after commit; day will self-heal on next rebuild")
				p.window.MarkDirty(m.day)
			}
		}
		if m.markDirty {
			p.window.MarkDirty(m.day)
		}
	}
	return accepted, nil
}

// applyErasure records the erasure request for ev.Day and writes a
// tombstone activity row for every prior day the user was active: the
// exact day is handled later by ReplayDeletions excluding it via
// erasure_log directly, while prior days need an explicit '-' row so
// RebuildDay's per-day replay reflects the retroactive deletion
// without rescanning the future.
func (p *Pipeline) applyErasure(ctx context.Context, tx *sql.Tx, key hashing.UserKey, ev Event, mutations *[]windowMutation) error {
	req := ledger.ErasureRequest{
		ID:        uuid.NewString(),
		UserKey:   key,
		Day:       ev.Day,
		CreatedAt: ev.CreatedAt,
	}
	if err := p.ledger.InsertErasure(ctx, tx, req); err != nil {
		return err
	}
	*mutations = append(*mutations, windowMutation{day: ev.Day, markDirty: true})

	priorDays, err := p.ledger.ActiveDaysForUser(ctx, tx, key, ev.Day)
	if err != nil {
		return err
	}
	if len(priorDays) == 0 {
		return nil
	}

	rows := make([]ledger.ActivityRow, 0, len(priorDays))
	for _, d := range priorDays {
		rows = append(rows, ledger.ActivityRow{UserKey: key, Day: d, Op: ledger.OpRemove, TS: ev.CreatedAt})
		*mutations = append(*mutations, windowMutation{day: d, markDirty: true})
	}
	return p.ledger.AppendActivity(ctx, tx, rows)
}
