package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/turnstile-dp/censusd/accountant"
	"github.com/turnstile-dp/censusd/dp"
	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/ledger"
)

// ReleaseResult is what callers (handlers, the CLI) receive from a
// release operation: the noisy estimate plus the metadata a release
// must carry for audit and reproducibility.
type ReleaseResult struct {
	dp.Release
	Day         time.Time
	Window      int
	BloomBias   bool
	BudgetAfter accountant.Snapshot
}

// ReleaseDAU computes DAU for day: replays any pending deletions
// first, rebuilds/returns day's sketch cardinality, checks the
// monthly budget, samples Laplace noise, and records the release,
// all under the exclusive lock.
func (p *Pipeline) ReleaseDAU(ctx context.Context, day time.Time) (ReleaseResult, error) {
	if _, err := p.ReplayDeletions(ctx); err != nil {
		return ReleaseResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sk, err := p.window.RollingUnion(ctx, day, 1)
	if err != nil {
		return ReleaseResult{}, err
	}
	raw := sk.Cardinality()

	acct := p.accountants["DAU"]
	month := ledger.Month(day)

	var result ReleaseResult
	err = p.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		entry, err := p.ledger.LoadBudget(ctx, tx, "DAU", month)
		if err != nil {
			return err
		}
		if err := acct.CanRelease(entry, p.params.EpsilonDAU); err != nil {
			return err
		}

		src := p.rngSource()
		rel := dp.ReleaseDAU(src, raw, p.params.W, p.params.EpsilonDAU)

		entry = acct.Admit(entry, rel.Mechanism, p.params.EpsilonDAU, p.params.W, 0)
		if err := p.ledger.SaveBudget(ctx, tx, entry); err != nil {
			return err
		}

		record := ledger.ReleaseRecord{
			ID: uuid.NewString(), Metric: "DAU", Day: day, Window: 1,
			Epsilon: p.params.EpsilonDAU, Delta: 0, Mechanism: rel.Mechanism,
			Raw: rel.Raw, Estimate: rel.Noisy, CILow: rel.CILow, CIHigh: rel.CIHigh,
			BloomBias: p.ledger.AnyBloomBias([]time.Time{day}), TS: time.Now().UTC(),
		}
		if p.params.Seed != nil {
			seed := dp.TruncateSeed(*p.params.Seed)
			record.Seed = &seed
		}
		if err := p.ledger.RecordRelease(ctx, tx, record); err != nil {
			return err
		}

		result = ReleaseResult{Release: rel, Day: day, Window: 1, BloomBias: record.BloomBias, BudgetAfter: acct.Snapshot(entry)}
		return nil
	})
	if err != nil {
		return ReleaseResult{}, err
	}
	p.writeBudgetReport("DAU", result.BudgetAfter)
	return result, nil
}

// ReleaseMAU computes MAU for the window-day window ending at end:
// replays pending deletions, unions window day-sketches, checks
// budget, samples Gaussian noise, and records the release. A window
// <= 0 falls back to the configured WindowDays, the default behavior
// when a caller omits an explicit `?window=N` override.
func (p *Pipeline) ReleaseMAU(ctx context.Context, end time.Time, window int) (ReleaseResult, error) {
	if _, err := p.ReplayDeletions(ctx); err != nil {
		return ReleaseResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	w := window
	if w <= 0 {
		w = p.params.WindowDays
	}
	sk, err := p.window.RollingUnion(ctx, end, w)
	if err != nil {
		return ReleaseResult{}, err
	}
	raw := sk.Cardinality()

	acct := p.accountants["MAU"]
	month := ledger.Month(end)
	sigma := dp.GaussianSigma(p.params.W, p.params.EpsilonMAU, p.params.Delta)

	var result ReleaseResult
	err = p.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		entry, err := p.ledger.LoadBudget(ctx, tx, "MAU", month)
		if err != nil {
			return err
		}
		if err := acct.CanRelease(entry, p.params.EpsilonMAU); err != nil {
			return err
		}

		src := p.rngSource()
		rel := dp.ReleaseMAU(src, raw, p.params.W, p.params.EpsilonMAU, p.params.Delta)

		entry = acct.Admit(entry, rel.Mechanism, p.params.EpsilonMAU, p.params.W, sigma)
		if err := p.ledger.SaveBudget(ctx, tx, entry); err != nil {
			return err
		}

		days := windowDays(end, w)
		record := ledger.ReleaseRecord{
			ID: uuid.NewString(), Metric: "MAU", Day: end, Window: w,
			Epsilon: p.params.EpsilonMAU, Delta: p.params.Delta, Mechanism: rel.Mechanism,
			Raw: rel.Raw, Estimate: rel.Noisy, CILow: rel.CILow, CIHigh: rel.CIHigh,
			BloomBias: p.ledger.AnyBloomBias(days), TS: time.Now().UTC(),
		}
		if p.params.Seed != nil {
			seed := dp.TruncateSeed(*p.params.Seed)
			record.Seed = &seed
		}
		if err := p.ledger.RecordRelease(ctx, tx, record); err != nil {
			return err
		}

		result = ReleaseResult{Release: rel, Day: end, Window: w, BloomBias: record.BloomBias, BudgetAfter: acct.Snapshot(entry)}
		return nil
	})
	if err != nil {
		return ReleaseResult{}, err
	}
	p.writeBudgetReport("MAU", result.BudgetAfter)
	return result, nil
}

// writeBudgetReport best-effort writes the latest accountant snapshot
// for metric to DATA_DIR/reports/budget-snapshot.json. A write
// failure is logged, never surfaced to the release caller, the
// report is a convenience, not a system of record.
func (p *Pipeline) writeBudgetReport(metric string, snap accountant.Snapshot) {
	if p.dataDir == "" {
		return
	}
	path := filepath.Join(p.dataDir, "reports", "budget-snapshot.json")

	report := map[string]accountant.Snapshot{}
	if existing, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(existing, &report)
	}
	report[metric] = snap

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		p.logger.Warn().Err(err).Msg("budget report: create reports dir failed")
		return
	}
	buf, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		p.logger.Warn().Err(err).Msg("budget report: marshal failed")
		return
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		p.logger.Warn().Err(err).Msg("budget report: write failed")
	}
}

// BudgetSnapshot reports metric's current-month spend. Read-only:
// takes the shared lock.
func (p *Pipeline) BudgetSnapshot(ctx context.Context, metric string, asOf time.Time) (accountant.Snapshot, error) {
	acct, ok := p.accountants[metric]
	if !ok {
		return accountant.Snapshot{}, faults.New(faults.KindValidation, "unknown metric", "metric", metric)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var snap accountant.Snapshot
	err := p.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		entry, err := p.ledger.LoadBudget(ctx, tx, metric, ledger.Month(asOf))
		if err != nil {
			return err
		}
		snap = acct.Snapshot(entry)
		return nil
	})
	return snap, err
}

func windowDays(end time.Time, w int) []time.Time {
	if w <= 0 {
		w = 1
	}
	start := end.AddDate(0, 0, -(w - 1))
	days := make([]time.Time, 0, w)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
