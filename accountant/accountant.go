// Package accountant enforces a monthly privacy budget: every DAU/MAU
// release is admitted only if it fits under a naive epsilon cap, with
// RDP and advanced composition tracked alongside as tighter,
// reported-only bounds for transparency.
//
// Follows a reserve-then-settle pattern for budget spend (check
// affordability, then commit the charge), generalized from an
// in-memory map of in-flight reservations to a single persisted
// ledger.BudgetEntry per (metric, month), since the admission check
// and the commit always happen inside one pipeline-owned SQL
// transaction rather than across a reserve/settle pair spanning an
// external call.
package accountant

import (
	"time"

	"github.com/turnstile-dp/censusd/dp"
	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/ledger"
)

// Config fixes the monthly caps and composition parameters for one
// metric's budget.
type Config struct {
	MonthlyCap    float64   // naive epsilon cap enforced per calendar month
	Delta         float64   // target delta for the metric's own releases
	AdvancedDelta float64   // slack delta' used by the advanced composition bound
	Orders        []float64 // RDP orders tracked; defaults to DefaultOrders if empty
}

// Accountant enforces Config against a metric's persisted budget.
type Accountant struct {
	cfg Config
}

// New constructs an Accountant, filling in DefaultOrders if Config
// didn't specify any.
func New(cfg Config) *Accountant {
	if len(cfg.Orders) == 0 {
		cfg.Orders = DefaultOrders
	}
	return &Accountant{cfg: cfg}
}

// CanRelease reports whether spending epsilon0 more on entry's metric
// this month would still fit under the naive cap: the conservative,
// always-sound bound actually enforced. RDP and advanced composition
// are reported in Snapshot but never loosen this gate.
func (a *Accountant) CanRelease(entry ledger.BudgetEntry, epsilon0 float64) error {
	if entry.NaiveSpent+epsilon0 > a.cfg.MonthlyCap {
		resetMonth := entry.Month
		if t, err := time.Parse("2006-01", entry.Month); err == nil {
			resetMonth = t.AddDate(0, 1, 0).Format("2006-01")
		}
		return faults.New(faults.KindBudgetExhausted, "monthly privacy budget exhausted",
			"metric", entry.Metric, "month", entry.Month,
			"spent", entry.NaiveSpent, "remaining", a.cfg.MonthlyCap-entry.NaiveSpent,
			"requested", epsilon0, "cap", a.cfg.MonthlyCap, "reset_month", resetMonth)
	}
	return nil
}

// Admit returns entry updated to reflect one more release: naive
// spend and release count incremented, and the RDP curve composed
// with this release's per-order cost. Callers must have already
// confirmed CanRelease and persist the returned entry in the same
// transaction as the release record, so the budget spend and the
// release it paid for always commit or roll back together.
func (a *Accountant) Admit(entry ledger.BudgetEntry, mechanism dp.Mechanism, epsilon0, w, sigma float64) ledger.BudgetEntry {
	fresh := rdpCost(mechanism, epsilon0, w, sigma, a.cfg.Orders)
	entry.RDP = composeRDP(entry.RDP, fresh)
	entry.NaiveSpent += epsilon0
	entry.ReleaseCount++
	return entry
}

// Snapshot is the budget report surfaced by GET /budget/{metric}.
type Snapshot struct {
	Metric          string
	Month           string
	NaiveSpent      float64
	NaiveRemaining  float64
	Cap             float64
	ReleaseCount    int
	RDPCurve        []ledger.RDPPoint
	BestDP          BestDPPair
	AdvancedEpsilon float64
	AdvancedDelta   float64
}

// BestDPPair is the tightest (epsilon, delta) pair the tracked RDP
// curve converts to, plus the order that achieved it.
type BestDPPair struct {
	Epsilon float64
	Delta   float64
	Order   float64
}

// Snapshot reports entry's current spend under every composition
// method this package tracks.
func (a *Accountant) Snapshot(entry ledger.BudgetEntry) Snapshot {
	epsilon, order := rdpToDP(entry.RDP, a.cfg.Delta)
	advEps, advDelta := advancedComposition(entry.ReleaseCount, a.perReleaseEpsilon(entry), a.cfg.Delta, a.cfg.AdvancedDelta)

	return Snapshot{
		Metric:          entry.Metric,
		Month:           entry.Month,
		NaiveSpent:      entry.NaiveSpent,
		NaiveRemaining:  a.cfg.MonthlyCap - entry.NaiveSpent,
		Cap:             a.cfg.MonthlyCap,
		ReleaseCount:    entry.ReleaseCount,
		RDPCurve:        entry.RDP,
		BestDP:          BestDPPair{Epsilon: epsilon, Delta: a.cfg.Delta, Order: order},
		AdvancedEpsilon: advEps,
		AdvancedDelta:   advDelta,
	}
}

// perReleaseEpsilon approximates the uniform per-release epsilon used
// by the advanced composition bound, which assumes identical
// mechanisms. The average naive spend per release is the best
// available estimate when releases may have used different epsilon0
// values over the month.
func (a *Accountant) perReleaseEpsilon(entry ledger.BudgetEntry) float64 {
	if entry.ReleaseCount == 0 {
		return 0
	}
	return entry.NaiveSpent / float64(entry.ReleaseCount)
}
