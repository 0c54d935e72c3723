package accountant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnstile-dp/censusd/dp"
	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/ledger"
)

func TestCanReleaseBlocksOverCap(t *testing.T) {
	a := New(Config{MonthlyCap: 1.0, Delta: 1e-6, AdvancedDelta: 1e-6})
	entry := ledger.BudgetEntry{Metric: "DAU", Month: "2025-10", NaiveSpent: 0.9}

	require.NoError(t, a.CanRelease(entry, 0.05))

	err := a.CanRelease(entry, 0.5)
	require.Error(t, err)
	assert.Equal(t, faults.KindBudgetExhausted, faults.Of(err))
}

func TestAdmitAccumulatesNaiveSpendAndCount(t *testing.T) {
	a := New(Config{MonthlyCap: 10, Delta: 1e-6, AdvancedDelta: 1e-6})
	entry := ledger.BudgetEntry{Metric: "DAU", Month: "2025-10"}

	entry = a.Admit(entry, dp.MechanismLaplace, 0.3, 2, 0)
	entry = a.Admit(entry, dp.MechanismLaplace, 0.3, 2, 0)

	assert.InDelta(t, 0.6, entry.NaiveSpent, 1e-9)
	assert.Equal(t, 2, entry.ReleaseCount)
}

func TestRDPCompositionIsMonotoneIncreasing(t *testing.T) {
	a := New(Config{MonthlyCap: 100, Delta: 1e-6, AdvancedDelta: 1e-6, Orders: []float64{2, 4, 8}})
	entry := ledger.BudgetEntry{Metric: "MAU", Month: "2025-10"}

	sigma := dp.GaussianSigma(2, 0.5, 1e-6)
	entry = a.Admit(entry, dp.MechanismGaussian, 0.5, 2, sigma)
	after := a.Snapshot(entry)

	require.Len(t, after.RDPCurve, 3)
	for i, p := range after.RDPCurve {
		assert.Greater(t, p.Epsilon, 0.0)
		if i > 0 {
			// higher orders spend more RDP epsilon for the Gaussian mechanism
			assert.Greater(t, p.Epsilon, after.RDPCurve[i-1].Epsilon)
		}
	}
}

func TestRDPCompositionAdditiveAcrossReleases(t *testing.T) {
	a := New(Config{MonthlyCap: 100, Delta: 1e-6, AdvancedDelta: 1e-6, Orders: []float64{4}})
	entry := ledger.BudgetEntry{Metric: "DAU", Month: "2025-10"}

	entry = a.Admit(entry, dp.MechanismLaplace, 0.3, 2, 0)
	oneRelease := entry.RDP[0].Epsilon

	entry = a.Admit(entry, dp.MechanismLaplace, 0.3, 2, 0)
	twoReleases := entry.RDP[0].Epsilon

	assert.InDelta(t, oneRelease*2, twoReleases, 1e-9)
}

func TestSnapshotReportsRDPAndAdvancedBounds(t *testing.T) {
	a := New(Config{MonthlyCap: 100, Delta: 1e-6, AdvancedDelta: 1e-6})
	entry := ledger.BudgetEntry{Metric: "DAU", Month: "2025-10"}
	for i := 0; i < 20; i++ {
		entry = a.Admit(entry, dp.MechanismLaplace, 0.1, 2, 0)
	}

	snap := a.Snapshot(entry)
	assert.InDelta(t, 2.0, snap.NaiveSpent, 1e-9)
	// Laplace is charged its full epsilon0 at every RDP order, so here
	// the RDP-converted bound (~2.22) and the advanced composition bound
	// (~2.56) both sit above naive 2.0; the test checks both are reported.
	assert.Greater(t, snap.BestDP.Epsilon, 0.0)
	assert.Greater(t, snap.AdvancedEpsilon, 0.0)
}

func TestResetBudgetEntryZeroesAccounting(t *testing.T) {
	a := New(Config{MonthlyCap: 10, Delta: 1e-6, AdvancedDelta: 1e-6})
	entry := ledger.BudgetEntry{Metric: "DAU", Month: "2025-10"}
	entry = a.Admit(entry, dp.MechanismLaplace, 1, 2, 0)
	require.Greater(t, entry.NaiveSpent, 0.0)

	reset := ledger.BudgetEntry{Metric: entry.Metric, Month: entry.Month}
	require.NoError(t, a.CanRelease(reset, a.cfg.MonthlyCap))
}
