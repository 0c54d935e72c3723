package accountant

import (
	"math"

	"github.com/turnstile-dp/censusd/dp"
	"github.com/turnstile-dp/censusd/ledger"
)

// DefaultOrders are the Rényi orders tracked for composition when a
// caller doesn't supply its own list.
var DefaultOrders = []float64{1.5, 2, 3, 4, 8, 16, 32, 64}

// rdpCost returns, for each order alpha, the RDP epsilon a single
// release of mechanism spends.
//
// A pure epsilon-DP mechanism (Laplace) is (alpha, epsilon0)-RDP for
// every alpha > 1; epsilon0 itself is a valid, if loose, bound.
// A Gaussian mechanism with sensitivity w and stddev sigma is exactly
// (alpha, alpha*w^2/(2*sigma^2))-RDP.
func rdpCost(mechanism dp.Mechanism, epsilon0, w, sigma float64, orders []float64) []ledger.RDPPoint {
	out := make([]ledger.RDPPoint, len(orders))
	for i, alpha := range orders {
		var eps float64
		switch mechanism {
		case dp.MechanismGaussian:
			eps = alpha * w * w / (2 * sigma * sigma)
		default:
			eps = epsilon0
		}
		out[i] = ledger.RDPPoint{Order: alpha, Epsilon: eps}
	}
	return out
}

// composeRDP adds a fresh release's per-order cost onto the running
// total; RDP composes additively across independent mechanisms at
// the same order.
func composeRDP(total []ledger.RDPPoint, fresh []ledger.RDPPoint) []ledger.RDPPoint {
	if len(total) == 0 {
		out := make([]ledger.RDPPoint, len(fresh))
		copy(out, fresh)
		return out
	}
	byOrder := make(map[float64]float64, len(total))
	for _, p := range total {
		byOrder[p.Order] = p.Epsilon
	}
	for _, p := range fresh {
		byOrder[p.Order] += p.Epsilon
	}
	out := make([]ledger.RDPPoint, 0, len(byOrder))
	for _, p := range fresh {
		out = append(out, ledger.RDPPoint{Order: p.Order, Epsilon: byOrder[p.Order]})
	}
	return out
}

// rdpToDP converts a tracked RDP curve into the tightest (epsilon,
// delta)-DP pair reachable at the given target delta, per the
// standard conversion epsilon = epsilon(alpha) + ln(1/delta)/(alpha-1),
// minimized over every tracked order with alpha > 1.
func rdpToDP(curve []ledger.RDPPoint, targetDelta float64) (epsilon float64, order float64) {
	best := math.Inf(1)
	bestOrder := 0.0
	for _, p := range curve {
		if p.Order <= 1 {
			continue
		}
		candidate := p.Epsilon + math.Log(1/targetDelta)/(p.Order-1)
		if candidate < best {
			best = candidate
			bestOrder = p.Order
		}
	}
	if math.IsInf(best, 1) {
		return 0, 0
	}
	return best, bestOrder
}

// advancedComposition returns the Dwork-Rothblum-Vadhan strong
// composition bound for k releases each (epsilon0, delta0)-DP,
// composed at slack deltaPrime: a tighter alternative to naive
// (k*epsilon0) summation when many releases share one epsilon0.
func advancedComposition(k int, epsilon0, delta0, deltaPrime float64) (epsilon, delta float64) {
	if k <= 0 {
		return 0, 0
	}
	kf := float64(k)
	epsilon = math.Sqrt(2*kf*math.Log(1/deltaPrime))*epsilon0 + kf*epsilon0*(math.Exp(epsilon0)-1)
	delta = kf*delta0 + deltaPrime
	return epsilon, delta
}
