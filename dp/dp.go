// Package dp implements the differentially private release
// mechanisms: Laplace noise for DAU, Gaussian noise for MAU, both
// scaled by the flippancy sensitivity W, plus a deterministic/secure
// RNG selection so releases can be made reproducible for tests.
package dp

import (
	"crypto/rand"
	"math"
	"math/big"
	mrand "math/rand"
)

// Mechanism names the noise distribution used for a release.
type Mechanism string

const (
	MechanismLaplace  Mechanism = "laplace"
	MechanismGaussian Mechanism = "gaussian"
)

// Source produces uniform floats in [0,1); satisfied by both
// math/rand.Rand (seeded, deterministic, for tests) and a thin
// wrapper over crypto/rand (production).
type Source interface {
	Float64() float64
}

// secureSource adapts crypto/rand to the Source interface.
type secureSource struct{}

func (secureSource) Float64() float64 {
	// 53 bits of randomness, same precision as math/rand.Float64.
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// crypto/rand failure is unrecoverable; callers of NewRNG
		// should treat this as fatal rather than silently degrade
		// privacy guarantees.
		panic("dp: crypto/rand unavailable: " + err.Error())
	}
	return float64(n.Int64()) / float64(1<<53)
}

// NewRNG returns a deterministic seeded source when seed != nil (for
// reproducible tests via DEFAULT_SEED), else a cryptographically
// secure source.
func NewRNG(seed *int64) Source {
	if seed != nil {
		return mrand.New(mrand.NewSource(*seed))
	}
	return secureSource{}
}

// TruncateSeed truncates a seed to 63 bits so it remains representable
// across storage formats that persist it as a signed int64 release
// field.
func TruncateSeed(seed int64) int64 {
	return seed & math.MaxInt64
}

// laplaceSample draws one sample from Laplace(0, scale) using inverse
// CDF sampling from a uniform source.
func laplaceSample(src Source, scale float64) float64 {
	u := src.Float64() - 0.5
	sign := 1.0
	if u < 0 {
		sign = -1.0
	}
	return -scale * sign * math.Log(1-2*math.Abs(u))
}

// gaussianSample draws one N(0, sigma^2) sample via Box-Muller.
func gaussianSample(src Source, sigma float64) float64 {
	u1 := src.Float64()
	if u1 <= 0 {
		u1 = 1e-300
	}
	u2 := src.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return sigma * z
}

// LaplaceScale returns the Laplace scale b = W/epsilon for DAU release.
func LaplaceScale(w float64, epsilon float64) float64 {
	return w / epsilon
}

// GaussianSigma returns sigma = W*sqrt(2*ln(1.25/delta))/epsilon for
// MAU release.
func GaussianSigma(w, epsilon, delta float64) float64 {
	return w * math.Sqrt(2*math.Log(1.25/delta)) / epsilon
}

// Release is the outcome of adding calibrated noise to a raw estimate:
// a rounded, clamped-nonnegative noisy count plus a symmetric 95% CI
// computed from the known noise distribution. Sketch variance is not
// folded into the CI.
type Release struct {
	Mechanism Mechanism
	Raw       float64
	Noisy     float64
	CILow     float64
	CIHigh    float64
}

// laplace95Quantile is the two-sided 97.5th percentile multiplier for
// a standard Laplace(0,1): ln(1/(2*(1-0.975))) = ln(20).
var laplace95Quantile = math.Log(20)

// normal95Quantile is the standard normal 97.5th percentile (z=1.96).
const normal95Quantile = 1.959963984540054

// ReleaseDAU samples Laplace noise scaled by w/epsilon and returns the
// noisy estimate with its 95% CI.
func ReleaseDAU(src Source, raw, w, epsilon float64) Release {
	scale := LaplaceScale(w, epsilon)
	noise := laplaceSample(src, scale)
	noisy := math.Max(0, math.Round(raw+noise))
	half := scale * laplace95Quantile
	return Release{
		Mechanism: MechanismLaplace,
		Raw:       raw,
		Noisy:     noisy,
		CILow:     math.Max(0, noisy-half),
		CIHigh:    noisy + half,
	}
}

// ReleaseMAU samples Gaussian noise scaled by GaussianSigma and
// returns the noisy estimate with its 95% CI.
func ReleaseMAU(src Source, raw, w, epsilon, delta float64) Release {
	sigma := GaussianSigma(w, epsilon, delta)
	noise := gaussianSample(src, sigma)
	noisy := math.Max(0, math.Round(raw+noise))
	half := sigma * normal95Quantile
	return Release{
		Mechanism: MechanismGaussian,
		Raw:       raw,
		Noisy:     noisy,
		CILow:     math.Max(0, noisy-half),
		CIHigh:    noisy + half,
	}
}
