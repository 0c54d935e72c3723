package dp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLaplaceNoiseSanity(t *testing.T) {
	const trials = 10000
	const w, epsilon = 2.0, 0.3
	scale := LaplaceScale(w, epsilon)

	src := rand.New(rand.NewSource(42))
	var sum, sumSq float64
	for i := 0; i < trials; i++ {
		s := laplaceSample(src, scale)
		sum += s
		sumSq += s * s
	}
	mean := sum / trials
	variance := sumSq/trials - mean*mean

	stdErr := math.Sqrt(2*scale*scale) / math.Sqrt(trials)
	assert.Less(t, math.Abs(mean), 3*stdErr, "sample mean %v too far from 0 (stderr %v)", mean, stdErr)

	wantVariance := 2 * scale * scale
	assert.InDelta(t, wantVariance, variance, wantVariance*0.15)
}

func TestGaussianNoiseSanity(t *testing.T) {
	const trials = 10000
	const w, epsilon, delta = 2.0, 0.5, 1e-6
	sigma := GaussianSigma(w, epsilon, delta)

	src := rand.New(rand.NewSource(7))
	var sum, sumSq float64
	for i := 0; i < trials; i++ {
		s := gaussianSample(src, sigma)
		sum += s
		sumSq += s * s
	}
	mean := sum / trials
	variance := sumSq/trials - mean*mean

	stdErr := sigma / math.Sqrt(trials)
	assert.Less(t, math.Abs(mean), 3*stdErr)
	assert.InDelta(t, sigma*sigma, variance, sigma*sigma*0.15)
}

func TestReleaseDAUNonNegativeAndRounded(t *testing.T) {
	src := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		rel := ReleaseDAU(src, 5, 2, 0.3)
		assert.GreaterOrEqual(t, rel.Noisy, 0.0)
		assert.Equal(t, rel.Noisy, math.Round(rel.Noisy))
		assert.LessOrEqual(t, rel.CILow, rel.Noisy)
		assert.GreaterOrEqual(t, rel.CIHigh, rel.Noisy)
	}
}

func TestTruncateSeedFitsInt63(t *testing.T) {
	seed := int64(-123456789)
	truncated := TruncateSeed(seed)
	assert.GreaterOrEqual(t, truncated, int64(0))
}

func TestDeterministicSeedReproducible(t *testing.T) {
	seed := int64(99)
	a := NewRNG(&seed)
	b := NewRNG(&seed)
	relA := ReleaseDAU(a, 10, 2, 0.3)
	relB := ReleaseDAU(b, 10, 2, 0.3)
	assert.Equal(t, relA.Noisy, relB.Noisy)
}
