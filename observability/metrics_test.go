package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevMetricsGateSketchCardinality(t *testing.T) {
	prod := New(false)
	prod.ObserveSketchCardinality("DAU", "2025-10-01", 42)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	prod.Handler().ServeHTTP(rec, req)
	assert.NotContains(t, rec.Body.String(), "turnstile_sketch_cardinality")
}

func TestDevMetricsExposedInDevelopment(t *testing.T) {
	dev := New(true)
	dev.ObserveSketchCardinality("DAU", "2025-10-01", 42)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	dev.Handler().ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "turnstile_sketch_cardinality")
}

func TestReleasesTotalIncrementsByLabel(t *testing.T) {
	m := New(false)
	m.ReleasesTotal.WithLabelValues("DAU", "laplace").Inc()
	m.ReleasesTotal.WithLabelValues("DAU", "laplace").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	require.Contains(t, rec.Body.String(), `turnstile_releases_total{mechanism="laplace",metric="DAU"} 2`)
}
