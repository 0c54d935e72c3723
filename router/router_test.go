package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/turnstile-dp/censusd/accountant"
	"github.com/turnstile-dp/censusd/config"
	"github.com/turnstile-dp/censusd/hashing"
	"github.com/turnstile-dp/censusd/ledger"
	"github.com/turnstile-dp/censusd/observability"
	"github.com/turnstile-dp/censusd/pipeline"
	"github.com/turnstile-dp/censusd/sketch"
	"github.com/turnstile-dp/censusd/window"
)

func testSetup(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Env:              "test",
		ServiceAPIKey:    "",
		RateLimitEnabled: false,
		MaxBodyBytes:     1 << 20,
		SketchImpl:       sketch.ImplSet,
	}
	log := zerolog.New(io.Discard).With().Timestamp().Logger()

	path := filepath.Join(t.TempDir(), "censusd.db")
	led, err := ledger.Open(path, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })

	hashMgr := hashing.NewManager(log, []byte("0123456789abcdef0123456789abcdef"), mustDay("2025-01-01"), 400)
	win := window.NewStore(log, window.Config{Impl: sketch.ImplSet, Rebuilder: led})
	params := pipeline.Params{WindowDays: 28, W: 2, SketchImpl: sketch.ImplSet, SketchK: 1024, EpsilonDAU: 1.0, EpsilonMAU: 1.0, Delta: 1e-6}
	dauAcct := accountant.New(accountant.Config{MonthlyCap: 100, Delta: 1e-6, AdvancedDelta: 1e-6})
	mauAcct := accountant.New(accountant.Config{MonthlyCap: 100, Delta: 1e-6, AdvancedDelta: 1e-6})
	p := pipeline.New(log, pipeline.DefaultConfig(), params, led, win, hashMgr, dauAcct, mauAcct)

	metrics := observability.New(false)
	return New(cfg, log, p, metrics)
}

func mustDay(s string) time.Time {
	d, err := ledger.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestHealthEndpoint(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUnauthenticatedEventRejected(t *testing.T) {
	r := New(&config.Config{
		Env: "test", ServiceAPIKey: "secret", MaxBodyBytes: 1 << 20, SketchImpl: sketch.ImplSet,
	}, zerolog.New(io.Discard), nil, observability.New(false))

	req := httptest.NewRequest(http.MethodPost, "/event", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORSPreflightHeaders(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodOptions, "/event", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeadersPresent(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Strict-Transport-Security"} {
		require.NotEmpty(t, rec.Header().Get(h))
	}
}
