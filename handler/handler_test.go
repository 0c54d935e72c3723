package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/turnstile-dp/censusd/accountant"
	"github.com/turnstile-dp/censusd/hashing"
	"github.com/turnstile-dp/censusd/ledger"
	"github.com/turnstile-dp/censusd/pipeline"
	"github.com/turnstile-dp/censusd/sketch"
	"github.com/turnstile-dp/censusd/window"
)

func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	path := filepath.Join(t.TempDir(), "censusd.db")
	led, err := ledger.Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })

	hashMgr := hashing.NewManager(zerolog.Nop(), []byte("0123456789abcdef0123456789abcdef"), mustDay("2025-01-01"), 400)
	win := window.NewStore(zerolog.Nop(), window.Config{Impl: sketch.ImplSet, Rebuilder: led})

	seed := int64(42)
	params := pipeline.Params{
		WindowDays: 28, W: 2, SketchImpl: sketch.ImplSet, SketchK: 1024, Seed: &seed,
		EpsilonDAU: 1.0, EpsilonMAU: 1.0, Delta: 1e-6,
	}
	dauAcct := accountant.New(accountant.Config{MonthlyCap: 100, Delta: 1e-6, AdvancedDelta: 1e-6})
	mauAcct := accountant.New(accountant.Config{MonthlyCap: 100, Delta: 1e-6, AdvancedDelta: 1e-6})

	return pipeline.New(zerolog.Nop(), pipeline.DefaultConfig(), params, led, win, hashMgr, dauAcct, mauAcct)
}

func mustDay(s string) time.Time {
	d, err := ledger.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func withChiParam(r *http.Request, key, val string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, val)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestEventIngestAccepted(t *testing.T) {
	p := newTestPipeline(t)
	h := NewEventHandler(p, zerolog.Nop())

	body := bytes.NewBufferString(`{"events":[{"user_id":"alice","op":"+","day":"2025-10-01"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/event", body)
	rec := httptest.NewRecorder()

	h.Ingest(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, float64(1), resp["accepted"])
}

func TestEventIngestRejectsBadOp(t *testing.T) {
	p := newTestPipeline(t)
	h := NewEventHandler(p, zerolog.Nop())

	body := bytes.NewBufferString(`{"events":[{"user_id":"alice","op":"?","day":"2025-10-01"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/event", body)
	rec := httptest.NewRecorder()

	h.Ingest(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDAUReleaseViaHandler(t *testing.T) {
	p := newTestPipeline(t)
	eh := NewEventHandler(p, zerolog.Nop())
	qh := NewQueryHandler(p, zerolog.Nop(), "set", true)

	body := bytes.NewBufferString(`{"events":[{"user_id":"alice","op":"+","day":"2025-10-01"},{"user_id":"bob","op":"+","day":"2025-10-01"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/event", body)
	rec := httptest.NewRecorder()
	eh.Ingest(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/dau/2025-10-01", nil)
	req = withChiParam(req, "day", "2025-10-01")
	rec = httptest.NewRecorder()
	qh.DAU(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, float64(2), resp["raw"])
	require.Contains(t, resp, "budget")
}

func TestBudgetSnapshotViaHandler(t *testing.T) {
	p := newTestPipeline(t)
	bh := NewBudgetHandler(p, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/budget/DAU", nil)
	req = withChiParam(req, "metric", "DAU")
	rec := httptest.NewRecorder()
	bh.Snapshot(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, float64(0), resp["epsilon_spent"])
}

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	Health(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
