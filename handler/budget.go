package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/pipeline"
)

// BudgetHandler serves GET /budget/{metric}.
type BudgetHandler struct {
	pipeline *pipeline.Pipeline
	logger   zerolog.Logger
}

// NewBudgetHandler creates a BudgetHandler.
func NewBudgetHandler(p *pipeline.Pipeline, logger zerolog.Logger) *BudgetHandler {
	return &BudgetHandler{pipeline: p, logger: logger}
}

// Snapshot handles GET /budget/{metric}?day=YYYY-MM-DD. day defaults
// to today (UTC) when omitted.
func (h *BudgetHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	metric := chi.URLParam(r, "metric")

	asOf := time.Now().UTC()
	if dayStr := r.URL.Query().Get("day"); dayStr != "" {
		d, err := time.Parse("2006-01-02", dayStr)
		if err != nil {
			writeError(w, faults.New(faults.KindValidation, "bad day", "day", dayStr))
			return
		}
		asOf = d
	}

	snap, err := h.pipeline.BudgetSnapshot(r.Context(), metric, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, budgetBody(snap))
}
