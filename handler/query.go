package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/turnstile-dp/censusd/accountant"
	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/pipeline"
)

// Version is the released binary's version string, surfaced on every
// DAU/MAU response so clients can tell which release produced a
// number.
const Version = "0.1.0"

// QueryHandler serves GET /dau/{day} and GET /mau.
type QueryHandler struct {
	pipeline   *pipeline.Pipeline
	logger     zerolog.Logger
	sketchImpl string
	devMode    bool
}

// NewQueryHandler creates a QueryHandler. sketchImpl is echoed in
// responses; devMode gates whether the pre-noise raw count is
// included.
func NewQueryHandler(p *pipeline.Pipeline, logger zerolog.Logger, sketchImpl string, devMode bool) *QueryHandler {
	return &QueryHandler{pipeline: p, logger: logger, sketchImpl: sketchImpl, devMode: devMode}
}

// DAU handles GET /dau/{day}.
func (h *QueryHandler) DAU(w http.ResponseWriter, r *http.Request) {
	dayStr := chi.URLParam(r, "day")
	day, err := time.Parse("2006-01-02", dayStr)
	if err != nil {
		writeError(w, faults.New(faults.KindValidation, "bad day", "day", dayStr))
		return
	}

	rel, err := h.pipeline.ReleaseDAU(r.Context(), day)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.releaseBody(day, rel))
}

// MAU handles GET /mau?end=YYYY-MM-DD&window=N.
func (h *QueryHandler) MAU(w http.ResponseWriter, r *http.Request) {
	endStr := r.URL.Query().Get("end")
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		writeError(w, faults.New(faults.KindValidation, "bad end", "end", endStr))
		return
	}

	window := 0
	if wStr := r.URL.Query().Get("window"); wStr != "" {
		window, err = strconv.Atoi(wStr)
		if err != nil || window <= 0 {
			writeError(w, faults.New(faults.KindValidation, "bad window", "window", wStr))
			return
		}
	}

	rel, err := h.pipeline.ReleaseMAU(r.Context(), end, window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.releaseBody(end, rel))
}

func (h *QueryHandler) releaseBody(day time.Time, rel pipeline.ReleaseResult) map[string]any {
	body := map[string]any{
		"day":              day.Format("2006-01-02"),
		"estimate":         rel.Noisy,
		"lower_95":         rel.CILow,
		"upper_95":         rel.CIHigh,
		"epsilon_used":     budgetEpsilonUsed(rel),
		"delta":            budgetDelta(rel),
		"mechanism":        rel.Mechanism,
		"sketch_impl":      h.sketchImpl,
		"budget_remaining": rel.BudgetAfter.NaiveRemaining,
		"version":          Version,
		"budget":           budgetBody(rel.BudgetAfter),
	}
	if h.devMode {
		body["raw"] = rel.Raw
	}
	return body
}

func budgetEpsilonUsed(rel pipeline.ReleaseResult) float64 {
	if rel.BudgetAfter.ReleaseCount == 0 {
		return 0
	}
	return rel.BudgetAfter.NaiveSpent / float64(rel.BudgetAfter.ReleaseCount)
}

func budgetDelta(rel pipeline.ReleaseResult) float64 {
	return rel.BudgetAfter.BestDP.Delta
}

func budgetBody(snap accountant.Snapshot) map[string]any {
	return map[string]any{
		"epsilon_spent":     snap.NaiveSpent,
		"epsilon_remaining": snap.NaiveRemaining,
		"epsilon_cap":       snap.Cap,
		"rdp_best": map[string]any{
			"alpha":   snap.BestDP.Order,
			"epsilon": snap.BestDP.Epsilon,
			"delta":   snap.BestDP.Delta,
		},
		"advanced": map[string]any{
			"epsilon": snap.AdvancedEpsilon,
			"delta":   snap.AdvancedDelta,
		},
		"release_count": snap.ReleaseCount,
	}
}
