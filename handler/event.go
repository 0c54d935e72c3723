// Package handler holds one file per HTTP resource: event.go,
// query.go, budget.go, health.go.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/ledger"
	"github.com/turnstile-dp/censusd/pipeline"
)

// EventHandler serves POST /event.
type EventHandler struct {
	pipeline *pipeline.Pipeline
	logger   zerolog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(p *pipeline.Pipeline, logger zerolog.Logger) *EventHandler {
	return &EventHandler{pipeline: p, logger: logger}
}

type eventPayload struct {
	UserID   string            `json:"user_id"`
	Op       string            `json:"op"`
	Day      string            `json:"day"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type eventRequest struct {
	Events []eventPayload `json:"events"`
}

// Ingest handles POST /event: body {events:[{user_id,op,day,metadata?}]}.
// Ingestion never touches the privacy budget, so it cannot itself
// return budget_exhausted, only validation_error on malformed input.
func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, faults.New(faults.KindValidation, "malformed request body: "+err.Error()))
		return
	}

	events := make([]pipeline.Event, 0, len(req.Events))
	for _, ep := range req.Events {
		day, err := time.Parse("2006-01-02", ep.Day)
		if err != nil {
			writeError(w, faults.New(faults.KindValidation, "bad day", "day", ep.Day))
			return
		}
		events = append(events, pipeline.Event{
			UserID:   ep.UserID,
			Day:      day,
			Op:       ledger.Op(ep.Op),
			Metadata: ep.Metadata,
		})
	}

	accepted, err := h.pipeline.IngestSync(r.Context(), events)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted})
}
