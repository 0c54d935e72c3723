package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/turnstile-dp/censusd/faults"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a faults.Kind onto an HTTP status and a structured
// error body. BudgetExhausted carries extra fields (metric, cap,
// spent, remaining, reset_month) for the caller to act on.
func writeError(w http.ResponseWriter, err error) {
	var fe *faults.Error
	if !errors.As(err, &fe) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "fatal", "message": err.Error(),
		})
		return
	}

	status := http.StatusInternalServerError
	switch fe.Kind {
	case faults.KindValidation:
		status = http.StatusBadRequest
	case faults.KindAuth:
		status = http.StatusUnauthorized
	case faults.KindRateLimited:
		status = http.StatusTooManyRequests
	case faults.KindBudgetExhausted:
		status = http.StatusTooManyRequests
	case faults.KindConflict:
		status = http.StatusConflict
	case faults.KindTransient:
		status = http.StatusServiceUnavailable
	case faults.KindFatal:
		status = http.StatusInternalServerError
	}

	body := map[string]any{
		"error":   fe.Kind.String(),
		"message": fe.Message,
	}
	for k, v := range fe.Fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}
