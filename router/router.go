// Package router builds the chi.Router exposing the HTTP surface,
// wiring the middleware chain in a fixed order: CORS, security
// headers, request ID, recoverer, request logger, body size limit,
// auth, rate limit.
package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/turnstile-dp/censusd/config"
	"github.com/turnstile-dp/censusd/handler"
	censusmw "github.com/turnstile-dp/censusd/middleware"
	"github.com/turnstile-dp/censusd/observability"
	"github.com/turnstile-dp/censusd/pipeline"
)

// New returns a configured chi Router with the full middleware chain
// and every route mounted.
func New(cfg *config.Config, appLogger zerolog.Logger, p *pipeline.Pipeline, metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(censusmw.CORSMiddleware([]string{"*"}))
	r.Use(censusmw.SecurityHeadersMiddleware)
	r.Use(censusmw.RequestIDMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(mwRequestLogger(appLogger, metrics))
	r.Use(mwMaxBodySize(cfg.MaxBodyBytes))

	r.Get("/healthz", handler.Health)
	if metrics != nil {
		r.Get("/metrics", metrics.Handler().ServeHTTP)
	}

	authMW := censusmw.NewAuthMiddleware(appLogger, "X-API-Key", cfg.ServiceAPIKey)
	rateLimiter := censusmw.NewRateLimiter(appLogger, cfg.RateLimitEnabled, cfg.RateLimitRPM, cfg.RateLimitBurst)
	timeoutMW := censusmw.NewTimeoutMiddleware(appLogger, cfg)
	if metrics != nil {
		rateLimiter.OnReject = func(keyPrefix string) {
			metrics.RateLimitRejectedTotal.WithLabelValues(keyPrefix).Inc()
		}
	}

	eventHandler := handler.NewEventHandler(p, appLogger)
	queryHandler := handler.NewQueryHandler(p, appLogger, string(cfg.SketchImpl), cfg.IsDevelopment())
	budgetHandler := handler.NewBudgetHandler(p, appLogger)

	r.Group(func(r chi.Router) {
		r.Use(authMW.Handler)
		r.Use(rateLimiter.Handler)
		r.Use(timeoutMW.Handler)

		r.Post("/event", eventHandler.Ingest)
		r.Get("/dau/{day}", queryHandler.DAU)
		r.Get("/mau", queryHandler.MAU)
		r.Get("/budget/{metric}", budgetHandler.Snapshot)
	})

	return r
}

// mwMaxBodySize returns middleware that rejects requests whose body
// exceeds maxBytes.
func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && r.ContentLength > maxBytes {
				http.Error(w, `{"error":"request_too_large","message":"request body too large"}`, http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func mwRequestLogger(appLogger zerolog.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			dur := time.Since(start)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}
			status := rw.Status()

			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", r.Header.Get("X-Request-ID")).
				Int("status", status).
				Dur("duration", dur).
				Msg("request completed")

			if metrics != nil {
				metrics.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
				metrics.RequestLatency.WithLabelValues(route, r.Method).Observe(dur.Seconds())
				if status >= 500 {
					metrics.Requests5xxTotal.WithLabelValues(route, r.Method).Inc()
				}
			}
		})
	}
}
