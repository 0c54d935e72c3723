package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/turnstile-dp/censusd/config"
)

// TimeoutMiddleware applies a configurable deadline to every request,
// cancelling the handler's context if it runs past the limit.
type TimeoutMiddleware struct {
	logger  zerolog.Logger
	timeout time.Duration
}

// NewTimeoutMiddleware creates a new timeout middleware using
// cfg.GracefulTimeout as the default per-request deadline.
func NewTimeoutMiddleware(logger zerolog.Logger, cfg *config.Config) *TimeoutMiddleware {
	return &TimeoutMiddleware{
		logger:  logger,
		timeout: cfg.GracefulTimeout,
	}
}

// Handler returns the HTTP middleware handler.
func (t *TimeoutMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timeout := t.resolveTimeout(r)
		if timeout <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		done := make(chan struct{})
		tw := &timeoutWriter{ResponseWriter: w}

		go func() {
			next.ServeHTTP(tw, r.WithContext(ctx))
			close(done)
		}()

		select {
		case <-done:
			tw.mu.Lock()
			alreadyTimedOut := tw.timedOut
			tw.mu.Unlock()
			if alreadyTimedOut {
				t.logger.Debug().Str("path", r.URL.Path).Msg("handler goroutine finished after timeout")
			}
			return
		case <-ctx.Done():
			tw.mu.Lock()
			tw.timedOut = true
			if !tw.wroteHeader {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusGatewayTimeout)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":   "timeout",
					"message": "request timed out after " + timeout.String(),
				})
				tw.wroteHeader = true
			}
			tw.mu.Unlock()

			t.logger.Warn().
				Str("path", r.URL.Path).
				Dur("timeout", timeout).
				Msg("request timed out, handler goroutine still running with cancelled context")

			<-done
		}
	})
}

// resolveTimeout determines the timeout for this request: a
// client-supplied X-Timeout-Seconds header (capped at 5 minutes) takes
// precedence over the configured default.
func (t *TimeoutMiddleware) resolveTimeout(r *http.Request) time.Duration {
	if headerVal := r.Header.Get("X-Timeout-Seconds"); headerVal != "" {
		if seconds, err := strconv.Atoi(headerVal); err == nil && seconds > 0 {
			timeout := time.Duration(seconds) * time.Second
			const maxTimeout = 5 * time.Minute
			if timeout > maxTimeout {
				timeout = maxTimeout
			}
			return timeout
		}
	}
	return t.timeout
}

// timeoutWriter wraps http.ResponseWriter for safe concurrent access
// between the handler goroutine and the timeout goroutine.
type timeoutWriter struct {
	http.ResponseWriter
	mu          sync.Mutex
	wroteHeader bool
	timedOut    bool
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.wroteHeader {
		return
	}
	tw.wroteHeader = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, context.DeadlineExceeded
	}
	if !tw.wroteHeader {
		tw.wroteHeader = true
		tw.ResponseWriter.WriteHeader(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}

func (tw *timeoutWriter) Flush() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if f, ok := tw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
