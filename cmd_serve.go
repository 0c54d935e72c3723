package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/turnstile-dp/censusd/observability"
	"github.com/turnstile-dp/censusd/router"
)

// serveCmd starts the HTTP server: POST /event, GET /dau/{day},
// GET /mau, GET /budget/{metric}, plus /healthz and /metrics.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			a.pipe.Start(ctx)
			defer a.pipe.Stop()

			metrics := observability.New(a.cfg.IsDevelopment())
			handler := router.New(a.cfg, a.log, a.pipe, metrics)

			return runServer(ctx, a, handler)
		},
	}
}

func runServer(ctx context.Context, a *app, handler http.Handler) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulTimeout)
	defer cancel()
	a.log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}
