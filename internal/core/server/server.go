package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openterrain/resolver/internal/core/config"
	"github.com/openterrain/resolver/internal/core/health"
	"github.com/openterrain/resolver/internal/core/middleware"
	"github.com/openterrain/resolver/internal/core/router"
	"github.com/openterrain/resolver/internal/resolver"
)

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, ops *resolver.Ops) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/v1/elevation", router.HandleElevation(logger, ops))
	r.Post("/v1/elevations", router.HandleBatch(logger, ops, cfg.BatchMaxPoints, cfg.BatchConcurrency))
	r.Get("/v1/health", router.HandleHealth(ops))
	r.Post("/admin/circuit-reset", router.HandleCircuitReset(logger, ops))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
