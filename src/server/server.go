package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradepilot/src/engine"
	"tradepilot/src/handler"
	"tradepilot/src/repository"
)

// StartServer runs the engine control surface until SIGINT/SIGTERM, then
// shuts down gracefully and stops every running engine.
func StartServer(port string, manager *engine.Manager) {
	positionRepo := repository.NewPositionRepository()
	tradeRepo := repository.NewTradeRepository()
	snapshotRepo := repository.NewSnapshotRepository()
	exceptionRepo := repository.NewExceptionRepository()

	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write error")
		}
	})

	// Control surface, token-guarded
	r.Group(func(r chi.Router) {
		r.Use(handler.AuthMiddleware)

		r.Post("/engines/{id}/start", handler.StartEngineHandler(manager))
		r.Post("/engines/{id}/stop", handler.StopEngineHandler(manager))
		r.Get("/engines/{id}/status", handler.EngineStatusHandler(manager))
		r.Get("/engines/{id}/positions", handler.ListPositionsHandler(positionRepo))
		r.Get("/engines/{id}/trades", handler.ListTradesHandler(tradeRepo))
		r.Get("/engines/{id}/snapshots", handler.ListSnapshotsHandler(snapshotRepo))
		r.Get("/engines/{id}/exceptions", handler.ListExceptionsHandler(exceptionRepo))
	})

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	manager.StopAll(ctx)

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
