package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradepilot/src/model"
	"tradepilot/src/repository"
	"tradepilot/src/security"
)

type engineManager interface {
	Start(ctx context.Context, engineID uint) error
	Stop(ctx context.Context, engineID uint) error
	Status(engineID uint) string
}

// AuthMiddleware checks the bearer token against the configured bcrypt hash.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !security.VerifyControlToken(token) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func engineIDParam(r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

// StartEngineHandler starts one engine's scheduler.
func StartEngineHandler(manager engineManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := engineIDParam(r)
		if !ok {
			http.Error(w, "invalid engine id", http.StatusBadRequest)
			return
		}

		if err := manager.Start(r.Context(), id); err != nil {
			logger.WithField("engine_id", id).WithError(err).Error("failed to start engine")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": model.EngineStatusRunning})
	}
}

// StopEngineHandler stops one engine's scheduler.
func StopEngineHandler(manager engineManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := engineIDParam(r)
		if !ok {
			http.Error(w, "invalid engine id", http.StatusBadRequest)
			return
		}

		if err := manager.Stop(r.Context(), id); err != nil {
			logger.WithField("engine_id", id).WithError(err).Error("failed to stop engine")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": model.EngineStatusStopped})
	}
}

// EngineStatusHandler reports whether one engine is scheduled.
func EngineStatusHandler(manager engineManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := engineIDParam(r)
		if !ok {
			http.Error(w, "invalid engine id", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": manager.Status(id)})
	}
}

// ListPositionsHandler returns the engine's current ledger rows.
func ListPositionsHandler(repo *repository.PositionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := engineIDParam(r)
		if !ok {
			http.Error(w, "invalid engine id", http.StatusBadRequest)
			return
		}

		positions, err := repo.FindByEngine(r.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, positions)
	}
}

// ListTradesHandler returns the engine's newest trades.
func ListTradesHandler(repo *repository.TradeRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := engineIDParam(r)
		if !ok {
			http.Error(w, "invalid engine id", http.StatusBadRequest)
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		trades, err := repo.FindLatestByEngine(r.Context(), id, limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, trades)
	}
}

// ListExceptionsHandler returns the engine's newest captured exceptions.
func ListExceptionsHandler(repo *repository.ExceptionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := engineIDParam(r)
		if !ok {
			http.Error(w, "invalid engine id", http.StatusBadRequest)
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		exceptions, err := repo.FindLatestByEngine(r.Context(), id, limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, exceptions)
	}
}

type snapshotResponse struct {
	model.AccountSnapshot
	DisplayValue float64 `json:"display_value"`
}

// ListSnapshotsHandler returns the engine's newest account snapshots. Each row
// carries display_value, the realized total with unrealized PnL added back.
func ListSnapshotsHandler(repo *repository.SnapshotRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := engineIDParam(r)
		if !ok {
			http.Error(w, "invalid engine id", http.StatusBadRequest)
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		snapshots, err := repo.FindLatestByEngine(r.Context(), id, limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		rows := make([]snapshotResponse, 0, len(snapshots))
		for _, s := range snapshots {
			rows = append(rows, snapshotResponse{AccountSnapshot: s, DisplayValue: s.DisplayValue()})
		}
		writeJSON(w, http.StatusOK, rows)
	}
}
