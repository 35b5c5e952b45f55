package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradepilot/src/model"
	"tradepilot/src/repository"
	"tradepilot/src/security"
)

type mockManager struct {
	startErr  error
	stopErr   error
	status    string
	startedID uint
	stoppedID uint
}

func (m *mockManager) Start(ctx context.Context, engineID uint) error {
	m.startedID = engineID
	return m.startErr
}

func (m *mockManager) Stop(ctx context.Context, engineID uint) error {
	m.stoppedID = engineID
	return m.stopErr
}

func (m *mockManager) Status(engineID uint) string {
	return m.status
}

func newEngineRouter(manager engineManager) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/engines/{id}/start", StartEngineHandler(manager))
	r.Post("/engines/{id}/stop", StopEngineHandler(manager))
	r.Get("/engines/{id}/status", EngineStatusHandler(manager))
	return r
}

func TestStartEngineHandler(t *testing.T) {
	manager := &mockManager{}
	router := newEngineRouter(manager)

	req := httptest.NewRequest(http.MethodPost, "/engines/7/start", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if manager.startedID != 7 {
		t.Fatalf("expected engine 7 started, got %d", manager.startedID)
	}

	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if body["status"] != model.EngineStatusRunning {
		t.Fatalf("expected running status, got %v", body)
	}
}

func TestStartEngineHandlerInvalidID(t *testing.T) {
	router := newEngineRouter(&mockManager{})

	req := httptest.NewRequest(http.MethodPost, "/engines/abc/start", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestStartEngineHandlerFailure(t *testing.T) {
	router := newEngineRouter(&mockManager{startErr: errors.New("engine 7 not found")})

	req := httptest.NewRequest(http.MethodPost, "/engines/7/start", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestStopEngineHandler(t *testing.T) {
	manager := &mockManager{}
	router := newEngineRouter(manager)

	req := httptest.NewRequest(http.MethodPost, "/engines/3/stop", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if manager.stoppedID != 3 {
		t.Fatalf("expected engine 3 stopped, got %d", manager.stoppedID)
	}
}

func TestEngineStatusHandler(t *testing.T) {
	router := newEngineRouter(&mockManager{status: model.EngineStatusRunning})

	req := httptest.NewRequest(http.MethodGet, "/engines/1/status", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body map[string]string
	_ = json.NewDecoder(rr.Body).Decode(&body)
	if body["status"] != model.EngineStatusRunning {
		t.Fatalf("unexpected status body: %v", body)
	}
}

func TestListSnapshotsHandlerDisplayValue(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.AccountSnapshot{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	repo := (&repository.SnapshotRepository{}).WithDB(db)

	db.Create(&model.AccountSnapshot{EngineID: 4, TotalValue: 1010, UnrealizedPnl: -80})

	router := chi.NewRouter()
	router.Get("/engines/{id}/snapshots", ListSnapshotsHandler(repo))

	req := httptest.NewRequest(http.MethodGet, "/engines/4/snapshots", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body []struct {
		TotalValue   float64 `json:"total_value"`
		DisplayValue float64 `json:"display_value"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(body))
	}
	if body[0].TotalValue != 1010 {
		t.Fatalf("expected total 1010, got %v", body[0].TotalValue)
	}
	if body[0].DisplayValue != 930 {
		t.Fatalf("expected display value 930, got %v", body[0].DisplayValue)
	}
}

func TestAuthMiddleware(t *testing.T) {
	hash, err := security.HashControlToken("token-123")
	if err != nil {
		t.Fatalf("failed to hash token: %v", err)
	}
	t.Setenv("CONTROL_TOKEN_HASH", hash)

	protected := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	protected.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token must be rejected, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	protected.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token must be rejected, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token-123")
	rr = httptest.NewRecorder()
	protected.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("valid token must pass, got %d", rr.Code)
	}
}
