package repository

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradepilot/src/model"
)

func newSqliteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.EngineConfig{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestEngineRepositoryLifecycle(t *testing.T) {
	db := newSqliteDB(t)
	repo := (&EngineRepository{}).WithDB(db)
	ctx := context.Background()

	engine := &model.EngineConfig{
		Name:    "alpha",
		Model:   "gpt-4o",
		Symbols: []string{"BTC_USDT", "ETH_USDT"},
		Status:  model.EngineStatusStopped,
	}
	if err := repo.Create(ctx, engine); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if engine.ID == 0 {
		t.Fatal("expected assigned id")
	}

	found, err := repo.FindByID(ctx, engine.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found == nil || found.Name != "alpha" || len(found.Symbols) != 2 {
		t.Fatalf("round trip wrong: %+v", found)
	}

	missing, err := repo.FindByID(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("absent engine must be (nil, nil), got %v %v", missing, err)
	}

	if err := repo.UpdateStatus(ctx, engine.ID, model.EngineStatusRunning, ""); err != nil {
		t.Fatalf("update status failed: %v", err)
	}

	running, err := repo.FindByStatus(ctx, model.EngineStatusRunning)
	if err != nil {
		t.Fatalf("find by status failed: %v", err)
	}
	if len(running) != 1 || running[0].ID != engine.ID {
		t.Fatalf("expected the running engine, got %+v", running)
	}

	if err := repo.UpdateStatus(ctx, engine.ID, model.EngineStatusError, "exchange down"); err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	found, _ = repo.FindByID(ctx, engine.ID)
	if found.Status != model.EngineStatusError || found.LastError != "exchange down" {
		t.Fatalf("error transition not recorded: %+v", found)
	}
}

func TestEngineRepositorySetInitialBalanceOnce(t *testing.T) {
	db := newSqliteDB(t)
	repo := (&EngineRepository{}).WithDB(db)
	ctx := context.Background()

	engine := &model.EngineConfig{Name: "beta", Model: "gpt-4o", Status: model.EngineStatusStopped}
	if err := repo.Create(ctx, engine); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := repo.SetInitialBalance(ctx, engine.ID, 1000); err != nil {
		t.Fatalf("first write failed: %v", err)
	}

	// A second write must be a no-op: the initial balance is immutable once set.
	if err := repo.SetInitialBalance(ctx, engine.ID, 2000); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	found, _ := repo.FindByID(ctx, engine.ID)
	if found.InitialBalance != 1000 {
		t.Fatalf("initial balance must stay at 1000, got %v", found.InitialBalance)
	}
}
