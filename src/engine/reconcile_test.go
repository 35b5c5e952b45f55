package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradepilot/src/connectors"
	"tradepilot/src/model"
	"tradepilot/src/repository"
)

type stubExchange struct {
	positions []connectors.FuturesPosition
	listErr   error
	ticker    *connectors.FuturesTicker
}

func (s *stubExchange) ListPositions() ([]connectors.FuturesPosition, error) {
	return s.positions, s.listErr
}
func (s *stubExchange) GetAccount() (*connectors.FuturesAccount, error) { return nil, nil }
func (s *stubExchange) PlaceOrder(req connectors.OrderRequest) (*connectors.FuturesOrder, error) {
	return nil, errors.New("not implemented")
}
func (s *stubExchange) GetOrder(orderID string) (*connectors.FuturesOrder, error) {
	return nil, errors.New("not implemented")
}
func (s *stubExchange) GetContract(contract string) (*connectors.Contract, error) {
	return nil, errors.New("not implemented")
}
func (s *stubExchange) GetTicker(contract string) (*connectors.FuturesTicker, error) {
	if s.ticker == nil {
		return nil, errors.New("no ticker")
	}
	return s.ticker, nil
}
func (s *stubExchange) GetCandles(contract, interval string, limit int) ([]connectors.FuturesCandle, error) {
	return nil, nil
}

func newLedgerDB(t *testing.T) *repository.PositionRepository {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Position{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return repository.NewPositionRepository().WithDB(db)
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

func TestSyncEmptyExchangeNonEmptyLedgerIsSkipped(t *testing.T) {
	ledger := newLedgerDB(t)
	ctx := context.Background()

	seed := &model.Position{
		EngineID: 1, Symbol: "BTC_USDT", Side: model.PositionSideLong,
		Quantity: 10, EntryPrice: 100, CurrentPrice: 110,
		PeakPnlPercent: 42, OpenedAt: fixedNow().Add(-2 * time.Hour),
	}
	if err := ledger.Save(ctx, seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	client := &stubExchange{positions: nil}
	r := NewReconciler(1, client, nil, ledger, fixedNow)

	changed, err := r.Sync(ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatal("guarded sync must report no change")
	}

	rows, err := ledger.FindByEngine(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].PeakPnlPercent != 42 {
		t.Fatalf("ledger must be untouched, got %+v", rows)
	}
}

func TestSyncEmptyExchangeAfterCloseIsTrusted(t *testing.T) {
	ledger := newLedgerDB(t)
	ctx := context.Background()

	seed := &model.Position{
		EngineID: 1, Symbol: "BTC_USDT", Side: model.PositionSideLong,
		Quantity: 10, EntryPrice: 100, CurrentPrice: 110,
	}
	if err := ledger.Save(ctx, seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	client := &stubExchange{positions: nil}
	r := NewReconciler(1, client, nil, ledger, fixedNow)

	changed, err := r.Sync(ctx, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("confirmed close must clear the ledger")
	}

	rows, _ := ledger.FindByEngine(ctx, 1)
	if len(rows) != 0 {
		t.Fatalf("ledger must be empty, got %+v", rows)
	}
}

func TestSyncUpsertPreservesLocalFields(t *testing.T) {
	ledger := newLedgerDB(t)
	ctx := context.Background()

	openedAt := fixedNow().Add(-10 * time.Hour)
	seed := &model.Position{
		EngineID: 1, Symbol: "BTC_USDT", Side: model.PositionSideLong,
		Quantity: 10, EntryPrice: 100, CurrentPrice: 100,
		PeakPnlPercent: 60, Leverage: 5, OpenedAt: openedAt,
	}
	if err := ledger.Save(ctx, seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	client := &stubExchange{positions: []connectors.FuturesPosition{{
		Contract: "BTC_USDT", Size: 12, Leverage: "5",
		EntryPrice: "100", MarkPrice: "105", UnrealisedPnl: "60",
	}}}
	r := NewReconciler(1, client, nil, ledger, fixedNow)

	changed, err := r.Sync(ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("expected ledger update")
	}

	rows, _ := ledger.FindByEngine(ctx, 1)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]

	if row.Quantity != 12 || row.CurrentPrice != 105 {
		t.Fatalf("exchange fields must win: %+v", row)
	}
	// Locally-owned fields survive the overwrite.
	if !row.OpenedAt.Equal(openedAt) {
		t.Fatalf("OpenedAt must be preserved, got %v", row.OpenedAt)
	}
	// Current pnl is 25, well under the stored watermark of 60.
	if row.PeakPnlPercent != 60 {
		t.Fatalf("watermark must never ratchet down, got %v", row.PeakPnlPercent)
	}
}

func TestSyncRatchetsPeakUp(t *testing.T) {
	ledger := newLedgerDB(t)
	ctx := context.Background()

	seed := &model.Position{
		EngineID: 1, Symbol: "BTC_USDT", Side: model.PositionSideLong,
		Quantity: 10, EntryPrice: 100, CurrentPrice: 100,
		PeakPnlPercent: 5, Leverage: 10, OpenedAt: fixedNow().Add(-time.Hour),
	}
	if err := ledger.Save(ctx, seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// Mark at 102 with 10x: leveraged pnl 20%, above the stored peak of 5.
	client := &stubExchange{positions: []connectors.FuturesPosition{{
		Contract: "BTC_USDT", Size: 10, Leverage: "10",
		EntryPrice: "100", MarkPrice: "102",
	}}}
	r := NewReconciler(1, client, nil, ledger, fixedNow)

	if _, err := r.Sync(ctx, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, _ := ledger.FindByEngine(ctx, 1)
	if rows[0].PeakPnlPercent != 20 {
		t.Fatalf("expected peak ratcheted to 20, got %v", rows[0].PeakPnlPercent)
	}
}

func TestSyncNewPositionStartsPeakAtCurrentPnl(t *testing.T) {
	ledger := newLedgerDB(t)
	ctx := context.Background()

	client := &stubExchange{positions: []connectors.FuturesPosition{{
		Contract: "ETH_USDT", Size: -4, Leverage: "4",
		EntryPrice: "100", MarkPrice: "95",
	}}}
	r := NewReconciler(1, client, nil, ledger, fixedNow)

	changed, err := r.Sync(ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("expected new row")
	}

	rows, _ := ledger.FindByEngine(ctx, 1)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]

	if row.Side != model.PositionSideShort || row.Quantity != 4 {
		t.Fatalf("mapping wrong: %+v", row)
	}
	// Short at 100 marked 95 with 4x: +20%. First observation seeds the peak.
	if row.PeakPnlPercent != 20 {
		t.Fatalf("expected initial peak 20, got %v", row.PeakPnlPercent)
	}
	if !row.OpenedAt.Equal(fixedNow()) {
		t.Fatalf("new rows open at observation time, got %v", row.OpenedAt)
	}
}

func TestSyncRemovesClosedPositions(t *testing.T) {
	ledger := newLedgerDB(t)
	ctx := context.Background()

	for _, symbol := range []string{"BTC_USDT", "ETH_USDT"} {
		if err := ledger.Save(ctx, &model.Position{
			EngineID: 1, Symbol: symbol, Side: model.PositionSideLong,
			Quantity: 1, EntryPrice: 100, CurrentPrice: 100,
		}); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	// Exchange still holds BTC but not ETH: the non-empty response makes the
	// ETH delete trustworthy.
	client := &stubExchange{positions: []connectors.FuturesPosition{{
		Contract: "BTC_USDT", Size: 1, Leverage: "1",
		EntryPrice: "100", MarkPrice: "100",
	}}}
	r := NewReconciler(1, client, nil, ledger, fixedNow)

	if _, err := r.Sync(ctx, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, _ := ledger.FindByEngine(ctx, 1)
	if len(rows) != 1 || rows[0].Symbol != "BTC_USDT" {
		t.Fatalf("expected only BTC_USDT to remain, got %+v", rows)
	}
}

func TestSyncListErrorIsNotDestructive(t *testing.T) {
	ledger := newLedgerDB(t)
	ctx := context.Background()

	if err := ledger.Save(ctx, &model.Position{
		EngineID: 1, Symbol: "BTC_USDT", Side: model.PositionSideLong,
		Quantity: 1, EntryPrice: 100, CurrentPrice: 100,
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	client := &stubExchange{listErr: errors.New("exchange down")}
	r := NewReconciler(1, client, nil, ledger, fixedNow)

	if _, err := r.Sync(ctx, false); err == nil {
		t.Fatal("expected error")
	}

	rows, _ := ledger.FindByEngine(ctx, 1)
	if len(rows) != 1 {
		t.Fatalf("ledger must survive a failed read, got %+v", rows)
	}
}

func TestSyncBackfillsMissingPrices(t *testing.T) {
	ledger := newLedgerDB(t)
	ctx := context.Background()

	client := &stubExchange{
		positions: []connectors.FuturesPosition{{
			Contract: "SOL_USDT", Size: 3, Leverage: "2",
		}},
		ticker: &connectors.FuturesTicker{Contract: "SOL_USDT", MarkPrice: "150"},
	}
	r := NewReconciler(1, client, nil, ledger, fixedNow)

	if _, err := r.Sync(ctx, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, _ := ledger.FindByEngine(ctx, 1)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].CurrentPrice != 150 {
		t.Fatalf("mark price must backfill from ticker, got %v", rows[0].CurrentPrice)
	}
	// With no entry reported, entry defaults to the backfilled current price.
	if rows[0].EntryPrice != 150 {
		t.Fatalf("entry must default to current, got %v", rows[0].EntryPrice)
	}
}
