package model

import "time"

const (
	PositionSideLong  = "long"
	PositionSideShort = "short"
)

// Position is the ledger's view of one open futures position. There is at most
// one row per (engine, symbol); the reconciler keeps it in sync with the
// exchange while preserving locally-owned fields (peak watermark, open time,
// standing order ids) that the exchange does not report.
type Position struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	EngineID         uint      `gorm:"not null;uniqueIndex:ux_positions_engine_symbol,priority:1" json:"engine_id"`
	Symbol           string    `gorm:"size:50;not null;uniqueIndex:ux_positions_engine_symbol,priority:2" json:"symbol"`
	Side             string    `gorm:"size:10;not null" json:"side"`
	Quantity         float64   `gorm:"not null" json:"quantity"`
	EntryPrice       float64   `gorm:"not null" json:"entry_price"`
	CurrentPrice     float64   `json:"current_price"`
	Leverage         int       `gorm:"not null;default:1" json:"leverage"`
	LiquidationPrice float64   `json:"liquidation_price"`
	UnrealizedPnl    float64   `json:"unrealized_pnl"`
	PeakPnlPercent   float64   `json:"peak_pnl_percent"`
	StopLoss         *float64  `json:"stop_loss,omitempty"`
	ProfitTarget     *float64  `json:"profit_target,omitempty"`
	StopOrderID      *string   `gorm:"size:64" json:"stop_order_id,omitempty"`
	ProfitOrderID    *string   `gorm:"size:64" json:"profit_order_id,omitempty"`
	OpenedAt         time.Time `json:"opened_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SideSign is +1 for longs and -1 for shorts.
func (p *Position) SideSign() float64 {
	if p.Side == PositionSideShort {
		return -1
	}
	return 1
}

// PnlPercent returns the leverage-scaled unrealized return of the position.
// A zero entry price is treated as flat rather than an error.
func (p *Position) PnlPercent() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100 * p.SideSign() * float64(p.Leverage)
}

// HoldingHours returns how long the position has been open as of now.
func (p *Position) HoldingHours(now time.Time) float64 {
	if p.OpenedAt.IsZero() {
		return 0
	}
	return now.Sub(p.OpenedAt).Hours()
}
