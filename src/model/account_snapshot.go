package model

import "time"

// AccountSnapshot is an append-only per-engine time series. TotalValue is the
// realized-basis account value (unrealized PnL excluded); ReturnPercent is
// measured against the engine's first-ever snapshot.
type AccountSnapshot struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	EngineID      uint      `gorm:"not null;index:idx_snapshots_engine_created,priority:1" json:"engine_id"`
	TotalValue    float64   `gorm:"not null" json:"total_value"`
	AvailableCash float64   `json:"available_cash"`
	UnrealizedPnl float64   `json:"unrealized_pnl"`
	ReturnPercent float64   `json:"return_percent"`
	MarginRatio   float64   `json:"margin_ratio"`
	CreatedAt     time.Time `gorm:"index:idx_snapshots_engine_created,priority:2" json:"created_at"`
}

// DisplayValue is the presentation-layer account value, which adds unrealized
// PnL back on top of the realized-basis total. It is never an input to risk
// decisions.
func (s *AccountSnapshot) DisplayValue() float64 {
	return s.TotalValue + s.UnrealizedPnl
}
