package model

import "time"

const (
	TradeTypeOpen  = "open"
	TradeTypeClose = "close"

	TradeStatusPending   = "pending"
	TradeStatusFilled    = "filled"
	TradeStatusCancelled = "cancelled"
)

// Trade is an append-only record of every executed open or close. Side is the
// position side (long/short), not the raw execution direction, so a close of a
// long is still recorded as side=long, type=close.
type Trade struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	EngineID   uint       `gorm:"not null;index" json:"engine_id"`
	OrderID    string     `gorm:"size:64;index" json:"order_id"`
	Symbol     string     `gorm:"size:50;not null;index" json:"symbol"`
	Side       string     `gorm:"size:10;not null" json:"side"`
	Type       string     `gorm:"size:10;not null" json:"type"`
	Price      float64    `gorm:"not null" json:"price"`
	Quantity   float64    `gorm:"not null" json:"quantity"`
	Leverage   int        `gorm:"not null;default:1" json:"leverage"`
	Fee        float64    `json:"fee"`
	Pnl        *float64   `json:"pnl,omitempty"`
	Reason     string     `gorm:"size:255" json:"reason,omitempty"`
	Status     string     `gorm:"size:20;not null;default:pending" json:"status"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (Trade) TableName() string {
	return "trades"
}
