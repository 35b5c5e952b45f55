package model

import (
	"time"

	"tradepilot/src/risk"
)

const (
	EngineStatusRunning = "running"
	EngineStatusStopped = "stopped"
	EngineStatusError   = "error"
)

// EngineConfig is one trading engine instance: its exchange credentials, the
// completion model driving proposals, and the risk limits enforced regardless
// of what that model proposes. Credentials are stored encrypted at rest.
type EngineConfig struct {
	ID              uint                `gorm:"primaryKey" json:"id"`
	Name            string              `gorm:"size:255;not null" json:"name"`
	APIKeyEnc       string              `gorm:"size:512;column:api_key_enc" json:"-"`
	APISecretEnc    string              `gorm:"size:512;column:api_secret_enc" json:"-"`
	Model           string              `gorm:"size:100;not null" json:"model"`
	Symbols         []string            `gorm:"type:jsonb;serializer:json" json:"symbols"`
	ScanIntervalSec int                 `gorm:"not null;default:300" json:"scan_interval_sec"`
	StopLossLimit   float64             `gorm:"not null" json:"stop_loss_limit"`
	StopLossTiers   []risk.StopLossTier `gorm:"type:jsonb;serializer:json" json:"stop_loss_tiers,omitempty"`
	TakeProfitLimit float64             `gorm:"not null" json:"take_profit_limit"`
	MaxPositions    int                 `gorm:"not null;default:3" json:"max_positions"`
	MaxLeverage     int                 `gorm:"not null;default:10" json:"max_leverage"`
	InitialBalance  float64             `json:"initial_balance"`
	Status          string              `gorm:"size:20;not null;default:stopped" json:"status"`
	LastError       string              `gorm:"size:1024" json:"last_error,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func (EngineConfig) TableName() string {
	return "engines"
}

// ScanInterval returns the cycle period, defaulting to five minutes when the
// stored value is missing or nonsense.
func (e *EngineConfig) ScanInterval() time.Duration {
	if e.ScanIntervalSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(e.ScanIntervalSec) * time.Second
}
