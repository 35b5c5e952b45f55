package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradepilot/src/database"
	"tradepilot/src/model"
)

// TradeRepository handles the append-only execution record.
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new repository instance using the main read/write database.
func NewTradeRepository() *TradeRepository {
	return &TradeRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create appends one trade row.
func (r *TradeRepository) Create(ctx context.Context, trade *model.Trade) error {
	err := r.db.WithContext(ctx).Create(trade).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "TradeRepository",
			"op":        "Create",
			"engine_id": trade.EngineID,
			"symbol":    trade.Symbol,
			"type":      trade.Type,
		}).WithError(err).Error("Failed to record trade")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "TradeRepository",
		"op":        "Create",
		"trade_id":  trade.ID,
		"engine_id": trade.EngineID,
		"symbol":    trade.Symbol,
		"type":      trade.Type,
		"status":    trade.Status,
	}).Info("Trade recorded")

	return nil
}

// FindLatestByEngine returns the newest trades for an engine, newest first.
func (r *TradeRepository) FindLatestByEngine(ctx context.Context, engineID uint, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 20
	}

	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Where("engine_id = ?", engineID).
		Order("id DESC").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "TradeRepository",
			"op":        "FindLatestByEngine",
			"engine_id": engineID,
		}).WithError(err).Error("Failed to fetch trades")
		return nil, err
	}

	return trades, nil
}
