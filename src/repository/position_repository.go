package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradepilot/src/database"
	"tradepilot/src/model"
)

// PositionRepository handles the per-engine position ledger. Rows are unique
// by (engine_id, symbol).
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main read/write database.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// FindByEngine returns every ledger row owned by one engine.
func (r *PositionRepository) FindByEngine(ctx context.Context, engineID uint) ([]model.Position, error) {
	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("engine_id = ?", engineID).
		Order("symbol ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "PositionRepository",
			"op":        "FindByEngine",
			"engine_id": engineID,
		}).WithError(err).Error("Failed to fetch positions")
		return nil, err
	}

	return positions, nil
}

// Save upserts one ledger row. New rows are inserted; existing rows (matched
// by primary key) are fully updated.
func (r *PositionRepository) Save(ctx context.Context, position *model.Position) error {
	err := r.db.WithContext(ctx).Save(position).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "PositionRepository",
			"op":        "Save",
			"engine_id": position.EngineID,
			"symbol":    position.Symbol,
		}).WithError(err).Error("Failed to save position")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "PositionRepository",
		"op":        "Save",
		"engine_id": position.EngineID,
		"symbol":    position.Symbol,
		"side":      position.Side,
		"qty":       position.Quantity,
		"peak_pnl":  position.PeakPnlPercent,
	}).Debug("Position saved")

	return nil
}

// DeleteByEngineAndSymbol removes one ledger row after a confirmed close.
func (r *PositionRepository) DeleteByEngineAndSymbol(ctx context.Context, engineID uint, symbol string) error {
	err := r.db.WithContext(ctx).
		Where("engine_id = ? AND symbol = ?", engineID, symbol).
		Delete(&model.Position{}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "PositionRepository",
			"op":        "DeleteByEngineAndSymbol",
			"engine_id": engineID,
			"symbol":    symbol,
		}).WithError(err).Error("Failed to delete position")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "PositionRepository",
		"op":        "DeleteByEngineAndSymbol",
		"engine_id": engineID,
		"symbol":    symbol,
	}).Info("Position removed from ledger")

	return nil
}
