package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradepilot/src/database"
	"tradepilot/src/model"
)

// CandleRepository persists backfilled OHLCV bars.
type CandleRepository struct {
	db *gorm.DB
}

// NewCandleRepository creates a new repository instance using the main read/write database.
func NewCandleRepository() *CandleRepository {
	return &CandleRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *CandleRepository) WithDB(db *gorm.DB) *CandleRepository {
	return &CandleRepository{db: db}
}

// Upsert1m inserts 1m bars, overwriting duplicates on (symbol, datetime) so a
// re-fetched partial bar replaces the stored one.
func (r *CandleRepository) Upsert1m(ctx context.Context, rows []model.Candle1m) error {
	if len(rows) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "CandleRepository",
			"op":   "Upsert1m",
			"rows": len(rows),
		}).WithError(err).Error("Failed to upsert 1m candles")
		return err
	}
	return nil
}

// Upsert1h inserts 1h bars, overwriting duplicates on (symbol, datetime).
func (r *CandleRepository) Upsert1h(ctx context.Context, rows []model.Candle1h) error {
	if len(rows) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "CandleRepository",
			"op":   "Upsert1h",
			"rows": len(rows),
		}).WithError(err).Error("Failed to upsert 1h candles")
		return err
	}
	return nil
}

// LatestDatetime1m returns the newest stored 1m bar time for a symbol, used
// by the backfill command to resume where it left off.
func (r *CandleRepository) LatestDatetime1m(ctx context.Context, symbol string) (time.Time, error) {
	var row model.Candle1m
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("datetime DESC").
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return row.Datetime, nil
}

// LatestDatetime1h is the 1h counterpart of LatestDatetime1m.
func (r *CandleRepository) LatestDatetime1h(ctx context.Context, symbol string) (time.Time, error) {
	var row model.Candle1h
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("datetime DESC").
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return row.Datetime, nil
}
