package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradepilot/src/database"
	"tradepilot/src/model"
)

// SnapshotRepository handles the per-engine account value time series.
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository creates a new repository instance using the main read/write database.
func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *SnapshotRepository) WithDB(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create appends one snapshot row.
func (r *SnapshotRepository) Create(ctx context.Context, snapshot *model.AccountSnapshot) error {
	err := r.db.WithContext(ctx).Create(snapshot).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "SnapshotRepository",
			"op":        "Create",
			"engine_id": snapshot.EngineID,
		}).WithError(err).Error("Failed to record account snapshot")
		return err
	}
	return nil
}

// FirstByEngine returns the engine's earliest snapshot, whose TotalValue is
// the initial balance all returns are measured against. Returns (nil, nil)
// when the engine has no snapshots yet.
func (r *SnapshotRepository) FirstByEngine(ctx context.Context, engineID uint) (*model.AccountSnapshot, error) {
	var snapshot model.AccountSnapshot
	err := r.db.WithContext(ctx).
		Where("engine_id = ?", engineID).
		Order("id ASC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":      "SnapshotRepository",
			"op":        "FirstByEngine",
			"engine_id": engineID,
		}).WithError(err).Error("Failed to fetch first snapshot")
		return nil, err
	}
	return &snapshot, nil
}

// FindLatestByEngine returns the newest snapshots, newest first.
func (r *SnapshotRepository) FindLatestByEngine(ctx context.Context, engineID uint, limit int) ([]model.AccountSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}

	var snapshots []model.AccountSnapshot
	err := r.db.WithContext(ctx).
		Where("engine_id = ?", engineID).
		Order("id DESC").
		Limit(limit).
		Find(&snapshots).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "SnapshotRepository",
			"op":        "FindLatestByEngine",
			"engine_id": engineID,
		}).WithError(err).Error("Failed to fetch snapshots")
		return nil, err
	}
	return snapshots, nil
}
