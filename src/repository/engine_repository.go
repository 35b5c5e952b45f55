package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradepilot/src/database"
	"tradepilot/src/model"
)

// EngineRepository handles engine configuration and lifecycle status.
type EngineRepository struct {
	db *gorm.DB
}

// NewEngineRepository creates a new repository instance using the main read/write database.
func NewEngineRepository() *EngineRepository {
	return &EngineRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *EngineRepository) WithDB(db *gorm.DB) *EngineRepository {
	return &EngineRepository{db: db}
}

// Create inserts a new engine configuration.
func (r *EngineRepository) Create(ctx context.Context, engine *model.EngineConfig) error {
	err := r.db.WithContext(ctx).Create(engine).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "EngineRepository",
			"op":   "Create",
			"name": engine.Name,
		}).WithError(err).Error("Failed to create engine")
		return err
	}
	return nil
}

// FindByID fetches one engine. Returns (nil, nil) when absent.
func (r *EngineRepository) FindByID(ctx context.Context, id uint) (*model.EngineConfig, error) {
	var engine model.EngineConfig
	err := r.db.WithContext(ctx).First(&engine, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "EngineRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch engine")
		return nil, err
	}
	return &engine, nil
}

// FindAll returns every configured engine.
func (r *EngineRepository) FindAll(ctx context.Context) ([]model.EngineConfig, error) {
	var engines []model.EngineConfig
	err := r.db.WithContext(ctx).Order("id ASC").Find(&engines).Error
	if err != nil {
		logger.WithField("repo", "EngineRepository").
			WithError(err).Error("Failed to list engines")
		return nil, err
	}
	return engines, nil
}

// FindByStatus returns engines in one lifecycle state. Used on boot to
// restore every engine that was running before the process died.
func (r *EngineRepository) FindByStatus(ctx context.Context, status string) ([]model.EngineConfig, error) {
	var engines []model.EngineConfig
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Find(&engines).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "EngineRepository",
			"op":     "FindByStatus",
			"status": status,
		}).WithError(err).Error("Failed to list engines by status")
		return nil, err
	}
	return engines, nil
}

// UpdateStatus transitions an engine's lifecycle state, recording the error
// text when the transition is a failure path.
func (r *EngineRepository) UpdateStatus(ctx context.Context, id uint, status, lastError string) error {
	err := r.db.WithContext(ctx).
		Model(&model.EngineConfig{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "EngineRepository",
			"op":     "UpdateStatus",
			"id":     id,
			"status": status,
		}).WithError(err).Error("Failed to update engine status")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "EngineRepository",
		"op":     "UpdateStatus",
		"id":     id,
		"status": status,
	}).Info("Engine status updated")

	return nil
}

// SetInitialBalance records the engine's first observed account value; only
// written once, when no balance has been recorded yet.
func (r *EngineRepository) SetInitialBalance(ctx context.Context, id uint, balance float64) error {
	return r.db.WithContext(ctx).
		Model(&model.EngineConfig{}).
		Where("id = ? AND initial_balance = 0", id).
		Update("initial_balance", balance).Error
}
