package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradepilot/src/database"
	"tradepilot/src/model"
)

// DecisionRepository stores the record of each proposal cycle.
type DecisionRepository struct {
	db *gorm.DB
}

// NewDecisionRepository creates a new repository instance using the main read/write database.
func NewDecisionRepository() *DecisionRepository {
	return &DecisionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *DecisionRepository) WithDB(db *gorm.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// Create appends one decision row.
func (r *DecisionRepository) Create(ctx context.Context, decision *model.Decision) error {
	err := r.db.WithContext(ctx).Create(decision).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "DecisionRepository",
			"op":        "Create",
			"engine_id": decision.EngineID,
			"cycle":     decision.CycleNumber,
		}).WithError(err).Error("Failed to record decision")
		return err
	}
	return nil
}

// FindLatestByEngine returns the newest decisions, newest first. The engine
// feeds these back into the next proposal context.
func (r *DecisionRepository) FindLatestByEngine(ctx context.Context, engineID uint, limit int) ([]model.Decision, error) {
	if limit <= 0 {
		limit = 5
	}

	var decisions []model.Decision
	err := r.db.WithContext(ctx).
		Where("engine_id = ?", engineID).
		Order("id DESC").
		Limit(limit).
		Find(&decisions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "DecisionRepository",
			"op":        "FindLatestByEngine",
			"engine_id": engineID,
		}).WithError(err).Error("Failed to fetch decisions")
		return nil, err
	}
	return decisions, nil
}

// NextCycleNumber returns max(cycle_number)+1 for an engine, starting at 1.
func (r *DecisionRepository) NextCycleNumber(ctx context.Context, engineID uint) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&model.Decision{}).
		Where("engine_id = ?", engineID).
		Select("COALESCE(MAX(cycle_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}
