package repository

import (
	"context"

	"gorm.io/gorm"

	"tradepilot/src/database"
	"tradepilot/src/model"
)

// ExceptionRepository persists operational errors captured during engine
// cycles.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance using the main read/write database.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

func (r *ExceptionRepository) Create(ctx context.Context, exc *model.Exception) error {
	return r.db.WithContext(ctx).Create(exc).Error
}

// FindLatestByEngine returns the newest captured exceptions for one engine.
func (r *ExceptionRepository) FindLatestByEngine(ctx context.Context, engineID uint, limit int) ([]model.Exception, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []model.Exception
	err := r.db.WithContext(ctx).
		Where("engine_id = ?", engineID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
