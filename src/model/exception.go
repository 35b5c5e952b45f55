package model

import "time"

// Exception is a persisted operational error, scoped to the engine whose
// cycle produced it. Rows are append-only and exist for post-mortem review
// of cycles that degraded or aborted.
type Exception struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	EngineID uint `gorm:"index" json:"engine_id"`

	// Where the error happened
	Component string `gorm:"size:100;index" json:"component"` // e.g. "engine"
	Op        string `gorm:"size:100" json:"op"`              // e.g. "ForcedClose"

	Message string `gorm:"type:text" json:"message"`
	Stack   string `gorm:"type:text" json:"stack"`

	Level string `gorm:"size:20;index" json:"level"` // warn | error | fatal

	// Extra context stored as JSON (optional)
	Context string `gorm:"type:jsonb" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
