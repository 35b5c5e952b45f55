package model

import "time"

// Decision records one proposal cycle: what the completion service said and
// which trade calls it made, whether or not they were executed.
type Decision struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	EngineID    uint           `gorm:"not null;index" json:"engine_id"`
	CycleNumber int            `gorm:"not null" json:"cycle_number"`
	Text        string         `gorm:"type:text" json:"text"`
	ToolCalls   map[string]any `gorm:"type:jsonb;serializer:json" json:"tool_calls,omitempty"`
	Success     bool           `gorm:"not null;default:true" json:"success"`
	Error       string         `gorm:"size:1024" json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
