package monitoring

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/model"
	"tradepilot/src/repository"
)

// Capture logs an operational error and persists it as an engine-scoped
// exception row. A nil repository degrades to logging only, so callers built
// without persistence (tests, dry runs) can still capture.
func Capture(
	ctx context.Context,
	repo *repository.ExceptionRepository,
	engineID uint,
	component string,
	op string,
	level string,
	err error,
	contextData map[string]interface{},
) {

	if err == nil {
		return
	}

	var ctxJSON string
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = string(b)
		}
	}

	exc := &model.Exception{
		EngineID:  engineID,
		Component: component,
		Op:        op,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Level:     level,
		Context:   ctxJSON,
		CreatedAt: time.Now(),
	}

	logger.WithFields(map[string]interface{}{
		"engine_id": engineID,
		"component": component,
		"op":        op,
		"level":     level,
	}).WithError(err).Error("Operational exception captured")

	if repo != nil {
		if e := repo.Create(ctx, exc); e != nil {
			logger.WithError(e).Error("Failed to persist exception")
		}
	}
}
