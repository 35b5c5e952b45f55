package engine

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/database"
	tpengine "tradepilot/src/engine"
)

// Run starts a single trading engine without the HTTP control surface.
// It blocks until SIGINT or SIGTERM, then stops the engine cleanly.
func Run() error {
	config := GetConfig()
	if config.EngineID == 0 {
		return fmt.Errorf("ENGINE_ID is required")
	}

	if err := database.InitMainDB(); err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := tpengine.NewManager()
	if err := manager.Start(ctx, config.EngineID); err != nil {
		return fmt.Errorf("error starting engine %d: %w", config.EngineID, err)
	}

	logger.WithFields(logger.Fields{"engineID": config.EngineID}).Info("engine running, waiting for shutdown signal")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	manager.StopAll(shutdownCtx)

	logger.Info("engine stopped")
	return nil
}
