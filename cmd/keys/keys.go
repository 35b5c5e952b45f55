package keys

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/database"
	"tradepilot/src/model"
	"tradepilot/src/repository"
	"tradepilot/src/security"
)

// Run registers a new trading engine: it encrypts the exchange credentials
// with the configured key and inserts the engine row in stopped state. When
// CONTROL_TOKEN is set it also prints the bcrypt hash to configure on the
// server side.
func Run() error {
	config := GetConfig()

	if err := database.InitMainDB(); err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}

	apiKeyEnc, err := security.EncryptString(config.APIKey)
	if err != nil {
		return fmt.Errorf("error encrypting API key: %w", err)
	}
	apiSecretEnc, err := security.EncryptString(config.APISecret)
	if err != nil {
		return fmt.Errorf("error encrypting API secret: %w", err)
	}

	engine := &model.EngineConfig{
		Name:            config.Name,
		APIKeyEnc:       apiKeyEnc,
		APISecretEnc:    apiSecretEnc,
		Model:           config.Model,
		Symbols:         config.Symbols,
		ScanIntervalSec: config.ScanIntervalSec,
		StopLossLimit:   config.StopLossLimit,
		TakeProfitLimit: config.TakeProfitLimit,
		MaxPositions:    config.MaxPositions,
		MaxLeverage:     config.MaxLeverage,
		Status:          model.EngineStatusStopped,
	}

	repo := repository.NewEngineRepository()
	if err := repo.Create(context.Background(), engine); err != nil {
		return fmt.Errorf("error creating engine: %w", err)
	}

	logger.WithFields(logger.Fields{
		"engineID": engine.ID,
		"name":     engine.Name,
		"symbols":  engine.Symbols,
	}).Info("engine registered")

	if config.ControlToken != "" {
		hash, err := security.HashControlToken(config.ControlToken)
		if err != nil {
			return fmt.Errorf("error hashing control token: %w", err)
		}
		fmt.Printf("CONTROL_TOKEN_HASH=%s\n", hash)
	}

	return nil
}
