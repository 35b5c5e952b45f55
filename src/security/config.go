package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Base64-encoded 32-byte AES key used to encrypt exchange credentials at rest.
	ExchangeCRKey string `envconfig:"EXCHANGE_CREDENTIALS_KEY" default:""`
	// bcrypt hash of the control-surface bearer token. Empty disables auth.
	ControlTokenHash string `envconfig:"CONTROL_TOKEN_HASH" default:""`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
