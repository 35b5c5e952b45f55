package keys

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Name            string   `envconfig:"ENGINE_NAME" required:"true"`
	APIKey          string   `envconfig:"EXCHANGE_API_KEY" required:"true"`
	APISecret       string   `envconfig:"EXCHANGE_API_SECRET" required:"true"`
	Model           string   `envconfig:"ENGINE_MODEL" default:"gpt-4o"`
	Symbols         []string `envconfig:"ENGINE_SYMBOLS" default:"BTC_USDT"`
	ScanIntervalSec int      `envconfig:"ENGINE_SCAN_INTERVAL_SEC" default:"300"`
	StopLossLimit   float64  `envconfig:"ENGINE_STOP_LOSS_LIMIT" default:"0"`
	TakeProfitLimit float64  `envconfig:"ENGINE_TAKE_PROFIT_LIMIT" default:"0"`
	MaxPositions    int      `envconfig:"ENGINE_MAX_POSITIONS" default:"3"`
	MaxLeverage     int      `envconfig:"ENGINE_MAX_LEVERAGE" default:"10"`
	ControlToken    string   `envconfig:"CONTROL_TOKEN"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
