package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Fill reconciliation: poll the order this many times, this far apart,
	// before falling back to the pre-trade mark price.
	FillPollAttempts int `envconfig:"FILL_POLL_ATTEMPTS" default:"5"`
	FillPollDelayMs  int `envconfig:"FILL_POLL_DELAY_MS" default:"500"`

	// Slippage tolerances as fractions of the intended price.
	OpenSlippageTolerance  float64 `envconfig:"OPEN_SLIPPAGE_TOLERANCE" default:"0.02"`
	CloseSlippageTolerance float64 `envconfig:"CLOSE_SLIPPAGE_TOLERANCE" default:"0.03"`

	TakerFeeRate float64 `envconfig:"TAKER_FEE_RATE" default:"0.0005"`
}

func (c Config) FillPollDelay() time.Duration {
	return time.Duration(c.FillPollDelayMs) * time.Millisecond
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
