package engine

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type nowFunc func() time.Time

type Config struct {
	// Bounds applied to proposal-service trade calls on top of per-engine limits.
	MaxMarginPerTrade float64 `envconfig:"MAX_MARGIN_PER_TRADE" default:"1000"`

	TradeHistoryDepth    int `envconfig:"TRADE_HISTORY_DEPTH" default:"20"`
	DecisionHistoryDepth int `envconfig:"DECISION_HISTORY_DEPTH" default:"5"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
