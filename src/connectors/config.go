package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	GateBaseURL    string `envconfig:"GATE_BASE_URL" default:"https://api.gateio.ws"`
	GateWSURL      string `envconfig:"GATE_WS_URL" default:"wss://fx-ws.gateio.ws/v4/ws/usdt"`
	GateSettle     string `envconfig:"GATE_SETTLE" default:"usdt"`
	HTTPTimeoutSec int    `envconfig:"GATE_HTTP_TIMEOUT_SEC" default:"15"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
