package decision

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	CompletionBaseURL string `envconfig:"COMPLETION_BASE_URL" default:"https://api.openai.com"`
	CompletionAPIKey  string `envconfig:"COMPLETION_API_KEY" default:""`
	DefaultModel      string `envconfig:"COMPLETION_MODEL" default:"gpt-4o"`
	TimeoutSec        int    `envconfig:"COMPLETION_TIMEOUT_SEC" default:"120"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
