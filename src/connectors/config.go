package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// CalcBaseURL is where the derived-statistics calculation endpoints
	// live. Defaults to the local API so a single deployment triggers
	// itself.
	CalcBaseURL string `envconfig:"CALC_BASE_URL" default:"http://localhost:9898"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
