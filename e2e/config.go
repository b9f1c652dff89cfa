package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// SERVER_ADDR is the HTTP base URL of a running server, e.g. http://localhost:8080.
	// The suites are skipped when it is empty.
	ServerAddr string `envconfig:"SERVER_ADDR"`
	HealthAddr string `envconfig:"HEALTH_ADDR" default:"localhost:8081"`
	// E2E_DEBUG_JSON dumps request and response bodies
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
