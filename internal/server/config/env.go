package config

import (
	"github.com/ilyakaznacheev/cleanenv"
)

// parseEnv overlays ZB_* environment variables. Variables that are not set
// leave the current value untouched.
func parseEnv(config *Config) {
	if err := cleanenv.ReadEnv(config); err != nil {
		panic(err)
	}
}
