package config

import (
	"github.com/caarlos0/env/v11"
)

// loadFromEnv overlays READQUEST_* environment variables onto cfg. Unset
// variables leave the current value in place. Lists are comma separated and
// log attributes use key:value pairs.
func loadFromEnv(cfg *Config) error {
	return env.Parse(cfg)
}
