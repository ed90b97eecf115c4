package config

import (
	"github.com/caarlos0/env/v11"
)

// parseEnv overlays configuration from environment variables onto the
// provided Config. Variable names come from the `env` struct tags. Unset
// variables leave the current values untouched. A malformed value, such as
// an unparseable duration, causes a panic.
func parseEnv(config *Config) {
	if err := env.Parse(config); err != nil {
		panic(err)
	}
}
