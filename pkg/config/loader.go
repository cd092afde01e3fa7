package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into cfg using `env` / `envDefault` tags.
// Fields without a default are treated as required, so a missing variable
// fails fast at startup instead of surfacing as a zero value later.
func Load(cfg any) error {
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
