package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every override variable, e.g. OPSADMIN_STORAGE_DSN.
const EnvPrefix = "OPSADMIN_"

// ApplyEnv overlays environment variables onto cfg. Unset variables leave the
// file value untouched.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, nil)
}

func applyEnv(cfg *Config, environ map[string]string) error {
	if cfg == nil {
		return nil
	}
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	return nil
}
