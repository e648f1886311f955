package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for errors.
//
// It applies the struct validation tags (via go-playground/validator) and
// then the cross-field checks that tags cannot express:
//   - store backend/connection consistency
//   - telemetry endpoint presence when tracing is enabled
//   - archive bucket presence when export is enabled
//
// Returns an error describing the first problem found, or nil if the
// configuration is valid.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if err := cfg.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry: endpoint is required when tracing is enabled")
	}

	if cfg.Archive.Enabled && cfg.Archive.Bucket == "" {
		return fmt.Errorf("archive: bucket is required when archive export is enabled")
	}

	return nil
}
