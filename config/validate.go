package config

import (
	"fmt"
	"strings"

	"bankchain/crypto"
	"bankchain/storage"
)

// ValidateConfig checks the values Load cannot default.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("backend: unsupported value %q", cfg.Backend)
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		return fmt.Errorf("network: name must be set")
	}
	if _, err := crypto.ParseAccount(cfg.AdminAddress); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	return nil
}
