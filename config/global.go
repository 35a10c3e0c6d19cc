package config

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"bankchain/crypto"
	nativecommon "bankchain/native/common"
	"bankchain/observability/otel"
)

// Admin returns the configured genesis admin.
func (c *Config) Admin() (common.Address, error) {
	return crypto.ParseAccount(c.AdminAddress)
}

// PauseView exposes the pause switches to the native modules.
func (c *Config) PauseView() nativecommon.PauseView {
	return nativecommon.StaticPauses{nativecommon.ModuleBank: c.Pauses.Bank}
}

// ReadTimeoutDuration returns ReadTimeout in seconds as a duration.
func (c *Config) ReadTimeoutDuration() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns WriteTimeout in seconds as a duration.
func (c *Config) WriteTimeoutDuration() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

// TelemetryConfig converts the telemetry section for the OTLP initialiser.
func (c *Config) TelemetryConfig(service string) otel.Config {
	return otel.Config{
		ServiceName: service,
		Environment: c.Env,
		Endpoint:    c.Telemetry.Endpoint,
		Insecure:    c.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(c.Telemetry.Headers),
	}
}
