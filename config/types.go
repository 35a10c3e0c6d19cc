package config

// Pauses lists the modules that reject mutating calls.
type Pauses struct {
	Bank bool
}

// RateLimit controls the per-client token bucket applied by the RPC server.
type RateLimit struct {
	RequestsPerMinute int
	Burst             int
}

// Telemetry configures the OTLP trace exporter. An empty Endpoint disables
// export.
type Telemetry struct {
	Endpoint string
	Insecure bool
	// Headers uses the OTEL_EXPORTER_OTLP_HEADERS form: key=value,key2=value2.
	Headers string
}
