package config

type Telemetry struct{}

var _ TelemetryConfig = Telemetry{}

func (Telemetry) GetTracingEnabled() bool {
	return GetEnvBool("TRACING_ENABLED", false)
}

func (Telemetry) GetTracingEndpoint() string {
	return GetEnv("TRACING_ENDPOINT", "localhost:4318")
}

func (Telemetry) GetTracingSampleRate() float64 {
	return GetEnvFloat("TRACING_SAMPLE_RATE", 1.0)
}
