package config

import (
	"time"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	BackendConfig
	CorsConfig
	SecurityConfig
	DataConfig
	TelemetryConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetLogLevel() string
	GetEnv() string
}

type BackendConfig interface {
	GetBackendURL() string
	GetBackendAnonKey() string
	GetBackendJWTSecret() string
	GetVerifyWithJWKS() bool
	GetAuthCookieName() string
	GetOAuthProviders() []string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type DataConfig interface {
	GetDatabaseURL() string
	GetRedisURL() string
	GetProfileCacheTTL() time.Duration
}

type TelemetryConfig interface {
	GetTracingEnabled() bool
	GetTracingEndpoint() string
	GetTracingSampleRate() float64
}

type mainConfig struct {
	EnvVars
	Backend
	Cors
	Security
	Data
	Telemetry
}

// New loads .env.local and .env (when present) into the process environment
// and returns the env-backed configuration. Variables already set win.
func New() Config {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
	return mainConfig{}
}
