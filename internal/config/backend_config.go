package config

import "strings"

const (
	backendURLVar     = "BACKEND_URL"
	backendAnonKeyVar = "BACKEND_ANON_KEY"
	jwtSecretVar      = "BACKEND_JWT_SECRET"
)

type Backend struct{}

var _ BackendConfig = Backend{}

// GetBackendURL returns the hosted backend project URL (e.g., "https://abcd.supabase.co")
func (Backend) GetBackendURL() string {
	return strings.TrimRight(GetEnv(backendURLVar, "http://localhost:54321"), "/")
}

// GetBackendAnonKey returns the public anon key sent as the apikey header
func (Backend) GetBackendAnonKey() string {
	return GetEnv(backendAnonKeyVar, "")
}

// GetBackendJWTSecret returns the legacy HS256 JWT secret. When set, access
// tokens are verified locally before a session counts as valid.
func (Backend) GetBackendJWTSecret() string {
	return GetEnv(jwtSecretVar, "")
}

// GetVerifyWithJWKS enables access-token verification against the backend's
// published JWKS (asymmetric signing keys).
func (Backend) GetVerifyWithJWKS() bool {
	return GetEnvBool("BACKEND_VERIFY_JWKS", false)
}

// GetAuthCookieName overrides the derived sb-<ref>-auth-token cookie name
func (Backend) GetAuthCookieName() string {
	return GetEnv("AUTH_COOKIE_NAME", "")
}

func (Backend) GetOAuthProviders() []string {
	raw := GetEnv("OAUTH_PROVIDERS", "github")
	var providers []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			providers = append(providers, p)
		}
	}
	return providers
}
