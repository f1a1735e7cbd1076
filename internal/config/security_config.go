package config

import "time"

type SecurityConfig interface {
	GetCookieSecret() string
	GetSecureCookies() bool
	GetRefreshMargin() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetCookieSecret seals the PKCE verifier cookie when set
func (Security) GetCookieSecret() string {
	return GetEnv("COOKIE_SECRET", "")
}

func (Security) GetSecureCookies() bool {
	return GetEnvBool("SECURE_COOKIES", false)
}

// MaxRefreshMargin bounds REFRESH_MARGIN well below the backend's default
// one hour token lifetime.
const MaxRefreshMargin = 5 * time.Minute

// GetRefreshMargin is how long before expiry an access token is refreshed
func (Security) GetRefreshMargin() time.Duration {
	margin := GetEnvDuration("REFRESH_MARGIN", 30*time.Second)
	switch {
	case margin < 0:
		return 0
	case margin > MaxRefreshMargin:
		return MaxRefreshMargin
	}
	return margin
}
