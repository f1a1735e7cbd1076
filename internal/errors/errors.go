package errors

import (
	"errors"
	"fmt"
)

// Common error types for the auth starter
var (
	// Session errors
	ErrNoSession           = errors.New("no session")
	ErrSessionExpired      = errors.New("session expired")
	ErrInvalidToken        = errors.New("invalid token")
	ErrMissingRefreshToken = errors.New("missing refresh token")

	// Sign-in errors
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUnsupportedProvider = errors.New("unsupported oauth provider")
	ErrMissingCodeVerifier = errors.New("missing pkce code verifier")
	ErrInvalidRedirect     = errors.New("invalid redirect")

	// Profile errors
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidUserID   = errors.New("invalid user id")

	// General errors
	ErrNotFound      = errors.New("not found")
	ErrMisconfigured = errors.New("misconfigured")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
