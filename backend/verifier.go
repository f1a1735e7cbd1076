package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	errs "github.com/jrsteele09/go-auth-starter/internal/errors"
)

// Claims is the subset of access token claims the application reads.
type Claims struct {
	Subject   string
	Email     string
	Role      string
	SessionID string
	ExpiresAt time.Time
}

// TokenVerifier checks an access token's signature and expiry locally.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

type accessTokenClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

// HMACVerifier verifies tokens signed with the project's shared HS256 secret.
type HMACVerifier struct {
	secret []byte
	parser *jwt.Parser
}

var _ TokenVerifier = (*HMACVerifier)(nil)

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (*Claims, error) {
	var claims accessTokenClaims
	_, err := v.parser.ParseWithClaims(rawToken, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidToken, err)
	}
	c := &Claims{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}
	if claims.ExpiresAt != nil {
		c.ExpiresAt = claims.ExpiresAt.Time
	}
	return c, nil
}

// JWKSVerifier verifies asymmetrically signed tokens against the keys the
// backend publishes at /auth/v1/.well-known/jwks.json.
type JWKSVerifier struct {
	verifier *oidc.IDTokenVerifier
}

var _ TokenVerifier = (*JWKSVerifier)(nil)

// NewJWKSVerifier builds a verifier for backendURL. ctx bounds the lifetime
// of background key refreshes; httpClient may be nil.
func NewJWKSVerifier(ctx context.Context, backendURL string, httpClient *http.Client) *JWKSVerifier {
	base := strings.TrimRight(backendURL, "/")
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}
	keySet := oidc.NewRemoteKeySet(ctx, base+authPath+"/.well-known/jwks.json")
	return &JWKSVerifier{
		verifier: oidc.NewVerifier(base+authPath, keySet, &oidc.Config{
			SkipClientIDCheck:    true,
			SupportedSigningAlgs: []string{oidc.RS256, oidc.ES256},
		}),
	}
}

func (v *JWKSVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidToken, err)
	}
	var extra struct {
		Email     string `json:"email"`
		Role      string `json:"role"`
		SessionID string `json:"session_id"`
	}
	if err := token.Claims(&extra); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidToken, err)
	}
	return &Claims{
		Subject:   token.Subject,
		Email:     extra.Email,
		Role:      extra.Role,
		SessionID: extra.SessionID,
		ExpiresAt: token.Expiry,
	}, nil
}
