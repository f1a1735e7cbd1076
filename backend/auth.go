package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	errs "github.com/jrsteele09/go-auth-starter/internal/errors"
	"github.com/jrsteele09/go-auth-starter/internal/logging"
	"golang.org/x/oauth2"
)

// SignOutScope selects which of the user's sessions the backend revokes.
type SignOutScope string

const (
	SignOutGlobal SignOutScope = "global"
	SignOutLocal  SignOutScope = "local"
	SignOutOthers SignOutScope = "others"
)

// GetSession returns the session held in the handle's cookies, or (nil, nil)
// when there is none. An access token close to expiry is refreshed first and
// the new session written back. When a Verifier is configured the access
// token must verify for the session to be returned.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	session, err := c.storage.load()
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	if session.ExpiresWithin(c.refreshMargin(session), c.now()) {
		session, err = c.refresh(ctx, session)
		if err != nil {
			return nil, err
		}
	}

	if c.opts.Verifier != nil {
		if _, err := c.opts.Verifier.Verify(ctx, session.AccessToken); err != nil {
			return nil, fmt.Errorf("[backend GetSession] %w", err)
		}
	}
	return session, nil
}

// refreshMargin caps the configured margin at half the token lifetime so a
// freshly issued token is never already due for refresh.
func (c *Client) refreshMargin(session *Session) time.Duration {
	margin := c.opts.RefreshMargin
	if session.ExpiresIn > 0 {
		if half := time.Duration(session.ExpiresIn) * time.Second / 2; margin > half {
			margin = half
		}
	}
	return margin
}

func (c *Client) refresh(ctx context.Context, stale *Session) (*Session, error) {
	if stale.RefreshToken == "" {
		c.storage.clear()
		c.emit(EventSignedOut, nil)
		return nil, fmt.Errorf("[backend refresh] %w", errs.ErrMissingRefreshToken)
	}

	var fresh Session
	err := c.do(ctx, request{
		operation: "refresh_token",
		method:    http.MethodPost,
		path:      authPath + "/token",
		query:     url.Values{"grant_type": {"refresh_token"}},
		body:      map[string]string{"refresh_token": stale.RefreshToken},
	}, &fresh)
	if err != nil {
		logging.FromContext(ctx).Debug().Err(err).Msg("session refresh failed")
		c.storage.clear()
		c.emit(EventSignedOut, nil)
		return nil, fmt.Errorf("[backend refresh] %w: %w", errs.ErrSessionExpired, err)
	}
	if err := c.storeSession(&fresh); err != nil {
		return nil, err
	}
	c.emit(EventTokenRefreshed, &fresh)
	return &fresh, nil
}

// GetUser asks the backend for the user behind the current session. Unlike
// GetSession this always makes a network call and so catches revoked sessions.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("[backend GetUser] %w", errs.ErrNoSession)
	}
	var user User
	if err := c.do(ctx, request{
		operation: "get_user",
		method:    http.MethodGet,
		path:      authPath + "/user",
		bearer:    session.AccessToken,
	}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SignInWithPassword exchanges email and password for a session. Failures
// are *APIError values whose Message is meant for display.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	err := c.do(ctx, request{
		operation: "sign_in_password",
		method:    http.MethodPost,
		path:      authPath + "/token",
		query:     url.Values{"grant_type": {"password"}},
		body:      map[string]string{"email": email, "password": password},
	}, &session)
	if err != nil {
		return nil, err
	}
	if err := c.storeSession(&session); err != nil {
		return nil, err
	}
	c.emit(EventSignedIn, &session)
	return &session, nil
}

// SignInWithOAuth starts a PKCE authorization flow with provider. It stores
// the code verifier in a cookie and returns the URL to send the browser to.
// The backend redirects to redirectTo with a ?code= to pass to
// ExchangeCodeForSession.
func (c *Client) SignInWithOAuth(_ context.Context, provider, redirectTo string, scopes ...string) (string, error) {
	if provider == "" || strings.ContainsAny(provider, "/?&#") {
		return "", fmt.Errorf("[backend SignInWithOAuth] %q: %w", provider, errs.ErrUnsupportedProvider)
	}

	verifier := oauth2.GenerateVerifier()
	sealed, err := c.opts.Sealer.Seal(verifier)
	if err != nil {
		return "", err
	}
	c.storage.setItem(c.verifierCookie(), sealed)

	cfg := oauth2.Config{
		Endpoint: oauth2.Endpoint{AuthURL: c.baseURL + authPath + "/authorize"},
	}
	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("provider", provider),
	}
	if redirectTo != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_to", redirectTo))
	}
	if len(scopes) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("scopes", strings.Join(scopes, " ")))
	}
	return cfg.AuthCodeURL("", opts...), nil
}

// ExchangeCodeForSession completes a PKCE flow started by SignInWithOAuth.
func (c *Client) ExchangeCodeForSession(ctx context.Context, code string) (*Session, error) {
	sealed, ok := c.storage.getItem(c.verifierCookie())
	if !ok {
		return nil, fmt.Errorf("[backend ExchangeCodeForSession] %w", errs.ErrMissingCodeVerifier)
	}
	verifier, err := c.opts.Sealer.Open(sealed)
	if err != nil {
		c.storage.removeItem(c.verifierCookie())
		return nil, fmt.Errorf("[backend ExchangeCodeForSession] %w: %w", errs.ErrMissingCodeVerifier, err)
	}

	var session Session
	err = c.do(ctx, request{
		operation: "exchange_code",
		method:    http.MethodPost,
		path:      authPath + "/token",
		query:     url.Values{"grant_type": {"pkce"}},
		body:      map[string]string{"auth_code": code, "code_verifier": verifier},
	}, &session)
	c.storage.removeItem(c.verifierCookie())
	if err != nil {
		return nil, err
	}
	if err := c.storeSession(&session); err != nil {
		return nil, err
	}
	c.emit(EventSignedIn, &session)
	return &session, nil
}

// SignOut revokes the session at the backend and, unless scope is
// SignOutOthers, clears the local cookies. Sessions the backend no longer
// knows about are cleared locally without error.
func (c *Client) SignOut(ctx context.Context, scope SignOutScope) error {
	if scope == "" {
		scope = SignOutGlobal
	}

	session, loadErr := c.storage.load()
	var apiErr error
	if loadErr == nil && session != nil {
		apiErr = c.do(ctx, request{
			operation: "sign_out",
			method:    http.MethodPost,
			path:      authPath + "/logout",
			query:     url.Values{"scope": {string(scope)}},
			bearer:    session.AccessToken,
		}, nil)
		if ignorableSignOutError(apiErr) {
			apiErr = nil
		}
	}

	if scope != SignOutOthers {
		c.storage.clear()
		c.emit(EventSignedOut, nil)
	}
	return apiErr
}

func ignorableSignOutError(err error) bool {
	var apiErr *APIError
	if !errs.As(err, &apiErr) {
		return false
	}
	switch apiErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// SetSession stores an externally obtained session in the handle's cookies
// and announces it as a sign-in.
func (c *Client) SetSession(session *Session) error {
	if err := c.storeSession(session); err != nil {
		return err
	}
	c.emit(EventSignedIn, session)
	return nil
}

func (c *Client) storeSession(session *Session) error {
	if session.AccessToken == "" {
		return fmt.Errorf("[backend storeSession] %w: empty access token", errs.ErrInvalidToken)
	}
	session.normalize(c.now())
	return c.storage.save(session)
}

func (c *Client) verifierCookie() string {
	return c.opts.CookieName + codeVerifierSuffix
}

// accessToken returns the bearer for row API calls: the session's access
// token when signed in, otherwise "" so the anon key is used.
func (c *Client) accessToken(ctx context.Context) string {
	session, err := c.GetSession(ctx)
	if err != nil || session == nil {
		return ""
	}
	return session.AccessToken
}
