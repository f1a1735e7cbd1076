// Package authstate holds the per-request authentication state: the backend
// handle for the caller's cookies and the signed-in user's profile,
// memoized per user id.
package authstate

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-starter/backend"
	errs "github.com/jrsteele09/go-auth-starter/internal/errors"
	"github.com/jrsteele09/go-auth-starter/internal/logging"
	"github.com/jrsteele09/go-auth-starter/internal/telemetry"
	"github.com/jrsteele09/go-auth-starter/profiles"
)

// Provider memoizes the backend handle and the profile for one caller. The
// profile is fetched at most once per session user id; a sign-in as a
// different user or a sign-out discards it.
type Provider struct {
	client  *backend.Client
	repo    profiles.Repo
	metrics *telemetry.Metrics

	fetchMu sync.Mutex
	mu      sync.Mutex
	userID  string
	result  profiles.Result

	unsubscribe func()
}

type Option func(*Provider)

// WithMetrics counts profile fetches by resulting state.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Provider) {
		p.metrics = m
	}
}

func NewProvider(client *backend.Client, repo profiles.Repo, opts ...Option) *Provider {
	p := &Provider{
		client: client,
		repo:   repo,
		result: profiles.NotStarted(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.unsubscribe = client.OnAuthStateChange(p.onAuthChange)
	return p
}

// Close detaches the provider from its client.
func (p *Provider) Close() {
	p.unsubscribe()
}

func (p *Provider) Client() *backend.Client {
	return p.client
}

// Session returns the caller's session, or nil when signed out.
func (p *Provider) Session(ctx context.Context) (*backend.Session, error) {
	return p.client.GetSession(ctx)
}

// Profile returns the profile of the current session user, fetching it on
// first use. Without a session the result is StateNotStarted. A failed
// fetch is memoized as StateError for that user and logged.
func (p *Provider) Profile(ctx context.Context) profiles.Result {
	session, err := p.client.GetSession(ctx)
	if err != nil {
		logging.FromContext(ctx).Debug().Err(err).Msg("session lookup failed, profile not loaded")
	}
	userID := session.UserID()

	// The repo may refresh the session through the same client, which calls
	// back into onAuthChange, so mu is never held across the fetch.
	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()

	p.mu.Lock()
	if userID == "" {
		p.reset("")
		p.mu.Unlock()
		return profiles.NotStarted()
	}
	if userID == p.userID && p.result.State != profiles.StateNotStarted {
		result := p.result
		p.mu.Unlock()
		return result
	}
	p.reset(userID)
	p.mu.Unlock()

	var result profiles.Result
	profile, err := p.repo.GetByID(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error().Err(err).Str("user_id", userID).Msg("failed to fetch profile")
		result = profiles.Failed(err)
	} else {
		result = profiles.Loaded(profile)
	}
	if p.metrics != nil {
		p.metrics.ProfileFetches.WithLabelValues(result.State.String()).Inc()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.userID == userID {
		p.result = result
	}
	return result
}

// SignInWithPassword signs in and returns "" on success or the backend's
// message for display on failure. err is non-nil in the latter case.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (string, error) {
	if _, err := p.client.SignInWithPassword(ctx, email, password); err != nil {
		return Message(err), err
	}
	return "", nil
}

// SignInWithOAuth returns the URL to send the browser to.
func (p *Provider) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error) {
	return p.client.SignInWithOAuth(ctx, provider, redirectTo)
}

func (p *Provider) SignOut(ctx context.Context) error {
	return p.client.SignOut(ctx, backend.SignOutGlobal)
}

func (p *Provider) onAuthChange(event backend.AuthChangeEvent, session *backend.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch event {
	case backend.EventSignedOut:
		p.reset("")
	case backend.EventSignedIn, backend.EventTokenRefreshed:
		if id := session.UserID(); id != p.userID {
			p.reset(id)
		}
	}
}

// reset must be called with p.mu held.
func (p *Provider) reset(userID string) {
	p.userID = userID
	p.result = profiles.NotStarted()
}

// Message turns a sign-in error into text fit for the login page.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *backend.APIError
	if errs.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Sign in failed. Please try again."
}
