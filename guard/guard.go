// Package guard redirects requests whose path is inconsistent with the
// caller's authentication state.
//
// Exactly two rules exist: an anonymous request for the root path goes to
// the login page, and a signed-in request for the login page goes to the
// root path. Everything else passes through untouched.
package guard

import (
	"net/http"

	"github.com/jrsteele09/go-auth-starter/internal/logging"
)

// Decision is the outcome of evaluating one request.
type Decision int

const (
	Pass Decision = iota
	RedirectToLogin
	RedirectToRoot
)

func (d Decision) String() string {
	switch d {
	case RedirectToLogin:
		return "redirect_login"
	case RedirectToRoot:
		return "redirect_root"
	default:
		return "pass"
	}
}

const (
	DefaultRootPath  = "/"
	DefaultLoginPath = "/login"
)

// SessionLookup reports whether the request carries a valid session. It may
// write to w, e.g. to persist refreshed session cookies.
type SessionLookup interface {
	HasSession(w http.ResponseWriter, r *http.Request) (bool, error)
}

// LookupFunc adapts a function to SessionLookup.
type LookupFunc func(w http.ResponseWriter, r *http.Request) (bool, error)

func (f LookupFunc) HasSession(w http.ResponseWriter, r *http.Request) (bool, error) {
	return f(w, r)
}

// Guard holds the paths the rules apply to.
type Guard struct {
	rootPath   string
	loginPath  string
	onDecision func(Decision)
}

type Option func(*Guard)

func WithRootPath(path string) Option {
	return func(g *Guard) {
		if path != "" {
			g.rootPath = path
		}
	}
}

func WithLoginPath(path string) Option {
	return func(g *Guard) {
		if path != "" {
			g.loginPath = path
		}
	}
}

// WithDecisionHook is called once per request with the decision taken.
func WithDecisionHook(fn func(Decision)) Option {
	return func(g *Guard) {
		g.onDecision = fn
	}
}

func New(opts ...Option) *Guard {
	g := &Guard{rootPath: DefaultRootPath, loginPath: DefaultLoginPath}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decide applies the rules using the default paths.
func Decide(path string, hasSession bool) Decision {
	return New().Decide(path, hasSession)
}

func (g *Guard) Decide(path string, hasSession bool) Decision {
	switch {
	case !hasSession && path == g.rootPath:
		return RedirectToLogin
	case hasSession && path == g.loginPath:
		return RedirectToRoot
	default:
		return Pass
	}
}

// Middleware consults lookup for every request. A lookup error counts as
// "no session".
func (g *Guard) Middleware(lookup SessionLookup) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			hasSession, err := lookup.HasSession(w, r)
			if err != nil {
				logging.FromContext(r.Context()).Debug().Err(err).Str("path", r.URL.Path).Msg("session lookup failed, treating as anonymous")
				hasSession = false
			}

			decision := g.Decide(r.URL.Path, hasSession)
			if g.onDecision != nil {
				g.onDecision(decision)
			}

			switch decision {
			case RedirectToLogin:
				http.Redirect(w, r, g.loginPath, http.StatusTemporaryRedirect)
			case RedirectToRoot:
				http.Redirect(w, r, g.rootPath, http.StatusTemporaryRedirect)
			default:
				next(w, r)
			}
		}
	}
}
