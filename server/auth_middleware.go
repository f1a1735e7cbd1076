package server

import (
	"net/http"

	"github.com/jrsteele09/go-auth-starter/authstate"
	"github.com/jrsteele09/go-auth-starter/backend"
	"github.com/jrsteele09/go-auth-starter/guard"
	"github.com/jrsteele09/go-auth-starter/internal/logging"
	"github.com/jrsteele09/go-auth-starter/profiles"
)

// SessionMiddleware builds the request's backend handle over its cookies and
// installs an authstate.Provider in the request context. Nothing is shared
// between requests except the process-wide Dependencies.
func (s *Server) SessionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, err := backend.NewServerClient(s.backend, w, r)
		if err != nil {
			logging.FromContext(r.Context()).Err(err).Msg("failed to create backend client")
			http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
			return
		}

		provider := authstate.NewProvider(client, s.profileRepo(client), authstate.WithMetrics(s.metrics))
		defer provider.Close()

		next(w, r.WithContext(authstate.WithProvider(r.Context(), provider)))
	}
}

// profileRepo picks the profile source for one request: a shared repo when
// configured, otherwise the row API with the caller's own session.
func (s *Server) profileRepo(client *backend.Client) profiles.Repo {
	var repo profiles.Repo = profiles.NewRESTRepo(client)
	if s.profiles != nil {
		repo = s.profiles
	}
	if s.cache != nil {
		repo = profiles.NewCachedRepo(repo, s.cache, s.config.GetProfileCacheTTL())
	}
	return repo
}

// guardLookup answers the guard from the provider SessionMiddleware
// installed. GetSession may refresh and rewrite the session cookies.
var guardLookup = guard.LookupFunc(func(_ http.ResponseWriter, r *http.Request) (bool, error) {
	provider, ok := authstate.FromContext(r.Context())
	if !ok {
		return false, nil
	}
	session, err := provider.Session(r.Context())
	if err != nil {
		return false, err
	}
	return session != nil, nil
})

// providerFrom returns the request's provider, answering 500 when the route
// was registered without SessionMiddleware.
func providerFrom(w http.ResponseWriter, r *http.Request) (*authstate.Provider, bool) {
	provider, ok := authstate.FromContext(r.Context())
	if !ok {
		logging.FromContext(r.Context()).Error().Str("path", r.URL.Path).Msg("route is missing the session middleware")
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
	}
	return provider, ok
}
