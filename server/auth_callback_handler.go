package server

import (
	"net/http"

	"github.com/jrsteele09/go-auth-starter/internal/logging"
)

// OAuthStartHandler sends the browser to the backend's authorize endpoint
// for one of the configured providers (GET /auth/oauth/{provider}).
func (s *Server) OAuthStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := providerFrom(w, r)
		if !ok {
			return
		}

		name := r.PathValue("provider")
		if _, allowed := s.providers[name]; !allowed {
			redirectWithError(w, r, RouteLogin, "Unsupported sign in provider")
			return
		}

		authorizeURL, err := provider.SignInWithOAuth(r.Context(), name, s.callbackURL(r.URL.Query().Get("next")))
		if err != nil {
			logging.FromContext(r.Context()).Err(err).Str("provider", name).Msg("failed to start oauth sign in")
			redirectWithError(w, r, RouteLogin, "Could not start sign in")
			return
		}

		http.Redirect(w, r, authorizeURL, http.StatusSeeOther)
	}
}

// OAuthCallbackHandler completes the PKCE flow (GET /auth/callback).
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := providerFrom(w, r)
		if !ok {
			return
		}

		query := r.URL.Query()
		if desc := query.Get("error_description"); desc != "" || query.Get("error") != "" {
			if desc == "" {
				desc = query.Get("error")
			}
			redirectWithError(w, r, RouteLogin, desc)
			return
		}

		code := query.Get("code")
		if code == "" {
			redirectWithError(w, r, RouteLogin, "Missing authorization code")
			return
		}

		if _, err := provider.Client().ExchangeCodeForSession(r.Context(), code); err != nil {
			logging.FromContext(r.Context()).Err(err).Msg("failed to exchange authorization code")
			redirectWithError(w, r, RouteLogin, "Could not complete sign in")
			return
		}

		next := query.Get("next")
		if next != "" {
			if err := validateNext(next); err != nil {
				logging.FromContext(r.Context()).Warn().Err(err).Msg("ignoring callback redirect target")
			}
		}
		redirectSuccess(w, r, safeNext(next))
	}
}
