package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/jrsteele09/go-auth-starter/internal/logging"
	"github.com/rs/zerolog/log"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName   string
	Error     string
	Email     string // Preserve email on error
	Providers []string
}

// LoginPageHandler displays the login page (GET /login)
func (s *Server) LoginPageHandler() http.HandlerFunc {
	loginTmpl, err := ParseTemplate("login.html")
	if err != nil {
		panic("Failed to parse login template: " + err.Error())
	}

	providers := make([]string, 0, len(s.providers))
	for p := range s.providers {
		providers = append(providers, p)
	}
	sort.Strings(providers)

	return func(w http.ResponseWriter, r *http.Request) {
		data := LoginPageData{
			AppName:   s.config.GetAppName(),
			Error:     r.URL.Query().Get("error"),
			Email:     r.URL.Query().Get("email"),
			Providers: providers,
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := loginTmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render login template")
			http.Error(w, "Failed to render login page", http.StatusInternalServerError)
		}
	}
}

// LoginSubmissionHandler signs in with email and password (POST /auth/login).
// The backend's message is shown on the login page when it refuses.
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := providerFrom(w, r)
		if !ok {
			return
		}

		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		email := strings.TrimSpace(r.FormValue("email"))
		password := r.FormValue("password")
		if email == "" || password == "" {
			redirectWithErrorAndEmail(w, r, RouteLogin, "Email and password are required", email)
			return
		}

		message, err := provider.SignInWithPassword(r.Context(), email, password)
		if err != nil {
			logging.FromContext(r.Context()).Debug().Err(err).Msg("password sign in refused")
			redirectWithErrorAndEmail(w, r, RouteLogin, message, email)
			return
		}

		redirectSuccess(w, r, RouteIndex)
	}
}

// LogoutHandler signs out at the backend and clears the session cookies.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := providerFrom(w, r)
		if !ok {
			return
		}

		if err := provider.SignOut(r.Context()); err != nil {
			logging.FromContext(r.Context()).Warn().Err(err).Msg("Logout: backend sign out failed, local session cleared")
		}

		redirectSuccess(w, r, RouteLogin)
	}
}
