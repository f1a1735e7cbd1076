package server

import (
	"net/http"

	"github.com/jrsteele09/go-auth-starter/internal/logging"
	"github.com/jrsteele09/go-auth-starter/profiles"
)

// IndexPageData contains data for rendering the home page
type IndexPageData struct {
	AppName string
	Email   string
	Result  profiles.Result
}

func (d IndexPageData) ProfileLoaded() bool {
	return d.Result.State == profiles.StateSuccess
}

func (d IndexPageData) ProfileFailed() bool {
	return d.Result.State == profiles.StateError
}

// IndexHandler renders the home page with the signed-in user's profile.
func (s *Server) IndexHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("index.html")
	if err != nil {
		panic("Failed to parse index template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := providerFrom(w, r)
		if !ok {
			return
		}

		// Profile and Session may rewrite cookies, so both run before the body is written
		data := IndexPageData{
			AppName: s.config.GetAppName(),
			Result:  provider.Profile(r.Context()),
		}
		if session, err := provider.Session(r.Context()); err == nil && session != nil && session.User != nil {
			data.Email = session.User.Email
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := tmpl.Execute(w, data); err != nil {
			logging.FromContext(r.Context()).Err(err).Msg("Failed to render index template")
		}
	}
}
