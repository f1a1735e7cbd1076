package server

import (
	"net/http"
	"net/url"
	"strings"

	errs "github.com/jrsteele09/go-auth-starter/internal/errors"
)

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	redirectWithErrorAndEmail(w, r, path, errorMsg, "")
}

func redirectWithErrorAndEmail(w http.ResponseWriter, r *http.Request, path, errorMsg, email string) {
	query := url.Values{"error": {errorMsg}}
	if email != "" {
		query.Set("email", email)
	}
	redirectSuccess(w, r, path+"?"+query.Encode())
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// validateNext only accepts same-site absolute paths so the callback cannot
// be used as an open redirect.
func validateNext(next string) error {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return errs.Wrapf(errs.ErrInvalidRedirect, "%q", next)
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return errs.Wrapf(errs.ErrInvalidRedirect, "%q", next)
	}
	return nil
}

// safeNext returns next, or the index page when next is empty or invalid.
func safeNext(next string) string {
	if next == "" || validateNext(next) != nil {
		return RouteIndex
	}
	return next
}

// callbackURL is where the backend sends the browser after the provider
// round trip.
func (s *Server) callbackURL(next string) string {
	target := s.config.GetBaseURL() + RouteCallback
	if next = safeNext(next); next != RouteIndex {
		target += "?" + url.Values{"next": {next}}.Encode()
	}
	return target
}
