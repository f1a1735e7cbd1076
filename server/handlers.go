package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/jrsteele09/go-auth-starter/internal/logging"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"

	readyTimeout = 2 * time.Second
)

// ProfileAPIHandler serves the caller's profile fetch result as JSON
// (GET /api/profile). Anonymous callers get 401.
func (s *Server) ProfileAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := providerFrom(w, r)
		if !ok {
			return
		}

		session, err := provider.Session(r.Context())
		if err != nil || session == nil {
			writeJSONError(w, "unauthorized", "sign in required", http.StatusUnauthorized)
			return
		}

		writeJSON(w, http.StatusOK, provider.Profile(r.Context()))
	}
}

// HealthHandler reports liveness
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyHandler runs every readiness check and answers 503 if any fail
func (s *Server) ReadyHandler() http.HandlerFunc {
	names := make([]string, 0, len(s.ready))
	for name := range s.ready {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(names))
		for _, name := range names {
			if err := s.ready[name](ctx); err != nil {
				logging.FromContext(ctx).Warn().Err(err).Str("check", name).Msg("readiness check failed")
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		body := map[string]any{"status": "ok", "checks": checks}
		if status != http.StatusOK {
			body["status"] = "unavailable"
		}
		writeJSON(w, status, body)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
