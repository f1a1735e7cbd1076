// Package backendtest provides an in-process fake of the hosted backend's
// auth and row APIs for tests.
package backendtest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-starter/backend"
)

const (
	AnonKey = "test-anon-key"
	Secret  = "test-jwt-secret-with-enough-bytes"
)

type fakeUser struct {
	ID       string
	Email    string
	Password string
}

type codeGrant struct {
	userID    string
	challenge string
}

// Server is a fake backend. Its zero value is not usable; call New.
type Server struct {
	*httptest.Server

	// TokenTTL is the lifetime of issued access tokens
	TokenTTL time.Duration
	// ProfileStatus forces profile reads to fail with this status when non-zero
	ProfileStatus int
	// SchemaDoc is served from GET /rest/v1/
	SchemaDoc []byte

	mu       sync.Mutex
	users    map[string]fakeUser
	refresh  map[string]string
	codes    map[string]codeGrant
	profiles map[string]map[string]any
	calls    map[string]int
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		TokenTTL: time.Hour,
		users:    make(map[string]fakeUser),
		refresh:  make(map[string]string),
		codes:    make(map[string]codeGrant),
		profiles: make(map[string]map[string]any),
		calls:    make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", s.token)
	mux.HandleFunc("GET /auth/v1/user", s.user)
	mux.HandleFunc("POST /auth/v1/logout", s.logout)
	mux.HandleFunc("GET /rest/v1/profiles", s.selectProfiles)
	mux.HandleFunc("GET /rest/v1/{table}", s.unknownTable)
	mux.HandleFunc("GET /rest/v1/{$}", s.schema)

	s.Server = httptest.NewServer(s.requireAPIKey(mux))
	t.Cleanup(s.Close)
	return s
}

// Options returns client options pointed at the fake, verifying tokens with
// the fake's HS256 secret.
func (s *Server) Options() backend.Options {
	return backend.Options{
		URL:      s.URL,
		AnonKey:  AnonKey,
		Verifier: backend.NewHMACVerifier(Secret),
	}
}

func (s *Server) AddUser(email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.users[email] = fakeUser{ID: id, Email: email, Password: password}
	return id
}

func (s *Server) AddProfile(row map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[row["id"].(string)] = row
}

// AuthorizeCode simulates the provider round trip: it returns a code that
// can be exchanged with the verifier matching challenge.
func (s *Server) AuthorizeCode(userID, challenge string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := uuid.NewString()
	s.codes[code] = codeGrant{userID: userID, challenge: challenge}
	return code
}

// SessionFor mints a session for an existing user without a sign-in call.
func (s *Server) SessionFor(email string) backend.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issue(s.users[email], s.TokenTTL)
}

// ExpiredSessionFor mints a session whose access token has already expired
// but whose refresh token is still valid.
func (s *Server) ExpiredSessionFor(email string) backend.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issue(s.users[email], -time.Minute)
}

// Calls returns how often the named endpoint was hit, e.g. "token:password".
func (s *Server) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *Server) count(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != AnonKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	grant := r.URL.Query().Get("grant_type")
	s.count("token:" + grant)

	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		authError(w, http.StatusBadRequest, "validation_failed", "Invalid JSON body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch grant {
	case "password":
		u, ok := s.users[body["email"]]
		if !ok || u.Password != body["password"] {
			authError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
			return
		}
		writeJSON(w, http.StatusOK, s.issue(u, s.TokenTTL))
	case "refresh_token":
		userID, ok := s.refresh[body["refresh_token"]]
		if !ok {
			authError(w, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
			return
		}
		delete(s.refresh, body["refresh_token"])
		writeJSON(w, http.StatusOK, s.issue(s.userByID(userID), s.TokenTTL))
	case "pkce":
		grant, ok := s.codes[body["auth_code"]]
		if !ok {
			authError(w, http.StatusNotFound, "flow_state_not_found", "invalid flow state, no valid flow state found")
			return
		}
		delete(s.codes, body["auth_code"])
		sum := sha256.Sum256([]byte(body["code_verifier"]))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != grant.challenge {
			authError(w, http.StatusBadRequest, "bad_code_verifier", "code challenge does not match previously saved code verifier")
			return
		}
		writeJSON(w, http.StatusOK, s.issue(s.userByID(grant.userID), s.TokenTTL))
	default:
		authError(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported_grant_type")
	}
}

func (s *Server) user(w http.ResponseWriter, r *http.Request) {
	s.count("user")
	claims, ok := s.bearerClaims(r)
	if !ok {
		authError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
		return
	}
	s.mu.Lock()
	u := s.userByID(claims.Subject)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, backend.User{ID: u.ID, Email: u.Email, Role: "authenticated", Aud: "authenticated"})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.count("logout")
	claims, ok := s.bearerClaims(r)
	if !ok {
		authError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
		return
	}
	s.mu.Lock()
	for token, userID := range s.refresh {
		if userID == claims.Subject {
			delete(s.refresh, token)
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectProfiles(w http.ResponseWriter, r *http.Request) {
	s.count("profiles")
	if s.ProfileStatus != 0 {
		writeJSON(w, s.ProfileStatus, map[string]any{"code": "XX000", "message": "forced failure"})
		return
	}
	id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")

	s.mu.Lock()
	row, ok := s.profiles[id]
	s.mu.Unlock()

	if r.Header.Get("Accept") == "application/vnd.pgrst.object+json" {
		if !ok {
			writeJSON(w, http.StatusNotAcceptable, map[string]any{
				"code":    "PGRST116",
				"details": "The result contains 0 rows",
				"message": "JSON object requested, multiple (or no) rows returned",
			})
			return
		}
		writeJSON(w, http.StatusOK, row)
		return
	}
	rows := []map[string]any{}
	if ok {
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) unknownTable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"code":    "PGRST205",
		"details": nil,
		"hint":    nil,
		"message": "Could not find the table 'public." + r.PathValue("table") + "' in the schema cache",
	})
}

func (s *Server) schema(w http.ResponseWriter, _ *http.Request) {
	s.count("schema")
	w.Header().Set("Content-Type", "application/openapi+json")
	_, _ = w.Write(s.SchemaDoc)
}

// issue must be called with s.mu held.
func (s *Server) issue(u fakeUser, ttl time.Duration) backend.Session {
	now := time.Now()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"iss":        s.URL + "/auth/v1",
		"sub":        u.ID,
		"aud":        "authenticated",
		"email":      u.Email,
		"role":       "authenticated",
		"session_id": uuid.NewString(),
		"iat":        now.Add(-2 * time.Minute).Unix(),
		"exp":        exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(Secret))
	if err != nil {
		panic(err)
	}
	refresh := uuid.NewString()
	s.refresh[refresh] = u.ID
	return backend.Session{
		AccessToken:  signed,
		TokenType:    "bearer",
		ExpiresIn:    int64(ttl.Seconds()),
		ExpiresAt:    exp.Unix(),
		RefreshToken: refresh,
		User:         &backend.User{ID: u.ID, Email: u.Email, Role: "authenticated", Aud: "authenticated"},
	}
}

// userByID must be called with s.mu held.
func (s *Server) userByID(id string) fakeUser {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return fakeUser{ID: id}
}

func (s *Server) bearerClaims(r *http.Request) (*jwt.RegisteredClaims, bool) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(Secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, false
	}
	return &claims, true
}

func authError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "error_code": code, "msg": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
