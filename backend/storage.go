package backend

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// maxChunkSize keeps each cookie comfortably below the 4096 byte browser limit
	maxChunkSize = 3180
	base64Prefix = "base64-"

	codeVerifierSuffix = "-code-verifier"

	// defaultCookieMaxAge matches the backend's 400 day refresh horizon
	defaultCookieMaxAge = 400 * 24 * 60 * 60
)

// CookieOptions controls the attributes of cookies written by a client.
type CookieOptions struct {
	Path     string
	Domain   string
	MaxAge   int
	Secure   bool
	SameSite http.SameSite
}

func (o CookieOptions) withDefaults() CookieOptions {
	if o.Path == "" {
		o.Path = "/"
	}
	if o.MaxAge == 0 {
		o.MaxAge = defaultCookieMaxAge
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// sessionStorage persists the session JSON into one or more chunked cookies.
type sessionStorage struct {
	store CookieStore
	name  string
	opts  CookieOptions
}

func (s sessionStorage) load() (*Session, error) {
	raw, ok := s.getItem(s.name)
	if !ok {
		return nil, nil
	}
	decoded, err := decodeCookieValue(raw)
	if err != nil {
		return nil, fmt.Errorf("[backend sessionStorage] corrupt session cookie: %w", err)
	}
	var session Session
	if err := json.Unmarshal(decoded, &session); err != nil {
		return nil, fmt.Errorf("[backend sessionStorage] corrupt session cookie: %w", err)
	}
	if session.AccessToken == "" {
		return nil, nil
	}
	return &session, nil
}

func (s sessionStorage) save(session *Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("[backend sessionStorage] failed to encode session: %w", err)
	}
	s.setItem(s.name, base64Prefix+base64.RawURLEncoding.EncodeToString(payload))
	return nil
}

func (s sessionStorage) clear() {
	s.removeItem(s.name)
	s.removeItem(s.name + codeVerifierSuffix)
}

// getItem reassembles a value stored either as a single cookie or as
// name.0, name.1, ... chunks.
func (s sessionStorage) getItem(key string) (string, bool) {
	if v, ok := s.store.Get(key); ok {
		return v, true
	}
	var b strings.Builder
	for i := 0; ; i++ {
		chunk, ok := s.store.Get(chunkName(key, i))
		if !ok {
			break
		}
		b.WriteString(chunk)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

func (s sessionStorage) setItem(key, value string) {
	chunks := splitChunks(value, maxChunkSize)
	if len(chunks) == 1 {
		s.write(key, chunks[0], s.opts.MaxAge)
		s.removeChunks(key, 0)
		return
	}
	for i, chunk := range chunks {
		s.write(chunkName(key, i), chunk, s.opts.MaxAge)
	}
	s.expire(key)
	s.removeChunks(key, len(chunks))
}

func (s sessionStorage) removeItem(key string) {
	if _, ok := s.store.Get(key); ok {
		s.expire(key)
	}
	s.removeChunks(key, 0)
}

// removeChunks expires every existing chunk from index from onwards.
func (s sessionStorage) removeChunks(key string, from int) {
	for i := from; ; i++ {
		name := chunkName(key, i)
		if _, ok := s.store.Get(name); !ok {
			return
		}
		s.expire(name)
	}
}

func (s sessionStorage) write(name, value string, maxAge int) {
	s.store.Set(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     s.opts.Path,
		Domain:   s.opts.Domain,
		MaxAge:   maxAge,
		Expires:  expiresFor(maxAge),
		Secure:   s.opts.Secure,
		HttpOnly: false,
		SameSite: s.opts.SameSite,
	})
}

func (s sessionStorage) expire(name string) {
	s.write(name, "", -1)
}

func expiresFor(maxAge int) time.Time {
	if maxAge <= 0 {
		return time.Unix(0, 0)
	}
	return time.Now().Add(time.Duration(maxAge) * time.Second)
}

func chunkName(key string, i int) string {
	return key + "." + strconv.Itoa(i)
}

func splitChunks(value string, size int) []string {
	if len(value) <= size {
		return []string{value}
	}
	var chunks []string
	for len(value) > size {
		chunks = append(chunks, value[:size])
		value = value[size:]
	}
	if value != "" {
		chunks = append(chunks, value)
	}
	return chunks
}

// decodeCookieValue accepts the base64- prefixed form and the legacy raw
// JSON form.
func decodeCookieValue(raw string) ([]byte, error) {
	if !strings.HasPrefix(raw, base64Prefix) {
		return []byte(raw), nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimPrefix(raw, base64Prefix))
}
