package backend

import (
	"net/http"
	"sync"
)

// CookieStore is the ambient cookie source a client reads its session from
// and writes it back to. The server and browser handle variants differ only
// in which CookieStore they use.
type CookieStore interface {
	Get(name string) (string, bool)
	Set(cookie *http.Cookie)
}

// RequestCookies reads cookies from an inbound request and writes changes to
// its response. Writes are overlaid on the request so later reads within the
// same request observe them.
type RequestCookies struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	r       *http.Request
	overlay map[string]*http.Cookie
}

var _ CookieStore = (*RequestCookies)(nil)

func NewRequestCookies(w http.ResponseWriter, r *http.Request) *RequestCookies {
	return &RequestCookies{w: w, r: r, overlay: make(map[string]*http.Cookie)}
}

func (c *RequestCookies) Get(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if written, ok := c.overlay[name]; ok {
		if written.MaxAge < 0 {
			return "", false
		}
		return written.Value, true
	}
	cookie, err := c.r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (c *RequestCookies) Set(cookie *http.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.overlay[cookie.Name] = cookie
	if c.w != nil {
		http.SetCookie(c.w, cookie)
	}
}

// MemoryCookies is a standalone cookie jar used by browser-style clients
// that are not bound to a single HTTP exchange.
type MemoryCookies struct {
	mu      sync.RWMutex
	cookies map[string]string
}

var _ CookieStore = (*MemoryCookies)(nil)

func NewMemoryCookies() *MemoryCookies {
	return &MemoryCookies{cookies: make(map[string]string)}
}

func (m *MemoryCookies) Get(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.cookies[name]
	return v, ok
}

func (m *MemoryCookies) Set(cookie *http.Cookie) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cookie.MaxAge < 0 || cookie.Value == "" {
		delete(m.cookies, cookie.Name)
		return
	}
	m.cookies[cookie.Name] = cookie.Value
}

// Len returns the number of cookies held.
func (m *MemoryCookies) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cookies)
}
