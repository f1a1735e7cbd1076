package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	errs "github.com/jrsteele09/go-auth-starter/internal/errors"
	"github.com/jrsteele09/go-auth-starter/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	authPath = "/auth/v1"
	restPath = "/rest/v1"

	contentTypeJSON = "application/json"
)

// Options configures a client handle. The same Options value is normally
// shared by every handle the application creates.
type Options struct {
	// URL is the backend project URL, e.g. https://abcd.supabase.co
	URL string
	// AnonKey is sent as the apikey header on every call
	AnonKey string
	// CookieName overrides the derived sb-<ref>-auth-token name
	CookieName string
	Cookie     CookieOptions
	// RefreshMargin refreshes access tokens this long before they expire
	RefreshMargin time.Duration
	// Verifier, when set, must accept the access token for a session to be returned
	Verifier TokenVerifier
	// Sealer, when set, encrypts the PKCE verifier cookie
	Sealer     *Sealer
	HTTPClient *http.Client
	// OnRequest observes every backend round trip
	OnRequest func(operation string, status int, elapsed time.Duration)
	Now       func() time.Time
}

// Client is a typed accessor to the hosted backend bound to one cookie store.
type Client struct {
	opts    Options
	baseURL string
	http    *http.Client
	storage sessionStorage
	now     func() time.Time

	mu        sync.Mutex
	listeners []listenerEntry
	nextID    int
}

// NewServerClient returns a handle that reads the session from the request's
// cookies and writes refreshed or cleared cookies to w.
func NewServerClient(opts Options, w http.ResponseWriter, r *http.Request) (*Client, error) {
	if r == nil {
		return nil, fmt.Errorf("[backend NewServerClient] request is required: %w", errs.ErrMisconfigured)
	}
	return newClient(opts, NewRequestCookies(w, r))
}

// NewBrowserClient returns a handle that keeps its cookies in jar. A nil jar
// gets a fresh in-memory one.
func NewBrowserClient(opts Options, jar CookieStore) (*Client, error) {
	if jar == nil {
		jar = NewMemoryCookies()
	}
	return newClient(opts, jar)
}

func newClient(opts Options, store CookieStore) (*Client, error) {
	base := strings.TrimRight(opts.URL, "/")
	u, err := url.Parse(base)
	if err != nil || base == "" || u.Host == "" {
		return nil, fmt.Errorf("[backend newClient] invalid backend URL %q: %w", opts.URL, errs.ErrMisconfigured)
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName(u)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Cookie = opts.Cookie.withDefaults()

	return &Client{
		opts:    opts,
		baseURL: base,
		http:    opts.HTTPClient,
		now:     opts.Now,
		storage: sessionStorage{store: store, name: opts.CookieName, opts: opts.Cookie},
	}, nil
}

// DefaultCookieName derives sb-<project-ref>-auth-token from the backend
// URL, the project ref being the first label of the host name.
func DefaultCookieName(u *url.URL) string {
	ref := strings.SplitN(u.Hostname(), ".", 2)[0]
	return "sb-" + ref + "-auth-token"
}

// CookieName returns the name of the session cookie this handle manages.
func (c *Client) CookieName() string {
	return c.opts.CookieName
}

type request struct {
	operation string
	method    string
	path      string
	query     url.Values
	body      any
	bearer    string
	accept    string
}

// do performs one backend round trip, decoding a 2xx JSON body into out
// (when non-nil) and any other status into an *APIError.
func (c *Client) do(ctx context.Context, req request, out any) error {
	ctx, span := telemetry.StartSpan(ctx, "backend."+req.operation)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", req.method),
		attribute.String("backend.path", req.path),
	)

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("[backend %s] failed to encode request: %w", req.operation, err)
		}
		body = bytes.NewReader(payload)
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return fmt.Errorf("[backend %s] failed to build request: %w", req.operation, err)
	}
	httpReq.Header.Set("apikey", c.opts.AnonKey)
	bearer := req.bearer
	if bearer == "" {
		bearer = c.opts.AnonKey
	}
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", contentTypeJSON)
	}
	accept := req.accept
	if accept == "" {
		accept = contentTypeJSON
	}
	httpReq.Header.Set("Accept", accept)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.observe(req.operation, 0, start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return fmt.Errorf("[backend %s] request failed: %w", req.operation, err)
	}
	defer resp.Body.Close()
	c.observe(req.operation, resp.StatusCode, start)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("[backend %s] failed to read response: %w", req.operation, err)
	}
	if resp.StatusCode >= 400 {
		apiErr := parseAPIError(resp.StatusCode, payload)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, apiErr.Message)
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = payload
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("[backend %s] failed to decode response: %w", req.operation, err)
	}
	return nil
}

func (c *Client) observe(operation string, status int, start time.Time) {
	if c.opts.OnRequest != nil {
		c.opts.OnRequest(operation, status, time.Since(start))
	}
}
