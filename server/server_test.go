package server_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jrsteele09/go-auth-starter/backend/backendtest"
	"github.com/jrsteele09/go-auth-starter/internal/config"
	"github.com/jrsteele09/go-auth-starter/internal/telemetry"
	"github.com/jrsteele09/go-auth-starter/internal/utils"
	"github.com/jrsteele09/go-auth-starter/profiles"
	"github.com/jrsteele09/go-auth-starter/profiles/repofake"
	"github.com/jrsteele09/go-auth-starter/server"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type harness struct {
	fake    *backendtest.Server
	repo    *repofake.FakeProfileRepo
	metrics *telemetry.Metrics
	app     *httptest.Server
	client  *http.Client
	adaID   string
}

func newHarness(t *testing.T, mutate ...func(*server.Dependencies)) *harness {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("OAUTH_PROVIDERS", "github")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")

	h := &harness{
		fake:    backendtest.New(t),
		repo:    repofake.NewFakeProfileRepo(),
		metrics: telemetry.NewMetrics(),
	}
	h.adaID = h.fake.AddUser("ada@example.com", "secret")
	h.repo.Upsert(&profiles.Profile{ID: h.adaID, FullName: utils.Ptr("Ada Lovelace"), Username: utils.Ptr("ada")})

	deps := server.Dependencies{
		Backend:     h.fake.Options(),
		Metrics:     h.metrics,
		ProfileRepo: h.repo,
	}
	for _, m := range mutate {
		m(&deps)
	}

	srv, err := server.New(config.New(), deps)
	require.NoError(t, err)
	h.app = httptest.NewServer(srv)
	t.Cleanup(h.app.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	h.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return h
}

func (h *harness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := h.client.Get(h.app.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) post(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := h.client.PostForm(h.app.URL+path, form)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) signIn(t *testing.T) {
	t.Helper()
	resp := h.post(t, server.RouteAuthLogin, url.Values{"email": {"ada@example.com"}, "password": {"secret"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func requireRedirect(t *testing.T, resp *http.Response, status int, path string) *url.URL {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, path, loc.Path)
	return loc
}

func TestRootWithoutSessionRedirectsToLogin(t *testing.T) {
	h := newHarness(t)

	resp := h.get(t, "/")
	requireRedirect(t, resp, http.StatusTemporaryRedirect, "/login")
}

func TestGuardAppliesToEveryMethod(t *testing.T) {
	h := newHarness(t)

	resp := h.post(t, "/", url.Values{})
	requireRedirect(t, resp, http.StatusTemporaryRedirect, "/login")

	resp = h.post(t, server.RouteLogin, url.Values{})
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	h.signIn(t)
	resp = h.post(t, server.RouteLogin, url.Values{})
	requireRedirect(t, resp, http.StatusTemporaryRedirect, "/")

	req, err := http.NewRequest(http.MethodDelete, h.app.URL+"/", nil)
	require.NoError(t, err)
	resp, err = h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Equal(t, "GET, HEAD", resp.Header.Get("Allow"))
}

func TestLoginPageRendersForAnonymousCaller(t *testing.T) {
	h := newHarness(t)

	resp := h.get(t, "/login?error=Nope&email=ada%40example.com")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := body(t, resp)
	require.Contains(t, page, "Nope")
	require.Contains(t, page, `value="ada@example.com"`)
	require.Contains(t, page, `href="/auth/oauth/github"`)
}

func TestLoginWithSessionRedirectsToRoot(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	resp := h.get(t, "/login")
	requireRedirect(t, resp, http.StatusTemporaryRedirect, "/")
}

func TestOtherPathsPassThrough(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, http.StatusNotFound, h.get(t, "/nowhere").StatusCode)
	require.Equal(t, http.StatusOK, h.get(t, "/health").StatusCode)

	h.signIn(t)
	require.Equal(t, http.StatusNotFound, h.get(t, "/nowhere").StatusCode)
}

func TestPasswordSignInFailureShowsBackendMessage(t *testing.T) {
	h := newHarness(t)

	resp := h.post(t, server.RouteAuthLogin, url.Values{"email": {"ada@example.com"}, "password": {"wrong"}})
	loc := requireRedirect(t, resp, http.StatusSeeOther, "/login")
	require.Equal(t, "Invalid login credentials", loc.Query().Get("error"))
	require.Equal(t, "ada@example.com", loc.Query().Get("email"))

	resp = h.post(t, server.RouteAuthLogin, url.Values{"email": {"ada@example.com"}})
	loc = requireRedirect(t, resp, http.StatusSeeOther, "/login")
	require.Equal(t, "Email and password are required", loc.Query().Get("error"))
	require.Equal(t, 1, h.fake.Calls("token:password"))
}

func TestHTMXSignInUsesHXRedirect(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequest(http.MethodPost, h.app.URL+server.RouteAuthLogin,
		strings.NewReader(url.Values{"email": {"ada@example.com"}, "password": {"secret"}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")

	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("HX-Redirect"))
}

func TestIndexShowsProfile(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	resp := h.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := body(t, resp)
	require.Contains(t, page, "Signed in as ada@example.com")
	require.Contains(t, page, "Ada Lovelace")
	require.Contains(t, page, "@ada")
	require.Equal(t, 1, h.repo.Calls(h.adaID))
}

func TestIndexShowsProfileFailure(t *testing.T) {
	h := newHarness(t)
	h.repo.FailWith(errors.New("db down"))
	h.signIn(t)

	resp := h.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body(t, resp), "could not be loaded")
}

func TestIndexReadsProfileThroughRowAPIByDefault(t *testing.T) {
	h := newHarness(t, func(d *server.Dependencies) { d.ProfileRepo = nil })
	h.fake.AddProfile(map[string]any{"id": h.adaID, "full_name": "Ada From Backend"})
	h.signIn(t)

	page := body(t, h.get(t, "/"))
	require.Contains(t, page, "Ada From Backend")
	require.Equal(t, 1, h.fake.Calls("profiles"))
	require.Zero(t, h.repo.Calls(h.adaID))
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	resp := h.post(t, server.RouteAuthLogout, nil)
	requireRedirect(t, resp, http.StatusSeeOther, "/login")
	require.Equal(t, 1, h.fake.Calls("logout"))

	requireRedirect(t, h.get(t, "/"), http.StatusTemporaryRedirect, "/login")
	require.Equal(t, http.StatusOK, h.get(t, "/login").StatusCode)
}

func TestProfileAPI(t *testing.T) {
	h := newHarness(t)

	resp := h.get(t, server.RouteAPIProfile)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.signIn(t)
	resp = h.get(t, server.RouteAPIProfile)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	require.JSONEq(t, `{"state":"success","profile":{"id":"`+h.adaID+`","full_name":"Ada Lovelace","username":"ada"}}`, body(t, resp))
}

func TestProfileAPICORS(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequest(http.MethodOptions, h.app.URL+server.RouteAPIProfile, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req, err = http.NewRequest(http.MethodOptions, h.app.URL+server.RouteAPIProfile, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestOAuthSignIn(t *testing.T) {
	h := newHarness(t)

	resp := h.get(t, "/auth/oauth/github?next=/api/profile")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	authorize, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(authorize.String(), h.fake.URL+"/auth/v1/authorize?"))
	require.Equal(t, "github", authorize.Query().Get("provider"))
	require.Equal(t, "http://localhost:8080/auth/callback?next=%2Fapi%2Fprofile", authorize.Query().Get("redirect_to"))

	code := h.fake.AuthorizeCode(h.adaID, authorize.Query().Get("code_challenge"))
	resp = h.get(t, "/auth/callback?code="+code+"&next=/api/profile")
	requireRedirect(t, resp, http.StatusSeeOther, "/api/profile")

	requireRedirect(t, h.get(t, "/login"), http.StatusTemporaryRedirect, "/")
}

func TestOAuthRejectsUnconfiguredProvider(t *testing.T) {
	h := newHarness(t)

	loc := requireRedirect(t, h.get(t, "/auth/oauth/gitlab"), http.StatusSeeOther, "/login")
	require.Equal(t, "Unsupported sign in provider", loc.Query().Get("error"))
}

func TestOAuthCallbackFailures(t *testing.T) {
	h := newHarness(t)

	loc := requireRedirect(t, h.get(t, "/auth/callback?error=access_denied&error_description=User+cancelled"), http.StatusSeeOther, "/login")
	require.Equal(t, "User cancelled", loc.Query().Get("error"))

	loc = requireRedirect(t, h.get(t, "/auth/callback"), http.StatusSeeOther, "/login")
	require.Equal(t, "Missing authorization code", loc.Query().Get("error"))

	// no verifier cookie was ever set
	loc = requireRedirect(t, h.get(t, "/auth/callback?code=abc"), http.StatusSeeOther, "/login")
	require.Equal(t, "Could not complete sign in", loc.Query().Get("error"))
	require.Zero(t, h.fake.Calls("token:pkce"))
}

func TestReadiness(t *testing.T) {
	h := newHarness(t, func(d *server.Dependencies) {
		d.ReadyChecks = map[string]server.ReadinessCheck{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		}
	})

	resp := h.get(t, server.RouteReady)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.JSONEq(t, `{"status":"unavailable","checks":{"database":"ok","redis":"connection refused"}}`, body(t, resp))
}

func TestMetricsExposeGuardDecisions(t *testing.T) {
	h := newHarness(t)
	h.get(t, "/")
	h.get(t, "/login")

	page := body(t, h.get(t, server.RouteMetrics))
	require.Contains(t, page, `auth_starter_guard_decisions_total{decision="redirect_login"} 1`)
	require.Contains(t, page, `auth_starter_guard_decisions_total{decision="pass"} 1`)
	require.Contains(t, page, `auth_starter_http_requests_total{code="307",method="GET"} 1`)
}

func TestStaticAssets(t *testing.T) {
	h := newHarness(t)

	resp := h.get(t, "/static/app.css")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/css; charset=utf-8", resp.Header.Get("Content-Type"))
	require.Equal(t, "public, max-age=300, must-revalidate", resp.Header.Get("Cache-Control"))

	require.Equal(t, http.StatusNotFound, h.get(t, "/static/missing.js").StatusCode)
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newHarness(t)

	resp := h.get(t, "/login")
	require.Len(t, resp.Header.Get("X-Request-ID"), 36)
	require.Equal(t, "SAMEORIGIN", resp.Header.Get("X-Frame-Options"))
}

func TestNewRequiresBackendURL(t *testing.T) {
	_, err := server.New(config.New(), server.Dependencies{})
	require.Error(t, err)
}

func TestRequestsAreTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	h := newHarness(t)
	h.signIn(t)

	spans := map[string]sdktrace.ReadOnlySpan{}
	for _, span := range recorder.Ended() {
		spans[span.Name()] = span
	}
	request, ok := spans["POST /auth/login"]
	require.True(t, ok)
	signIn, ok := spans["backend.sign_in_password"]
	require.True(t, ok)
	require.Equal(t, request.SpanContext().SpanID(), signIn.Parent().SpanID())
}
