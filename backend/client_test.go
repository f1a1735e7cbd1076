package backend_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jrsteele09/go-auth-starter/backend"
	"github.com/jrsteele09/go-auth-starter/backend/backendtest"
	errs "github.com/jrsteele09/go-auth-starter/internal/errors"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "jane@example.com"
	testPassword = "correct-horse"
)

type recordedEvent struct {
	event  backend.AuthChangeEvent
	userID string
}

func newBrowserClient(t *testing.T, fake *backendtest.Server, jar *backend.MemoryCookies) (*backend.Client, *[]recordedEvent) {
	t.Helper()
	client, err := backend.NewBrowserClient(fake.Options(), jar)
	require.NoError(t, err)

	events := &[]recordedEvent{}
	client.OnAuthStateChange(func(e backend.AuthChangeEvent, s *backend.Session) {
		*events = append(*events, recordedEvent{event: e, userID: s.UserID()})
	})
	return client, events
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := backend.NewBrowserClient(backend.Options{}, nil)
	require.ErrorIs(t, err, errs.ErrMisconfigured)

	_, err = backend.NewServerClient(backend.Options{URL: "https://abcd.example.co"}, httptest.NewRecorder(), nil)
	require.ErrorIs(t, err, errs.ErrMisconfigured)
}

func TestDefaultCookieName(t *testing.T) {
	u, _ := url.Parse("https://abcdefgh.supabase.co")
	require.Equal(t, "sb-abcdefgh-auth-token", backend.DefaultCookieName(u))

	u, _ = url.Parse("http://127.0.0.1:54321")
	require.Equal(t, "sb-127-auth-token", backend.DefaultCookieName(u))
}

func TestGetSessionWithoutCookie(t *testing.T) {
	fake := backendtest.New(t)
	client, _ := newBrowserClient(t, fake, nil)

	session, err := client.GetSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, session)

	_, err = client.GetUser(context.Background())
	require.ErrorIs(t, err, errs.ErrNoSession)
	require.Zero(t, fake.Calls("user"))
}

func TestSignInWithPasswordStoresSession(t *testing.T) {
	fake := backendtest.New(t)
	userID := fake.AddUser(testEmail, testPassword)
	jar := backend.NewMemoryCookies()
	client, events := newBrowserClient(t, fake, jar)

	session, err := client.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, userID, session.UserID())
	require.NotZero(t, session.ExpiresAt)
	require.Equal(t, []recordedEvent{{backend.EventSignedIn, userID}}, *events)

	// A second handle on the same jar sees the stored session.
	other, err := backend.NewBrowserClient(fake.Options(), jar)
	require.NoError(t, err)
	stored, err := other.GetSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.AccessToken, stored.AccessToken)

	user, err := other.GetUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, testEmail, user.Email)
}

func TestSignInWithPasswordReturnsDisplayMessage(t *testing.T) {
	fake := backendtest.New(t)
	fake.AddUser(testEmail, testPassword)
	jar := backend.NewMemoryCookies()
	client, events := newBrowserClient(t, fake, jar)

	_, err := client.SignInWithPassword(context.Background(), testEmail, "wrong")
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrInvalidCredentials)

	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "Invalid login credentials", apiErr.Message)
	require.Equal(t, 0, jar.Len())
	require.Empty(t, *events)
}

func TestGetSessionRefreshesExpiredToken(t *testing.T) {
	fake := backendtest.New(t)
	userID := fake.AddUser(testEmail, testPassword)
	jar := backend.NewMemoryCookies()
	client, events := newBrowserClient(t, fake, jar)

	expired := fake.ExpiredSessionFor(testEmail)
	seedSession(t, fake, jar, &expired)

	session, err := client.GetSession(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, expired.AccessToken, session.AccessToken)
	require.Equal(t, 1, fake.Calls("token:refresh_token"))
	require.Equal(t, []recordedEvent{{backend.EventTokenRefreshed, userID}}, *events)

	// The refreshed session was written back, so no second refresh happens.
	_, err = client.GetSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fake.Calls("token:refresh_token"))
}

func TestRefreshMarginBeyondTokenLifetime(t *testing.T) {
	fake := backendtest.New(t)
	fake.AddUser(testEmail, testPassword)
	opts := fake.Options()
	opts.RefreshMargin = 2 * fake.TokenTTL
	client, err := backend.NewBrowserClient(opts, backend.NewMemoryCookies())
	require.NoError(t, err)

	_, err = client.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		session, err := client.GetSession(context.Background())
		require.NoError(t, err)
		require.NotNil(t, session)
	}
	require.Zero(t, fake.Calls("token:refresh_token"))
}

func TestGetSessionRefreshFailureSignsOut(t *testing.T) {
	fake := backendtest.New(t)
	fake.AddUser(testEmail, testPassword)
	jar := backend.NewMemoryCookies()
	client, events := newBrowserClient(t, fake, jar)

	expired := fake.ExpiredSessionFor(testEmail)
	expired.RefreshToken = "unknown"
	seedSession(t, fake, jar, &expired)

	session, err := client.GetSession(context.Background())
	require.ErrorIs(t, err, errs.ErrSessionExpired)
	require.Nil(t, session)
	require.Equal(t, 0, jar.Len())
	require.Equal(t, []recordedEvent{{backend.EventSignedOut, ""}}, *events)
}

func TestGetSessionRejectsForgedToken(t *testing.T) {
	fake := backendtest.New(t)
	fake.AddUser(testEmail, testPassword)
	jar := backend.NewMemoryCookies()
	client, _ := newBrowserClient(t, fake, jar)

	forged := fake.SessionFor(testEmail)
	parts := strings.Split(forged.AccessToken, ".")
	forged.AccessToken = parts[0] + "." + parts[1] + ".c2lnbmF0dXJl"
	seedSession(t, fake, jar, &forged)

	session, err := client.GetSession(context.Background())
	require.ErrorIs(t, err, errs.ErrInvalidToken)
	require.Nil(t, session)
}

func TestSignOutClearsCookies(t *testing.T) {
	fake := backendtest.New(t)
	fake.AddUser(testEmail, testPassword)
	jar := backend.NewMemoryCookies()
	client, events := newBrowserClient(t, fake, jar)

	_, err := client.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	require.NoError(t, client.SignOut(context.Background(), backend.SignOutGlobal))
	require.Equal(t, 1, fake.Calls("logout"))
	require.Equal(t, 0, jar.Len())
	require.Equal(t, backend.EventSignedOut, (*events)[len(*events)-1].event)

	session, err := client.GetSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestSignOutWithoutSessionIsLocalOnly(t *testing.T) {
	fake := backendtest.New(t)
	client, events := newBrowserClient(t, fake, nil)

	require.NoError(t, client.SignOut(context.Background(), ""))
	require.Equal(t, 0, fake.Calls("logout"))
	require.Equal(t, []recordedEvent{{backend.EventSignedOut, ""}}, *events)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	fake := backendtest.New(t)
	fake.AddUser(testEmail, testPassword)
	client, err := backend.NewBrowserClient(fake.Options(), nil)
	require.NoError(t, err)

	var order []string
	unsubscribeFirst := client.OnAuthStateChange(func(backend.AuthChangeEvent, *backend.Session) { order = append(order, "first") })
	client.OnAuthStateChange(func(backend.AuthChangeEvent, *backend.Session) { order = append(order, "second") })

	_, err = client.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, order)

	unsubscribeFirst()
	require.NoError(t, client.SignOut(context.Background(), backend.SignOutLocal))
	require.Equal(t, []string{"first", "second", "second"}, order)
}

func TestServerClientWritesCookiesToResponse(t *testing.T) {
	fake := backendtest.New(t)
	fake.AddUser(testEmail, testPassword)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	client, err := backend.NewServerClient(fake.Options(), rec, req)
	require.NoError(t, err)

	_, err = client.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	// Later reads in the same request observe the write.
	session, err := client.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, client.CookieName(), cookies[0].Name)
	require.True(t, strings.HasPrefix(cookies[0].Value, "base64-"))

	// The cookie carries the session into the next request.
	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookies[0])
	nextClient, err := backend.NewServerClient(fake.Options(), httptest.NewRecorder(), next)
	require.NoError(t, err)
	carried, err := nextClient.GetSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.AccessToken, carried.AccessToken)
}

// seedSession writes session into jar through a throwaway client.
func seedSession(t *testing.T, fake *backendtest.Server, jar *backend.MemoryCookies, session *backend.Session) {
	t.Helper()
	opts := fake.Options()
	opts.Verifier = nil
	seeder, err := backend.NewBrowserClient(opts, jar)
	require.NoError(t, err)
	require.NoError(t, seeder.SetSession(session))
}
