package profiles_test

import (
	"net/http"
	"testing"

	"github.com/jrsteele09/go-auth-starter/backend"
	"github.com/jrsteele09/go-auth-starter/backend/backendtest"
	errs "github.com/jrsteele09/go-auth-starter/internal/errors"
	"github.com/jrsteele09/go-auth-starter/profiles"
	"github.com/stretchr/testify/require"
)

func newRESTRepo(t *testing.T, fake *backendtest.Server) *profiles.RESTRepo {
	t.Helper()
	client, err := backend.NewBrowserClient(fake.Options(), nil)
	require.NoError(t, err)
	return profiles.NewRESTRepo(client)
}

func TestRESTRepoGetByID(t *testing.T) {
	fake := backendtest.New(t)
	id := fake.AddUser("ada@example.com", "secret")
	fake.AddProfile(map[string]any{
		"id":         id,
		"username":   "ada",
		"full_name":  "Ada Lovelace",
		"updated_at": "2024-05-01T10:00:00Z",
	})

	p, err := newRESTRepo(t, fake).GetByID(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, id, p.ID)
	require.Equal(t, "Ada Lovelace", p.DisplayName())
	require.NotNil(t, p.UpdatedAt)
	require.Nil(t, p.AvatarURL)
}

func TestRESTRepoMissingRow(t *testing.T) {
	fake := backendtest.New(t)
	id := fake.AddUser("ada@example.com", "secret")

	_, err := newRESTRepo(t, fake).GetByID(t.Context(), id)
	require.ErrorIs(t, err, errs.ErrProfileNotFound)
}

func TestRESTRepoBackendFailure(t *testing.T) {
	fake := backendtest.New(t)
	fake.ProfileStatus = http.StatusInternalServerError
	id := fake.AddUser("ada@example.com", "secret")

	_, err := newRESTRepo(t, fake).GetByID(t.Context(), id)
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrProfileNotFound)

	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestRESTRepoInvalidIDSkipsBackend(t *testing.T) {
	fake := backendtest.New(t)

	_, err := newRESTRepo(t, fake).GetByID(t.Context(), "1; drop table")
	require.ErrorIs(t, err, errs.ErrInvalidUserID)
	require.Zero(t, fake.Calls("profiles"))
}
