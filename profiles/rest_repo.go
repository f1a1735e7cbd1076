package profiles

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-auth-starter/backend"
	errs "github.com/jrsteele09/go-auth-starter/internal/errors"
)

// RESTRepo reads profiles through the backend's row API with the caller's
// session, so row level security applies.
type RESTRepo struct {
	client *backend.Client
}

var _ Repo = (*RESTRepo)(nil)

func NewRESTRepo(client *backend.Client) *RESTRepo {
	return &RESTRepo{client: client}
}

func (r *RESTRepo) GetByID(ctx context.Context, id string) (*Profile, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	var p Profile
	err := r.client.From(Table).Select("*").Eq("id", id).Single(ctx, &p)
	if errs.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("[profiles RESTRepo] %s: %w", id, errs.ErrProfileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("[profiles RESTRepo] %s: %w", id, err)
	}
	return &p, nil
}
