package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	errs "github.com/jrsteele09/go-auth-starter/internal/errors"
)

// PgxRepo reads profiles straight from the backend's Postgres database. It
// connects as a database role, so row level security is whatever that role
// is subject to; use it only for server-side reads of the caller's own row.
type PgxRepo struct {
	pool *pgxpool.Pool
}

var _ Repo = (*PgxRepo)(nil)

func NewPgxRepo(pool *pgxpool.Pool) *PgxRepo {
	return &PgxRepo{pool: pool}
}

// Connect opens and pings a pool for databaseURL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("[profiles Connect] failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("[profiles Connect] failed to ping database: %w", err)
	}
	return pool, nil
}

func (r *PgxRepo) GetByID(ctx context.Context, id string) (*Profile, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	query := `SELECT id::text, updated_at, username, full_name, avatar_url, website FROM public.profiles WHERE id = $1`

	var p Profile
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.UpdatedAt, &p.Username, &p.FullName, &p.AvatarURL, &p.Website,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("[profiles PgxRepo] %s: %w", id, errs.ErrProfileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("[profiles PgxRepo] %s: %w", id, err)
	}
	return &p, nil
}
