package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jrsteele09/go-auth-starter/internal/logging"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "profile:"

// CachedRepo is a read-through redis cache in front of another Repo. Only
// found rows are cached; cache failures fall through to the wrapped repo.
type CachedRepo struct {
	next Repo
	rdb  redis.Cmdable
	ttl  time.Duration
}

var _ Repo = (*CachedRepo)(nil)

func NewCachedRepo(next Repo, rdb redis.Cmdable, ttl time.Duration) *CachedRepo {
	return &CachedRepo{next: next, rdb: rdb, ttl: ttl}
}

func (c *CachedRepo) GetByID(ctx context.Context, id string) (*Profile, error) {
	logger := logging.FromContext(ctx)
	key := cacheKeyPrefix + id

	cached, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p Profile
		if jsonErr := json.Unmarshal(cached, &p); jsonErr == nil {
			return &p, nil
		}
		logger.Warn().Str("key", key).Msg("discarding undecodable cached profile")
	case !errors.Is(err, redis.Nil):
		logger.Warn().Err(err).Str("key", key).Msg("profile cache read failed")
	}

	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(p)
	if err == nil {
		err = c.rdb.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("profile cache write failed")
	}
	return p, nil
}

// Invalidate drops the cached row for id.
func (c *CachedRepo) Invalidate(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, cacheKeyPrefix+id).Err()
}
