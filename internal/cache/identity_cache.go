package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const DefaultIdentityTTL = 10 * time.Minute

// IdentityCache keeps msgpack-encoded profiles in Redis so list and
// notification paths do not hit the users table for every participant.
// A nil *IdentityCache is a valid no-op cache.
type IdentityCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewIdentityCache creates an identity cache; ttl <= 0 uses DefaultIdentityTTL
func NewIdentityCache(rdb redis.Cmdable, ttl time.Duration) *IdentityCache {
	if ttl <= 0 {
		ttl = DefaultIdentityTTL
	}
	return &IdentityCache{rdb: rdb, ttl: ttl}
}

func identityKey(id uuid.UUID) string {
	return "identity:" + id.String()
}

// GetMany returns the cached profiles and the ids that were not cached.
// Undecodable entries count as misses.
func (c *IdentityCache) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Profile, []uuid.UUID, error) {
	found := make(map[uuid.UUID]model.Profile, len(ids))
	if c == nil || c.rdb == nil || len(ids) == 0 {
		return found, ids, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = identityKey(id)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return found, ids, err
	}

	var missing []uuid.UUID
	for i, id := range ids {
		raw, ok := vals[i].(string)
		if !ok {
			missing = append(missing, id)
			continue
		}
		var p model.Profile
		if err := msgpack.Unmarshal([]byte(raw), &p); err != nil {
			missing = append(missing, id)
			continue
		}
		found[id] = p
	}
	return found, missing, nil
}

// SetMany caches profiles in one pipeline
func (c *IdentityCache) SetMany(ctx context.Context, profiles []model.Profile) error {
	if c == nil || c.rdb == nil || len(profiles) == 0 {
		return nil
	}
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range profiles {
			data, err := msgpack.Marshal(p)
			if err != nil {
				return err
			}
			pipe.Set(ctx, identityKey(p.UserID), data, c.ttl)
		}
		return nil
	})
	return err
}

// Invalidate drops cached profiles, e.g. after the identity system reports a change
func (c *IdentityCache) Invalidate(ctx context.Context, ids ...uuid.UUID) error {
	if c == nil || c.rdb == nil || len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = identityKey(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}
