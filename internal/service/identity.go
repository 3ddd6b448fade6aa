package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/cache"
	"github.com/quocanhngo/talkcore/internal/model"
	"github.com/quocanhngo/talkcore/internal/repository"
	"go.uber.org/zap"
)

// IdentityResolver maps user ids to display profiles. Every requested id is
// present in the result; unknown users get model.UnknownProfile.
type IdentityResolver interface {
	Resolve(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Profile, error)
}

// UserDirectory resolves identities from the users table through the Redis
// identity cache
type UserDirectory struct {
	users repository.UserStore
	cache *cache.IdentityCache
	log   *zap.Logger
}

func NewUserDirectory(users repository.UserStore, c *cache.IdentityCache, log *zap.Logger) *UserDirectory {
	return &UserDirectory{users: users, cache: c, log: log.Named("identity")}
}

func (d *UserDirectory) Resolve(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Profile, error) {
	profiles, missing, err := d.cache.GetMany(ctx, ids)
	if err != nil {
		d.log.Warn("identity cache read failed", zap.Error(err))
	}
	if len(missing) == 0 {
		return profiles, nil
	}

	users, err := d.users.FindByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	fresh := make([]model.Profile, 0, len(users))
	for i := range users {
		p := users[i].ToProfile()
		profiles[p.UserID] = p
		fresh = append(fresh, p)
	}
	if err := d.cache.SetMany(ctx, fresh); err != nil {
		d.log.Warn("identity cache write failed", zap.Error(err))
	}

	for _, id := range missing {
		if _, ok := profiles[id]; !ok {
			profiles[id] = model.UnknownProfile(id)
		}
	}
	return profiles, nil
}

// StaticDirectory is a fixed in-process IdentityResolver used with the
// memory store driver and in tests
type StaticDirectory map[uuid.UUID]model.Profile

func (d StaticDirectory) Resolve(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Profile, error) {
	out := make(map[uuid.UUID]model.Profile, len(ids))
	for _, id := range ids {
		if p, ok := d[id]; ok {
			out[id] = p
		} else {
			out[id] = model.UnknownProfile(id)
		}
	}
	return out, nil
}
