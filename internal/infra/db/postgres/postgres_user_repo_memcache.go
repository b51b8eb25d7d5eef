package postgres

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/repository"
	"speech-flow-bot/internal/infra/metrics"
)

var _ repository.UserRepository = (*userRepoMemCache)(nil)

// userRepoMemCache is the in-process variant of the user cache, wired when
// no redis is configured. Entries are copies so callers cannot mutate them.
type userRepoMemCache struct {
	inner repository.UserRepository
	cache *gocache.Cache
}

func NewUserRepoMemCache(inner repository.UserRepository, ttl time.Duration) repository.UserRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &userRepoMemCache{
		inner: inner,
		cache: gocache.New(ttl, ttl*2),
	}
}

func (d *userRepoMemCache) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if err := d.inner.Save(ctx, tx, u); err != nil {
		return err
	}
	d.invalidate(ctx, tx, u.TelegramID)
	return nil
}

func (d *userRepoMemCache) UpdateLevel(ctx context.Context, tx repository.Tx, tgID int64, level model.Level) error {
	if err := d.inner.UpdateLevel(ctx, tx, tgID, level); err != nil {
		return err
	}
	d.invalidate(ctx, tx, tgID)
	return nil
}

func (d *userRepoMemCache) RecordActivity(ctx context.Context, tx repository.Tx, tgID int64, now time.Time, tokens int64) error {
	if err := d.inner.RecordActivity(ctx, tx, tgID, now, tokens); err != nil {
		return err
	}
	d.invalidate(ctx, tx, tgID)
	return nil
}

// invalidate waits for the commit so a read racing an open transaction
// cannot put the old row back.
func (d *userRepoMemCache) invalidate(ctx context.Context, tx repository.Tx, tgID int64) {
	key := userKey(tgID)
	repository.OnCommit(ctx, tx, func() { d.cache.Delete(key) })
}

func (d *userRepoMemCache) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	if tx != nil {
		metrics.IncCacheRequest("user_mem", "bypass")
		return d.inner.FindByTelegramID(ctx, tx, tgID)
	}

	key := userKey(tgID)
	if v, ok := d.cache.Get(key); ok {
		if u, ok := v.(model.User); ok {
			metrics.IncCacheRequest("user_mem", "hit")
			return &u, nil
		}
	}

	metrics.IncCacheRequest("user_mem", "miss")
	user, err := d.inner.FindByTelegramID(ctx, tx, tgID)
	if err != nil {
		return nil, err
	}
	d.cache.Set(key, *user, gocache.DefaultExpiration)
	return user, nil
}

func (d *userRepoMemCache) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	return d.inner.CountUsers(ctx, tx)
}
