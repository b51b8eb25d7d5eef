package postgres

import (
	"context"
	"fmt"
	"time"

	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/repository"
	"speech-flow-bot/internal/infra/metrics"
	red "speech-flow-bot/internal/infra/redis"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration, log *zerolog.Logger) repository.UserRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &userRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   ttl,
		log:   log,
	}
}

func userKey(tgID int64) string { return fmt.Sprintf("user:tg:%d", tgID) }

// Writes drop the cached row once they are visible: right after a plain
// write, or after commit when they run inside a transaction.
func (d *userRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if err := d.inner.Save(ctx, tx, u); err != nil {
		return err
	}
	d.invalidate(ctx, tx, u.TelegramID)
	return nil
}

func (d *userRepoCacheDecorator) UpdateLevel(ctx context.Context, tx repository.Tx, tgID int64, level model.Level) error {
	if err := d.inner.UpdateLevel(ctx, tx, tgID, level); err != nil {
		return err
	}
	d.invalidate(ctx, tx, tgID)
	return nil
}

func (d *userRepoCacheDecorator) RecordActivity(ctx context.Context, tx repository.Tx, tgID int64, now time.Time, tokens int64) error {
	if err := d.inner.RecordActivity(ctx, tx, tgID, now, tokens); err != nil {
		return err
	}
	d.invalidate(ctx, tx, tgID)
	return nil
}

func (d *userRepoCacheDecorator) invalidate(ctx context.Context, tx repository.Tx, tgID int64) {
	repository.OnCommit(ctx, tx, func() {
		if err := d.cache.Del(context.WithoutCancel(ctx), userKey(tgID)); err != nil {
			d.log.Warn().Err(err).Int64("tg_id", tgID).Msg("user cache invalidation failed")
		}
	})
}

// Reads inside a transaction bypass the cache.
func (d *userRepoCacheDecorator) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	if tx != nil {
		metrics.IncCacheRequest("user", "bypass")
		return d.inner.FindByTelegramID(ctx, tx, tgID)
	}

	key := userKey(tgID)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var user model.User
		if json.Unmarshal([]byte(val), &user) == nil {
			metrics.IncCacheRequest("user", "hit")
			return &user, nil
		}
	} else if !red.IsMiss(err) {
		d.log.Warn().Err(err).Msg("user cache read failed")
	}

	metrics.IncCacheRequest("user", "miss")
	user, err := d.inner.FindByTelegramID(ctx, tx, tgID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(user); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return user, nil
}

func (d *userRepoCacheDecorator) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	return d.inner.CountUsers(ctx, tx)
}
