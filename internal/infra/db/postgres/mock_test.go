//go:build !integration

package postgres

import (
	"context"
	"time"

	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/repository"
	red "speech-flow-bot/internal/infra/redis"
)

// mockInnerUserRepo mocks the repository the cache decorates.
type mockInnerUserRepo struct {
	SaveFunc             func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByTelegramIDFunc func(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error)
	UpdateLevelFunc      func(ctx context.Context, tx repository.Tx, tgID int64, level model.Level) error
	RecordActivityFunc   func(ctx context.Context, tx repository.Tx, tgID int64, now time.Time, tokens int64) error
	CountUsersFunc       func(ctx context.Context, tx repository.Tx) (int, error)
}

var _ repository.UserRepository = (*mockInnerUserRepo)(nil)

func (m *mockInnerUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	return m.SaveFunc(ctx, tx, u)
}
func (m *mockInnerUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	return m.FindByTelegramIDFunc(ctx, tx, tgID)
}
func (m *mockInnerUserRepo) UpdateLevel(ctx context.Context, tx repository.Tx, tgID int64, level model.Level) error {
	return m.UpdateLevelFunc(ctx, tx, tgID, level)
}
func (m *mockInnerUserRepo) RecordActivity(ctx context.Context, tx repository.Tx, tgID int64, now time.Time, tokens int64) error {
	return m.RecordActivityFunc(ctx, tx, tgID, now, tokens)
}
func (m *mockInnerUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	return m.CountUsersFunc(ctx, tx)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc   func(ctx context.Context, key string) (string, error)
	SetFunc   func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc   func(ctx context.Context, keys ...string) error
	PingFunc  func(ctx context.Context) error
	CloseFunc func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
