package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// Locker mirrors the redis turn lock: TryLock never waits and an entry
// expires after its ttl even if Unlock is never called.
type Locker struct {
	mu    sync.Mutex
	locks *gocache.Cache
}

func NewLocker() *Locker {
	return &Locker{locks: gocache.New(gocache.NoExpiration, time.Minute)}
}

// TryLock and Unlock share mu so an Unlock that saw its own expired entry
// cannot delete a lock taken in between.
func (l *Locker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	l.mu.Lock()
	defer l.mu.Unlock()
	// Add fails while an unexpired entry exists.
	if err := l.locks.Add(key, token, ttl); err != nil {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock releases the key only for the holder of token.
func (l *Locker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.locks.Get(key); ok && v == token {
		l.locks.Delete(key)
	}
	return nil
}
