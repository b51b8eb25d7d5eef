package dispatch

import (
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// jitterBackOff waits base plus a uniform [0, jitter) component between attempts.
type jitterBackOff struct {
	base   time.Duration
	jitter time.Duration

	mu  *sync.Mutex
	rng *rand.Rand
}

var _ backoff.BackOff = (*jitterBackOff)(nil)

func (b *jitterBackOff) NextBackOff() time.Duration {
	if b.jitter <= 0 {
		return b.base
	}
	b.mu.Lock()
	j := time.Duration(b.rng.Int63n(int64(b.jitter)))
	b.mu.Unlock()
	return b.base + j
}

func (b *jitterBackOff) Reset() {}
