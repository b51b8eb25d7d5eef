// Package dispatch spreads outbound calls over a pool of interchangeable
// API credentials. Each attempt takes the next credential in round-robin
// order; failed attempts are retried with a jittered pause until every
// credential had AttemptsPerCredential tries.
package dispatch

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"speech-flow-bot/internal/infra/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseDelay             = 500 * time.Millisecond
	DefaultJitter                = time.Second
	DefaultAttemptsPerCredential = 2

	logErrorLimit = 200
)

// Operation performs one upstream call with the given credential.
type Operation func(ctx context.Context, credential string) error

// Options tunes the retry loop. Zero values fall back to the defaults.
type Options struct {
	BaseDelay             time.Duration
	Jitter                time.Duration
	AttemptsPerCredential int

	// Name labels logs and metrics, e.g. "groq".
	Name   string
	Logger *zerolog.Logger
	// Rand feeds the jitter; tests inject a seeded source.
	Rand *rand.Rand
	// Timer replaces the wall clock wait between attempts.
	Timer backoff.Timer
}

// Dispatcher owns a credential pool and a shared round-robin cursor.
// It is safe for concurrent use.
type Dispatcher struct {
	pool []string
	opts Options
	log  *zerolog.Logger

	mu     sync.Mutex
	cursor int

	rngMu sync.Mutex
}

// New builds a dispatcher over the non-blank credentials. An empty pool is
// allowed; every Do on it fails with ErrNoCredentials.
func New(credentials []string, opts Options) *Dispatcher {
	pool := make([]string, 0, len(credentials))
	for _, c := range credentials {
		if c = strings.TrimSpace(c); c != "" {
			pool = append(pool, c)
		}
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.Jitter < 0 {
		opts.Jitter = 0
	} else if opts.Jitter == 0 {
		opts.Jitter = DefaultJitter
	}
	if opts.AttemptsPerCredential <= 0 {
		opts.AttemptsPerCredential = DefaultAttemptsPerCredential
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("dispatcher", opts.Name).Logger()

	return &Dispatcher{pool: pool, opts: opts, log: &l}
}

// Size is the number of usable credentials.
func (d *Dispatcher) Size() int { return len(d.pool) }

// MaxAttempts is the attempt budget of one Do call.
func (d *Dispatcher) MaxAttempts() int { return len(d.pool) * d.opts.AttemptsPerCredential }

// Budget is the longest one Do call can take when every attempt runs for
// attemptTimeout and every pause draws the largest jitter.
func (d *Dispatcher) Budget(attemptTimeout time.Duration) time.Duration {
	n := d.MaxAttempts()
	if n == 0 {
		return 0
	}
	return time.Duration(n)*attemptTimeout + time.Duration(n-1)*(d.opts.BaseDelay+d.opts.Jitter)
}

// Cursor reports the index the next attempt will use.
func (d *Dispatcher) Cursor() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

// next returns the credential under the cursor and advances it by one.
func (d *Dispatcher) next() (int, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.cursor
	d.cursor = (d.cursor + 1) % len(d.pool)
	return idx, d.pool[idx]
}

// Do runs op until it succeeds or the attempt budget is spent.
// Failures come back as *ExhaustedError; an empty pool yields ErrNoCredentials.
func (d *Dispatcher) Do(ctx context.Context, op Operation) error {
	if len(d.pool) == 0 {
		metrics.IncDispatchExhausted(d.opts.Name)
		return ErrNoCredentials
	}

	maxAttempts := d.MaxAttempts()
	var (
		attempt int
		errs    []error
	)

	attemptOnce := func() error {
		attempt++
		idx, cred := d.next()
		err := op(ctx, cred)
		if err == nil {
			metrics.IncDispatchAttempt(d.opts.Name, "success")
			if attempt > 1 {
				d.log.Debug().Int("attempt", attempt).Int("key_index", idx).Msg("dispatch recovered")
			}
			return nil
		}
		metrics.IncDispatchAttempt(d.opts.Name, "failure")
		errs = append(errs, err)
		d.log.Warn().
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Int("key_index", idx).
			Str("error", truncate(err.Error(), logErrorLimit)).
			Msg("upstream request failed")
		return err
	}

	b := &jitterBackOff{base: d.opts.BaseDelay, jitter: d.opts.Jitter, mu: &d.rngMu, rng: d.opts.Rand}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)
	notify := func(_ error, wait time.Duration) {
		d.log.Debug().Dur("wait", wait).Int("next_attempt", attempt+1).Msg("retrying with next credential")
	}

	var err error
	if d.opts.Timer != nil {
		err = backoff.RetryNotifyWithTimer(attemptOnce, policy, notify, d.opts.Timer)
	} else {
		err = backoff.RetryNotify(attemptOnce, policy, notify)
	}
	if err == nil {
		return nil
	}

	metrics.IncDispatchExhausted(d.opts.Name)
	exhausted := &ExhaustedError{Attempts: attempt, Errors: errs}
	if attempt < maxAttempts {
		exhausted.Ctx = ctx.Err()
	}
	d.log.Error().
		Int("attempts", attempt).
		Str("error", truncate(exhausted.Error(), logErrorLimit*2)).
		Msg("dispatch exhausted")
	return exhausted
}

// Call is Do for operations that produce a value.
func Call[T any](ctx context.Context, d *Dispatcher, fn func(ctx context.Context, credential string) (T, error)) (T, error) {
	var out T
	err := d.Do(ctx, func(ctx context.Context, credential string) error {
		v, err := fn(ctx, credential)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
