// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"speech-flow-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var (
	ErrNilTask   = errors.New("nil task")
	ErrQueueFull = errors.New("worker queue full")
	ErrStopped   = errors.New("worker pool stopped")
)

// Task is a unit of background work. Its error is logged, never returned to the submitter.
type Task func(ctx context.Context) error

type job struct {
	name string
	run  Task
}

// Pool runs fire-and-forget tasks on a fixed set of goroutines.
// Submit never blocks: a saturated queue drops the task.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan job
	quit chan struct{}
	n    int
	log  *zerolog.Logger

	mu      sync.RWMutex
	stopped bool
}

func NewPool(workers int, log *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{jobs: make(chan job, workers*4), quit: make(chan struct{}), n: workers, log: log}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					p.drain(context.WithoutCancel(ctx), id)
					return
				case <-p.quit:
					p.drain(context.WithoutCancel(ctx), id)
					return
				case j := <-p.jobs:
					p.run(ctx, id, j)
				}
			}
		}(i)
	}
}

// drain runs whatever is still queued when Stop is called or the parent
// context ends. Tasks get a context that is no longer canceled.
func (p *Pool) drain(ctx context.Context, id int) {
	for {
		select {
		case j := <-p.jobs:
			p.run(ctx, id, j)
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, j job) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncBackgroundTask(j.name, "failed")
			p.log.Error().Int("worker", id).Str("task", j.name).Str("panic", fmt.Sprint(r)).Msg("task panicked")
		}
	}()
	if err := j.run(ctx); err != nil {
		metrics.IncBackgroundTask(j.name, "failed")
		p.log.Error().Err(err).Int("worker", id).Str("task", j.name).Msg("task failed")
		return
	}
	metrics.IncBackgroundTask(j.name, "completed")
}

func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.quit)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) Submit(name string, task Task) error {
	if task == nil {
		return ErrNilTask
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- job{name: name, run: task}:
		return nil
	default:
		metrics.IncBackgroundTask(name, "dropped")
		p.log.Warn().Str("task", name).Msg("worker queue full, task dropped")
		return ErrQueueFull
	}
}
