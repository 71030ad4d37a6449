//go:build !qjsengine

package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/cryguy/isolatecore/internal/core"
	"golang.org/x/sync/semaphore"
)

// Pool manages a fixed-size set of Engine Workers (spec §3, §4.2). Idle
// workers live on a LIFO stack — chosen over FIFO so a lightly loaded pool
// keeps a small hot set of workers warm (code caches, JITed baselines)
// instead of cycling all of them (spec §4.2 design note). Admission is
// gated by a counting semaphore whose permit count equals the pool size.
type Pool struct {
	mu      sync.Mutex
	idle    []*Worker // LIFO: idle[len-1] is the most recently released
	sem     *semaphore.Weighted
	size    int64
	closing bool
}

// New spawns size workers concurrently and returns once all have signaled
// init (spec §4.2 contract: "new(size, config) ... returns only when all
// have signaled init").
func New(size int, cfg core.IsolateConfig) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("engine: pool size must be positive, got %d", size)
	}

	type spawnResult struct {
		w   *Worker
		err error
	}
	results := make(chan spawnResult, size)
	for i := 0; i < size; i++ {
		i := i
		go func() {
			w, err := newWorker(i, cfg)
			results <- spawnResult{w: w, err: err}
		}()
	}

	idle := make([]*Worker, 0, size)
	var firstErr error
	for i := 0; i < size; i++ {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		idle = append(idle, r.w)
	}
	if firstErr != nil {
		for _, w := range idle {
			w.close()
		}
		return nil, fmt.Errorf("engine: creating pool of size %d: %w", size, firstErr)
	}

	return &Pool{
		idle: idle,
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}, nil
}

// Size returns the configured pool size (the semaphore's total permits).
func (p *Pool) Size() int { return int(p.size) }

// Idle returns the number of currently idle workers. Test/observability
// helper only (spec §8 invariant 2, "Worker conservation").
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// guard returns the most recently released worker to the idle stack,
// then releases the semaphore permit. This ordering is load-bearing: an
// implementation that released the permit first could admit a second
// caller into a pool whose stack is transiently empty (spec §4.2
// "Cancellation safety", §9 design note).
type guard struct {
	pool *Pool
	w    *Worker
}

func (g *guard) release() {
	g.pool.mu.Lock()
	g.pool.idle = append(g.pool.idle, g.w)
	g.pool.mu.Unlock()
	g.pool.sem.Release(1)
}

// Run acquires one permit (blocking/cooperatively until available), pops
// the most recently released worker, dispatches job to it, and awaits the
// reply — returning the worker to the pool in finite time even if ctx is
// cancelled before or during the job (spec §4.2, §5 "Cancellation").
func (p *Pool) Run(ctx context.Context, job Job) (any, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("engine: acquiring pool permit: %w", err)
	}

	p.mu.Lock()
	n := len(p.idle)
	if n == 0 {
		p.mu.Unlock()
		p.sem.Release(1)
		panic(fmt.Errorf("%w: permit granted but idle stack is empty", core.ErrPoolCorruption))
	}
	w := p.idle[n-1]
	p.idle = p.idle[:n-1]
	p.mu.Unlock()

	g := &guard{pool: p, w: w}
	defer g.release()

	reply := make(chan jobReply, 1)
	if err := w.submit(ctx, jobEnvelope{job: job, reply: reply}); err != nil {
		return nil, err
	}

	select {
	case r, ok := <-reply:
		if !ok {
			return nil, fmt.Errorf("%w: worker %d reply channel closed without a value", core.ErrPoolCorruption, w.id)
		}
		if r.terminated {
			return nil, fmt.Errorf("%w", core.ErrJobTerminated)
		}
		return r.val, r.err
	case <-ctx.Done():
		// Cancellation: the job still runs to completion/termination on the
		// worker; we simply stop waiting and its result is discarded. The
		// deferred g.release() puts the worker back on the stack as soon as
		// Run returns, while the job may still be running; the next caller
		// that pops it has its job queued on the worker's channel and run
		// after this one finishes.
		return nil, ctx.Err()
	}
}

// Dispose closes every worker. Safe to call once; Run must not be called
// concurrently with Dispose.
func (p *Pool) Dispose() {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return
	}
	p.closing = true
	workers := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, w := range workers {
		w.close()
	}
}
