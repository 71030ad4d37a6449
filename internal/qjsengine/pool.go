//go:build qjsengine

package qjsengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/cryguy/isolatecore/internal/core"
	"golang.org/x/sync/semaphore"
)

// Pool is the qjsengine-backed Isolate Pool (spec §4.2), structurally
// identical to internal/engine.Pool — same LIFO idle stack, same counting
// semaphore, same guard-then-release ordering — so swapping build tags
// keeps a caller's admission contract. One dispatch difference: Worker.submit
// here takes no context, so Run does not observe ctx while its send waits
// for room on the worker's channel.
type Pool struct {
	mu      sync.Mutex
	idle    []*Worker
	sem     *semaphore.Weighted
	size    int64
	closing bool
}

// New spawns size workers concurrently and returns once all have signaled
// init (spec §4.2).
func New(size int, cfg core.IsolateConfig) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("qjsengine: pool size must be positive, got %d", size)
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
		return nil, fmt.Errorf("qjsengine: creating pool of size %d: %w", size, firstErr)
	}

	return &Pool{
		idle: idle,
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}, nil
}

// Size returns the configured pool size.
func (p *Pool) Size() int { return int(p.size) }

// Idle returns the number of currently idle workers.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

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

// Run acquires one permit, pops the most recently released worker,
// dispatches job to it, and awaits the reply (spec §4.2, §5).
func (p *Pool) Run(ctx context.Context, job Job) (any, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("qjsengine: acquiring pool permit: %w", err)
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
	if err := w.submit(jobEnvelope{job: job, reply: reply}); err != nil {
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
		return nil, ctx.Err()
	}
}

// Dispose closes every worker.
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
