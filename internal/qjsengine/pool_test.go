//go:build qjsengine

package qjsengine

import (
	"context"
	"sync"
	"testing"

	"github.com/cryguy/isolatecore/internal/core"
	"modernc.org/quickjs"
)

func evalInt(jc *JobContext, src string) (any, error) {
	v, err := jc.VM().Eval(src, quickjs.EvalGlobal)
	if err != nil {
		return nil, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	default:
		return 0, nil
	}
}

func TestPoolWorkerConservation(t *testing.T) {
	p, err := New(3, core.IsolateConfig{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Dispose()

	if got := p.Idle(); got != 3 {
		t.Fatalf("Idle() before use = %d, want 3", got)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Run(context.Background(), func(jc *JobContext) (any, error) {
				return evalInt(jc, "1+1")
			}); err != nil {
				t.Errorf("Run() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := p.Idle(); got != 3 {
		t.Fatalf("Idle() after all jobs completed = %d, want 3", got)
	}
}

func TestPoolRejectsNonPositiveSize(t *testing.T) {
	if _, err := New(0, core.IsolateConfig{}); err == nil {
		t.Fatalf("New(0, ...) expected an error")
	}
}

func TestWorkerGenerationAdvancesPerJob(t *testing.T) {
	p, err := New(1, core.IsolateConfig{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Dispose()

	for i := 1; i <= 3; i++ {
		if _, err := p.Run(context.Background(), func(jc *JobContext) (any, error) {
			return evalInt(jc, "3+3")
		}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}

	p.mu.Lock()
	w := p.idle[0]
	p.mu.Unlock()
	if got := w.Generation().Load(); got != 3 {
		t.Fatalf("worker generation after 3 jobs = %d, want 3", got)
	}
}
