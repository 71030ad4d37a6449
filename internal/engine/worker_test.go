//go:build !qjsengine

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cryguy/isolatecore/internal/core"
)

func TestNewWorkerInstallsLibrt(t *testing.T) {
	w, err := newWorker(0, core.IsolateConfig{})
	if err != nil {
		t.Fatalf("newWorker() error = %v", err)
	}
	defer w.close()

	reply := make(chan jobReply, 1)
	env := jobEnvelope{
		job: func(jc *JobContext) (any, error) {
			v, err := jc.Ctx().RunScript("globalThis.global === globalThis", "check.js")
			if err != nil {
				return nil, err
			}
			return v.Boolean(), nil
		},
		reply: reply,
	}
	if err := w.submit(context.Background(), env); err != nil {
		t.Fatalf("submit() error = %v", err)
	}
	r := <-reply
	if r.err != nil {
		t.Fatalf("job error = %v", r.err)
	}
	if ok, _ := r.val.(bool); !ok {
		t.Fatalf("librt self-reference global not installed")
	}
}

func TestWorkerSerializesJobs(t *testing.T) {
	w, err := newWorker(0, core.IsolateConfig{})
	if err != nil {
		t.Fatalf("newWorker() error = %v", err)
	}
	defer w.close()

	const n = 20
	replies := make([]chan jobReply, n)
	for i := 0; i < n; i++ {
		replies[i] = make(chan jobReply, 1)
		if err := w.submit(context.Background(), jobEnvelope{
			job: func(jc *JobContext) (any, error) {
				v, err := jc.Ctx().RunScript("1+1", "loop.js")
				if err != nil {
					return nil, err
				}
				return v.Integer(), nil
			},
			reply: replies[i],
		}); err != nil {
			t.Fatalf("submit() %d error = %v", i, err)
		}
		<-replies[i]
	}

	if got := w.Generation().Load(); got != core.Generation(n) {
		t.Fatalf("generation after %d serial jobs = %d, want %d", n, got, n)
	}
}

// TestWorkerSubmitBlocksThenRespectsContext exercises submit's blocking
// contract (spec: "capacity 1 ... backpressure, not buffering"): a second
// submit while the first job is still buffered/running blocks instead of
// failing fast, and gives up cleanly if its context is cancelled while
// still waiting for room.
func TestWorkerSubmitBlocksThenRespectsContext(t *testing.T) {
	w, err := newWorker(0, core.IsolateConfig{})
	if err != nil {
		t.Fatalf("newWorker() error = %v", err)
	}
	defer w.close()

	running := make(chan struct{})
	block := make(chan struct{})
	firstReply := make(chan jobReply, 1)
	if err := w.submit(context.Background(), jobEnvelope{
		job: func(jc *JobContext) (any, error) {
			close(running)
			<-block
			return nil, nil
		},
		reply: firstReply,
	}); err != nil {
		t.Fatalf("first submit() error = %v", err)
	}
	<-running // the first job is now running; the channel is drained

	secondReply := make(chan jobReply, 1)
	if err := w.submit(context.Background(), jobEnvelope{job: func(jc *JobContext) (any, error) { return nil, nil }, reply: secondReply}); err != nil {
		t.Fatalf("second submit() (buffered behind the running job) error = %v", err)
	}

	// A third submit has nowhere to go (buffer full, job running) and must
	// block rather than error. Give it a context that expires quickly and
	// confirm it reports cancellation instead of a spurious pool-corruption
	// error.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	thirdReply := make(chan jobReply, 1)
	err = w.submit(ctx, jobEnvelope{job: func(jc *JobContext) (any, error) { return nil, nil }, reply: thirdReply})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("third submit() while the buffer is full: expected ctx cancellation, got %v", err)
	}

	close(block)
	<-firstReply
	<-secondReply
}

// TestWorkerSurvivesHeapCapTermination exercises S4: a job that blows the
// configured heap cap is classified as terminated, and the worker's
// termination signal is cleared so that a subsequent, ordinary job on the
// very same worker still succeeds (spec §4.1 step 5b, §7 HeapLimitExceeded).
func TestWorkerSurvivesHeapCapTermination(t *testing.T) {
	w, err := newWorker(0, core.IsolateConfig{MaxMemoryBytes: 1})
	if err != nil {
		t.Fatalf("newWorker() error = %v", err)
	}
	defer w.close()

	overCapReply := make(chan jobReply, 1)
	if err := w.submit(context.Background(), jobEnvelope{
		job: func(jc *JobContext) (any, error) {
			// Spins until the heap watcher's poll observes the (trivially
			// exceeded, 1-byte) cap and calls TerminateExecution.
			return jc.Ctx().RunScript("while (true) {}", "spin.js")
		},
		reply: overCapReply,
	}); err != nil {
		t.Fatalf("over-cap submit() error = %v", err)
	}

	r := <-overCapReply
	if !r.terminated {
		t.Fatalf("over-cap job reply.terminated = false, want true")
	}

	// The same worker must accept and complete a normal job next — this is
	// only possible if the engine's termination signal was cleared after
	// the first job.
	normalReply := make(chan jobReply, 1)
	if err := w.submit(context.Background(), jobEnvelope{
		job: func(jc *JobContext) (any, error) {
			v, err := jc.Ctx().RunScript("1+1", "after.js")
			if err != nil {
				return nil, err
			}
			return v.Integer(), nil
		},
		reply: normalReply,
	}); err != nil {
		t.Fatalf("follow-up submit() error = %v", err)
	}

	r2 := <-normalReply
	if r2.terminated {
		t.Fatalf("follow-up job reply.terminated = true, want false")
	}
	if r2.err != nil {
		t.Fatalf("follow-up job error = %v (termination signal likely not cleared)", r2.err)
	}
	if got, _ := r2.val.(int64); got != 2 {
		t.Fatalf("follow-up job result = %v, want 2", r2.val)
	}
}
