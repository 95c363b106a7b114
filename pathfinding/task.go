package pathfinding

import (
	"context"
	"sync"

	"github.com/golang/geo/r2"
	"go.viam.com/utils"

	"go.viam.com/gbpplanner/logging"
)

// Result is the outcome of a background planning task.
type Result struct {
	Path []r2.Point
	Err  error
}

// Task is a planner running on its own goroutine.
type Task struct {
	cancel  context.CancelFunc
	results chan Result
	done    sync.WaitGroup

	mu       sync.Mutex
	result   Result
	finished bool
}

// Start plans off-thread. The result is collected with Poll.
func Start(ctx context.Context, logger logging.Logger, problem Problem, opts *Options) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := &Task{cancel: cancel, results: make(chan Result, 1)}
	task.done.Add(1)
	utils.PanicCapturingGo(func() {
		defer task.done.Done()
		path, err := Plan(ctx, logger, problem, opts)
		task.results <- Result{Path: path, Err: err}
	})
	return task
}

// Poll returns the result if the task has finished, without blocking.
func (t *Task) Poll() (Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return t.result, true
	}
	select {
	case res := <-t.results:
		t.result = res
		t.finished = true
		return res, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	t.mu.Lock()
	if t.finished {
		defer t.mu.Unlock()
		return t.result, nil
	}
	t.mu.Unlock()
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-t.results:
		t.mu.Lock()
		defer t.mu.Unlock()
		t.result = res
		t.finished = true
		return res, nil
	}
}

// Close cancels the task and waits for its goroutine to exit.
func (t *Task) Close() {
	t.cancel()
	t.done.Wait()
}
