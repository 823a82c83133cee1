package worker_pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// Task is a unit of work producing a T
type Task[T any] func(ctx context.Context) (T, error)

// Result is the outcome of one task
type Result[T any] struct {
	Value T
	Error error
}

// ProgressFunc is called after each task finishes with the number of
// finished tasks so far. Calls are serialised.
type ProgressFunc func(done, total int)

// WorkerPool executes tasks concurrently with semaphore-based limiting
type WorkerPool struct {
	maxWorkers int
	semaphore  chan struct{}
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}

	return &WorkerPool{
		maxWorkers: maxWorkers,
		semaphore:  make(chan struct{}, maxWorkers),
	}
}

// Run executes all tasks on wp and returns their results in task order.
// Tasks not yet started when ctx is done report ctx.Err(). A panicking task
// reports an error instead of crashing the pool.
func Run[T any](ctx context.Context, wp *WorkerPool, tasks []Task[T], progress ProgressFunc) []Result[T] {
	results := make([]Result[T], len(tasks))
	if len(tasks) == 0 {
		return results
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0

	for i, task := range tasks {
		wg.Add(1)
		go func(index int, t Task[T]) {
			defer wg.Done()
			defer func() {
				if progress == nil {
					return
				}
				mu.Lock()
				done++
				progress(done, len(tasks))
				mu.Unlock()
			}()

			// Acquire semaphore (blocks if max workers already running)
			select {
			case wp.semaphore <- struct{}{}:
				defer func() { <-wp.semaphore }()
			case <-ctx.Done():
				results[index] = Result[T]{Error: ctx.Err()}
				return
			}

			results[index] = runTask(ctx, t)
		}(i, task)
	}

	wg.Wait()
	return results
}

func runTask[T any](ctx context.Context, t Task[T]) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Error: fmt.Errorf("task panicked: %v", r)}
		}
	}()
	value, err := t(ctx)
	return Result[T]{Value: value, Error: err}
}

// GetMaxWorkers returns the maximum number of workers
func (wp *WorkerPool) GetMaxWorkers() int {
	return wp.maxWorkers
}
