// Package parallel runs independent units of work under a bounded
// worker pool. Each unit's outcome is captured as a Result rather than
// aborting the batch, so callers can fan out across models or files and
// inspect every success and failure afterwards.
package parallel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// DefaultConcurrency is the worker count used when Options.Concurrency
// is not positive.
const DefaultConcurrency = 10

// ErrShortCircuited marks a task skipped because an earlier task failed
// while StopOnError was set.
var ErrShortCircuited = errors.New("task cancelled after earlier failure")

// Task is one unit of work. It must honor ctx cancellation.
type Task[T any] func(ctx context.Context) (T, error)

// Result records the outcome of a single task.
type Result[T any] struct {
	OK        bool
	Value     T
	Err       error
	Index     int
	LatencyMS int64
}

// Results is the outcome of a whole batch.
type Results[T any] []Result[T]

// Options control how a batch is scheduled. The zero value runs up to
// DefaultConcurrency tasks at once, returns results in input order, and
// lets every task run regardless of failures.
type Options struct {
	// Concurrency caps the number of tasks in flight.
	Concurrency int
	// Unordered returns results in completion order instead of input
	// order.
	Unordered bool
	// StopOnError short-circuits tasks that have not started once any
	// task fails. Tasks already running finish. The cutoff is
	// deterministic at Concurrency 1 and a race above it.
	StopOnError bool
}

// Run executes tasks under a bounded worker pool. Tasks are started in
// input order. The returned slice always has one Result per task.
func Run[T any](ctx context.Context, tasks []Task[T], opts Options) Results[T] {
	if len(tasks) == 0 {
		return nil
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > len(tasks) {
		concurrency = len(tasks)
	}

	jobs := make(chan int)
	out := make(chan Result[T], len(tasks))
	var failed atomic.Bool

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				out <- runOne(ctx, idx, tasks[idx], opts, &failed)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range tasks {
			jobs <- i
		}
	}()
	go func() {
		wg.Wait()
		close(out)
	}()

	if opts.Unordered {
		results := make(Results[T], 0, len(tasks))
		for r := range out {
			results = append(results, r)
		}
		return results
	}

	results := make(Results[T], len(tasks))
	for r := range out {
		results[r.Index] = r
	}
	return results
}

func runOne[T any](ctx context.Context, idx int, task Task[T], opts Options, failed *atomic.Bool) (result Result[T]) {
	if err := ctx.Err(); err != nil {
		return Result[T]{Err: err, Index: idx}
	}
	if opts.StopOnError && failed.Load() {
		return Result[T]{Err: ErrShortCircuited, Index: idx}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			if opts.StopOnError {
				failed.Store(true)
			}
			result = Result[T]{
				Err:       errors.Errorf("task panicked: %v", r),
				Index:     idx,
				LatencyMS: time.Since(start).Milliseconds(),
			}
		}
	}()

	value, err := task(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		if opts.StopOnError {
			failed.Store(true)
		}
		return Result[T]{Err: err, Index: idx, LatencyMS: latency}
	}
	return Result[T]{OK: true, Value: value, Index: idx, LatencyMS: latency}
}

// Map applies fn to every item under the same scheduling rules as Run.
// fn is invoked only when a worker picks the item up, so no work is
// materialized ahead of the concurrency gate.
func Map[U, T any](ctx context.Context, items []U, fn func(context.Context, U) (T, error), opts Options) Results[T] {
	tasks := make([]Task[T], len(items))
	for i, item := range items {
		tasks[i] = func(ctx context.Context) (T, error) {
			return fn(ctx, item)
		}
	}
	return Run(ctx, tasks, opts)
}

// Err aggregates the errors of all failed results, or nil when every
// task succeeded.
func (rs Results[T]) Err() error {
	var merr *multierror.Error
	for _, r := range rs {
		if !r.OK {
			merr = multierror.Append(merr, errors.Wrapf(r.Err, "task %d", r.Index))
		}
	}
	return merr.ErrorOrNil()
}

// Values returns the values of the successful results, preserving the
// result order.
func (rs Results[T]) Values() []T {
	values := make([]T, 0, len(rs))
	for _, r := range rs {
		if r.OK {
			values = append(values, r.Value)
		}
	}
	return values
}
