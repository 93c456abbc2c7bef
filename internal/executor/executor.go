// Package executor provides the bounded worker pool that runs sub-search
// tasks. It wraps an ants pool with a timed admission policy, breaker
// feedback on every task outcome, and a deadline-bounded parallel join that
// returns partial results instead of failing outright.
package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/bluetali/beacon/internal/config"
	"github.com/bluetali/beacon/internal/errors"
)

// Sentinel errors for constructor validation.
var (
	ErrNilBreaker = stderrors.New("executor: circuit breaker is required")
	ErrNilLogger  = stderrors.New("executor: logger is required")
)

// Task is one unit of work, typically a single category's sub-search.
// Run must honor ctx cancellation; the batch context is cancelled when the
// join deadline expires.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// TaskResult is the outcome of one task in a parallel batch.
type TaskResult struct {
	Name      string
	Err       error
	Completed bool
	Duration  time.Duration
}

// Metrics is a point-in-time view of pool state and counters.
type Metrics struct {
	Running   int   `json:"running"`
	Waiting   int   `json:"waiting"`
	Capacity  int   `json:"capacity"`
	Free      int   `json:"free"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

// Executor owns a fixed-size worker pool with a bounded queue.
//
// Admission policy: a submitter blocks for at most admissionWait while the
// queue is full, then the task is rejected. Brief bursts become brief
// backpressure; sustained overload fails fast rather than queueing without
// bound.
type Executor struct {
	pool          *ants.Pool
	breaker       *errors.CircuitBreaker
	logger        *slog.Logger
	admissionWait time.Duration
	drainTimeout  time.Duration

	shuttingDown atomic.Bool
	released     atomic.Bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// New creates an executor from the given pool configuration.
func New(cfg config.ExecutorConfig, breaker *errors.CircuitBreaker, logger *slog.Logger) (*Executor, error) {
	if breaker == nil {
		return nil, ErrNilBreaker
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	e := &Executor{
		breaker:       breaker,
		logger:        logger.With("component", "executor"),
		admissionWait: cfg.AdmissionWaitDuration(),
		drainTimeout:  cfg.ShutdownTimeoutDuration(),
	}

	pool, err := ants.NewPool(cfg.MaxWorkers,
		ants.WithMaxBlockingTasks(cfg.QueueCapacity),
		ants.WithPanicHandler(func(p any) {
			breaker.RecordFailure()
			e.logger.Error("worker panic", "panic", fmt.Sprint(p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	e.pool = pool
	return e, nil
}

// Submit runs fn on the pool, blocking up to the admission wait when the
// queue is full. Returns ERR_502_POOL_SHUTDOWN after shutdown and
// ERR_501_POOL_EXHAUSTED when the pool stays saturated past the wait.
func (e *Executor) Submit(ctx context.Context, fn func()) error {
	if e.shuttingDown.Load() {
		return errors.New(errors.ErrCodePoolShutdown, "executor is shut down", nil)
	}

	// The abandoned flag keeps a task that wins admission after we have
	// already given up on it from running anyway.
	var abandoned atomic.Bool
	submitErr := make(chan error, 1)
	go func() {
		submitErr <- e.pool.Submit(func() {
			if abandoned.Load() {
				return
			}
			fn()
		})
	}()

	timer := time.NewTimer(e.admissionWait)
	defer timer.Stop()

	select {
	case err := <-submitErr:
		if err != nil {
			e.rejected.Add(1)
			if stderrors.Is(err, ants.ErrPoolClosed) {
				return errors.New(errors.ErrCodePoolShutdown, "executor is shut down", err)
			}
			return errors.New(errors.ErrCodePoolExhausted, "worker pool saturated", err).
				WithSuggestion("Retry after a short backoff.")
		}
		e.submitted.Add(1)
		return nil
	case <-timer.C:
		abandoned.Store(true)
		e.rejected.Add(1)
		return errors.New(errors.ErrCodePoolExhausted,
			fmt.Sprintf("worker pool saturated for %s", e.admissionWait), nil).
			WithSuggestion("Retry after a short backoff.")
	case <-ctx.Done():
		abandoned.Store(true)
		e.rejected.Add(1)
		return errors.New(errors.ErrCodeInterrupted, "submission cancelled", ctx.Err())
	}
}

// outcome carries one finished task's result to the joining goroutine.
// Results travel by value through the channel so a straggler finishing
// after the deadline can never race the caller's slice.
type outcome struct {
	idx int
	res TaskResult
}

// ExecuteParallel launches every task on the pool and waits for joint
// completion bounded by deadline. The returned slice always has one slot per
// task, in task order. Slots for tasks that missed the deadline (or were
// rejected at admission) have Completed=false.
//
// The batch context is cancelled when the deadline expires, so abandoned
// tasks observe cancellation through their store calls instead of running
// to completion for nobody.
func (e *Executor) ExecuteParallel(ctx context.Context, tasks []Task, deadline time.Duration) []TaskResult {
	results := make([]TaskResult, len(tasks))
	for i, t := range tasks {
		results[i] = TaskResult{Name: t.Name}
	}
	if len(tasks) == 0 {
		return results
	}

	batchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	done := make(chan outcome, len(tasks))
	pending := 0

	for i, task := range tasks {
		i, task := i, task
		err := e.Submit(ctx, func() {
			start := time.Now()
			res := TaskResult{Name: task.Name}

			defer func() {
				if p := recover(); p != nil {
					e.failed.Add(1)
					e.breaker.RecordFailure()
					res.Err = errors.New(errors.ErrCodeExecutionFailed,
						fmt.Sprintf("task %s panicked: %v", task.Name, p), nil)
					res.Duration = time.Since(start)
					done <- outcome{idx: i, res: res}
				}
			}()

			if err := batchCtx.Err(); err != nil {
				// Deadline already hit before this task got a worker.
				res.Err = errors.New(errors.ErrCodeInterrupted, "task abandoned before start", err)
				res.Duration = time.Since(start)
				done <- outcome{idx: i, res: res}
				return
			}

			runErr := task.Run(batchCtx)
			res.Duration = time.Since(start)

			if runErr != nil {
				e.failed.Add(1)
				e.breaker.RecordFailure()
				res.Err = runErr
			} else {
				e.completed.Add(1)
				res.Completed = true
			}
			done <- outcome{idx: i, res: res}
		})

		if err != nil {
			results[i].Err = err
			e.logger.Warn("task rejected at admission", "task", task.Name, "error", err)
			continue
		}
		pending++
	}

	for pending > 0 {
		select {
		case out := <-done:
			results[out.idx] = out.res
			pending--
		case <-batchCtx.Done():
			e.logger.Warn("parallel batch deadline exceeded",
				"deadline", deadline, "pending", pending)
			return results
		}
	}

	return results
}

// Shutdown stops intake, drains gracefully within the configured window,
// then force-releases remaining workers. Idempotent and safe to call from
// multiple paths.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.shuttingDown.Store(true)

	if !e.released.CompareAndSwap(false, true) {
		return nil
	}

	drain := e.drainTimeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until < drain {
			drain = until
		}
	}

	if err := e.pool.ReleaseTimeout(drain); err != nil {
		e.logger.Warn("graceful drain timed out, forcing release", "error", err)
		e.pool.Release()
	}

	e.logger.Info("executor shut down",
		"completed", e.completed.Load(),
		"failed", e.failed.Load(),
		"rejected", e.rejected.Load())
	return nil
}

// IsRunning reports whether the pool accepts work.
func (e *Executor) IsRunning() bool {
	return !e.shuttingDown.Load() && !e.pool.IsClosed()
}

// Metrics returns current pool state and counters. Read-only.
func (e *Executor) Metrics() Metrics {
	return Metrics{
		Running:   e.pool.Running(),
		Waiting:   e.pool.Waiting(),
		Capacity:  e.pool.Cap(),
		Free:      e.pool.Free(),
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
		Rejected:  e.rejected.Load(),
	}
}
