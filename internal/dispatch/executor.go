// Package dispatch hosts the due-job loop and the execution envelope
// around helper runs.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nextlevelbuilder/helperd/internal/helper"
	"github.com/nextlevelbuilder/helperd/internal/queue"
	"github.com/nextlevelbuilder/helperd/internal/tracing"
)

// DefaultConcurrency bounds parallel helper runs per process.
const DefaultConcurrency = 16

// shutdownGrace is how long Shutdown waits for in-flight runs before
// force-cancelling them.
const shutdownGrace = 5 * time.Second

// Executor runs helpers under a concurrency bound and a per-run deadline,
// and writes each job's terminal status exactly once.
type Executor struct {
	queue   *queue.ExecutionQueue
	sem     *semaphore.Weighted
	spans   *tracing.Collector // nil = no span recording
	log     *slog.Logger
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewExecutor creates an executor. A non-positive concurrency falls back
// to the default bound. spans may be nil.
func NewExecutor(q *queue.ExecutionQueue, concurrency int, spans *tracing.Collector) *Executor {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		queue:   q,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		spans:   spans,
		log:     slog.Default().With("component", "executor"),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Launch hands one running job to the executor and returns immediately.
// The caller must already have flipped the job to running.
func (e *Executor) Launch(rec queue.Record, h helper.Helper, rc helper.RunContext) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execute(rec, h, rc)
	}()
}

// execute waits for a concurrency slot, runs the helper under its expiry
// deadline, and records the terminal status.
func (e *Executor) execute(rec queue.Record, h helper.Helper, rc helper.RunContext) {
	if err := e.sem.Acquire(e.baseCtx, 1); err != nil {
		// Shutdown before the run started.
		e.finish(rec, queue.StatusError, "", time.Now(), 0, err)
		return
	}
	defer e.sem.Release(1)

	deadline := time.Duration(rec.ExecutionExpiry) * time.Second
	ctx, cancel := context.WithTimeout(e.baseCtx, deadline)
	defer cancel()

	start := time.Now()
	err := e.run(ctx, h, rc)
	elapsed := time.Since(start)

	// A deadline overrun is a timeout even when the helper ignored the
	// context and returned nil.
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		e.finish(rec, queue.StatusError, queue.CauseTimeout, start, elapsed, err)
	case err == nil:
		e.finish(rec, queue.StatusSuccess, "", start, elapsed, nil)
	default:
		e.finish(rec, queue.StatusError, "", start, elapsed, err)
	}
}

// run invokes the helper and converts a panic into an error so one
// misbehaving helper cannot take the process down.
func (e *Executor) run(ctx context.Context, h helper.Helper, rc helper.RunContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("helper panicked: %v", r)
		}
	}()
	return h.Run(ctx, rc)
}

// finish is the single terminal-status writer for executor-run jobs.
func (e *Executor) finish(rec queue.Record, status queue.Status, cause string, start time.Time, elapsed time.Duration, runErr error) {
	ctx, cancelWrite := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelWrite()
	if err := e.queue.DequeueTerminal(ctx, rec.ExecutionID, status, cause); err != nil {
		e.log.Error("terminal status write failed",
			"execution", rec.ExecutionID, "status", status, "error", err)
	}

	log := e.log.With("execution", rec.ExecutionID, "helper", rec.HelperID,
		"owner", rec.UserID, "duration", elapsed.Round(time.Millisecond))
	switch {
	case cause == queue.CauseTimeout:
		log.Warn("helper run timed out", "budget", rec.ExecutionExpiry)
	case runErr != nil:
		log.Warn("helper run failed", "error", runErr)
	default:
		log.Info("helper run completed")
	}

	if e.spans != nil {
		e.spans.Emit(tracing.RunSpan{
			ExecutionID: rec.ExecutionID,
			HelperID:    rec.HelperID,
			OwnerID:     rec.UserID,
			Status:      string(status),
			ErrorCause:  cause,
			StartedAt:   start.UTC(),
			Duration:    elapsed,
		})
	}
}

// Shutdown waits up to the grace period for in-flight runs, then cancels
// their contexts and waits for the terminal writes to land.
func (e *Executor) Shutdown() {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		e.log.Warn("grace period elapsed, cancelling in-flight runs")
		e.cancel()
		<-done
	}
	e.cancel()
}
