package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nextlevelbuilder/helperd/internal/directory"
	"github.com/nextlevelbuilder/helperd/internal/helper"
	"github.com/nextlevelbuilder/helperd/internal/notify"
	"github.com/nextlevelbuilder/helperd/internal/queue"
)

const (
	tickInterval  = time.Second
	transportWait = 5 * time.Second
)

// Dispatcher reads due jobs once a second, resolves expiry against
// execution, and hands runnable jobs to the executor. It is the only
// writer of the queued to running transition.
type Dispatcher struct {
	queue     *queue.ExecutionQueue
	registry  *helper.Registry
	directory directory.Directory
	executor  *Executor
	deps      helper.Deps
	log       *slog.Logger

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewDispatcher wires the dispatch loop. deps are handed to every helper
// run; a nil Pusher or HTTP client gets a safe default.
func NewDispatcher(q *queue.ExecutionQueue, reg *helper.Registry, dir directory.Directory, exec *Executor, deps helper.Deps) *Dispatcher {
	if deps.Pusher == nil {
		deps.Pusher = notify.LogPusher{}
	}
	if deps.HTTP == nil {
		deps.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	return &Dispatcher{
		queue:     q,
		registry:  reg,
		directory: dir,
		executor:  exec,
		deps:      deps,
		log:       slog.Default().With("component", "dispatcher"),
	}
}

// Start begins the tick loop.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.stopChan = make(chan struct{})
	d.running = true

	d.wg.Add(1)
	go d.loop(d.stopChan)
	d.log.Info("dispatcher started", "tick", tickInterval)
}

// Stop halts the loop and shuts the executor down.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	close(d.stopChan)
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()
	d.executor.Shutdown()
	d.log.Info("dispatcher stopped")
}

func (d *Dispatcher) loop(stop <-chan struct{}) {
	defer d.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := d.Tick(context.Background(), time.Now().Unix()); err != nil {
				d.log.Error("due-job fetch failed, backing off", "error", err)
				select {
				case <-stop:
					return
				case <-time.After(transportWait):
				}
			}
		}
	}
}

// Tick processes every job due at nowSec in ascending score order. A
// transport error fetching the due set is returned for backoff; per-job
// failures are logged and skipped.
func (d *Dispatcher) Tick(ctx context.Context, nowSec int64) error {
	due, err := d.queue.DueNow(ctx, nowSec)
	if err != nil {
		return err
	}

	for i := range due {
		d.dispatchOne(ctx, &due[i], nowSec)
	}
	return nil
}

// dispatchOne resolves one due job: expiry first, then user and helper
// resolution, then hand-off to the executor.
func (d *Dispatcher) dispatchOne(ctx context.Context, rec *queue.Record, nowSec int64) {
	log := d.log.With("execution", rec.ExecutionID, "helper", rec.HelperID, "owner", rec.UserID)

	if nowSec > rec.ExpiresAt() {
		if err := d.queue.DequeueTerminal(ctx, rec.ExecutionID, queue.StatusExpired, ""); err != nil {
			log.Error("expiry write failed", "error", err)
			return
		}
		log.Warn("job expired before dispatch",
			"scheduled", rec.ExecutionTime, "grace", rec.ExecutionExpiry)
		return
	}

	if err := d.queue.MarkRunning(ctx, rec.ExecutionID); err != nil {
		log.Error("running transition failed", "error", err)
		return
	}

	rc := helper.RunContext{
		Log:  slog.Default().With("helper", rec.HelperID, "execution", rec.ExecutionID),
		Deps: d.deps,
	}

	if rec.UserID != queue.InternalOwner {
		u, err := d.directory.UserByID(ctx, rec.UserID, directory.LookupOpts{})
		if err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				d.failBeforeRun(ctx, rec, queue.CauseUserMissing, log)
			} else {
				log.Error("user lookup failed", "error", err)
				d.failBeforeRun(ctx, rec, "", log)
			}
			return
		}
		rc.User = u
		if sub, ok := u.Subscription(rec.HelperID); ok {
			rc.Params = sub.Params
		}
	}

	h, ok := d.registry.Get(rec.HelperID)
	if !ok {
		d.failBeforeRun(ctx, rec, queue.CauseHelperMissing, log)
		return
	}

	d.executor.Launch(*rec, h, rc)
}

// failBeforeRun records an error terminal for a job that never reached
// the executor.
func (d *Dispatcher) failBeforeRun(ctx context.Context, rec *queue.Record, cause string, log *slog.Logger) {
	if err := d.queue.DequeueTerminal(ctx, rec.ExecutionID, queue.StatusError, cause); err != nil {
		log.Error("terminal status write failed", "cause", cause, "error", err)
		return
	}
	log.Warn("job failed before execution", "cause", cause)
}
