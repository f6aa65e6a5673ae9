package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/helperd/internal/catalogue"
	"github.com/nextlevelbuilder/helperd/internal/directory"
	"github.com/nextlevelbuilder/helperd/internal/helper"
	"github.com/nextlevelbuilder/helperd/internal/queue"
	"github.com/nextlevelbuilder/helperd/internal/store/memory"
)

// scripted is a test helper whose Run delegates to fn.
type scripted struct {
	id string
	fn func(ctx context.Context, rc helper.RunContext) error
}

func (s scripted) Definition() catalogue.Definition {
	return catalogue.Definition{ID: s.id, Priority: 3, Timeout: 60}
}

func (s scripted) Run(ctx context.Context, rc helper.RunContext) error {
	if s.fn == nil {
		return nil
	}
	return s.fn(ctx, rc)
}

type fixture struct {
	queue      *queue.ExecutionQueue
	registry   *helper.Registry
	dispatcher *Dispatcher
	executor   *Executor
}

func newFixture(t *testing.T, users ...directory.User) *fixture {
	t.Helper()
	s := memory.New()
	q := queue.New(s)
	reg := helper.NewRegistry()
	exec := NewExecutor(q, 4, nil)
	d := NewDispatcher(q, reg, directory.NewStatic(users...), exec, helper.Deps{Store: s})
	return &fixture{queue: q, registry: reg, dispatcher: d, executor: exec}
}

func (f *fixture) enqueue(t *testing.T, helperID, owner string, executionTime int64, expiry int) queue.Record {
	t.Helper()
	rec := queue.NewRecord(helperID, owner, executionTime, 3, expiry, executionTime)
	if err := f.queue.Enqueue(context.Background(), rec); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return rec
}

func (f *fixture) waitTerminal(t *testing.T, executionID string) *queue.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, ok, err := f.queue.Record(context.Background(), executionID)
		if err != nil {
			t.Fatalf("read record: %v", err)
		}
		if ok && rec.Status.Terminal() {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", executionID)
	return nil
}

func TestTickRunsDueJob(t *testing.T) {
	f := newFixture(t)
	var ran sync.WaitGroup
	ran.Add(1)
	f.registry.Register(scripted{id: "ok", fn: func(context.Context, helper.RunContext) error {
		ran.Done()
		return nil
	}})

	rec := f.enqueue(t, "ok", queue.InternalOwner, 100, 60)
	if err := f.dispatcher.Tick(context.Background(), 100); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	ran.Wait()

	got := f.waitTerminal(t, rec.ExecutionID)
	if got.Status != queue.StatusSuccess {
		t.Errorf("status = %s, want success", got.Status)
	}
	if n, _ := f.queue.Len(context.Background()); n != 0 {
		t.Errorf("index entries after completion = %d, want 0", n)
	}
}

func TestTickSkipsFutureJob(t *testing.T) {
	f := newFixture(t)
	f.registry.Register(scripted{id: "ok"})

	rec := f.enqueue(t, "ok", queue.InternalOwner, 200, 60)
	if err := f.dispatcher.Tick(context.Background(), 100); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	got, _, _ := f.queue.Record(context.Background(), rec.ExecutionID)
	if got.Status != queue.StatusQueued {
		t.Errorf("future job status = %s, want queued", got.Status)
	}
}

func TestExpiryBoundary(t *testing.T) {
	// Grace runs out strictly after executionTime+expiry: at the boundary
	// second the job still dispatches, one second later it expires.
	f := newFixture(t)
	f.registry.Register(scripted{id: "ok"})

	onTime := f.enqueue(t, "ok", queue.InternalOwner, 100, 60)
	if err := f.dispatcher.Tick(context.Background(), 160); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if got := f.waitTerminal(t, onTime.ExecutionID); got.Status != queue.StatusSuccess {
		t.Errorf("boundary job status = %s, want success", got.Status)
	}

	late := f.enqueue(t, "ok", queue.InternalOwner, 100, 60)
	if err := f.dispatcher.Tick(context.Background(), 161); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	got, _, _ := f.queue.Record(context.Background(), late.ExecutionID)
	if got.Status != queue.StatusExpired {
		t.Errorf("late job status = %s, want expired", got.Status)
	}
	if n, _ := f.queue.Len(context.Background()); n != 0 {
		t.Errorf("index entries after expiry = %d, want 0", n)
	}
}

func TestMissingUserFailsJob(t *testing.T) {
	f := newFixture(t) // empty directory
	f.registry.Register(scripted{id: "ok"})

	rec := f.enqueue(t, "ok", "ghost", 100, 60)
	f.dispatcher.Tick(context.Background(), 100)

	got, _, _ := f.queue.Record(context.Background(), rec.ExecutionID)
	if got.Status != queue.StatusError || got.ErrorCause != queue.CauseUserMissing {
		t.Errorf("status/cause = %s/%s, want error/user_missing", got.Status, got.ErrorCause)
	}
}

func TestMissingHelperFailsJob(t *testing.T) {
	f := newFixture(t)

	rec := f.enqueue(t, "vanished", queue.InternalOwner, 100, 60)
	f.dispatcher.Tick(context.Background(), 100)

	got, _, _ := f.queue.Record(context.Background(), rec.ExecutionID)
	if got.Status != queue.StatusError || got.ErrorCause != queue.CauseHelperMissing {
		t.Errorf("status/cause = %s/%s, want error/helper_missing", got.Status, got.ErrorCause)
	}
}

func TestDeadlineMarksTimeout(t *testing.T) {
	f := newFixture(t)
	f.registry.Register(scripted{id: "stuck", fn: func(ctx context.Context, _ helper.RunContext) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	// Zero grace: the run context is already past its deadline.
	rec := f.enqueue(t, "stuck", queue.InternalOwner, 100, 0)
	f.dispatcher.Tick(context.Background(), 100)

	got := f.waitTerminal(t, rec.ExecutionID)
	if got.Status != queue.StatusError || got.ErrorCause != queue.CauseTimeout {
		t.Errorf("status/cause = %s/%s, want error/timeout", got.Status, got.ErrorCause)
	}
}

func TestDeadlineOverrunWithNilError(t *testing.T) {
	f := newFixture(t)
	f.registry.Register(scripted{id: "oblivious", fn: func(context.Context, helper.RunContext) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}})

	// Zero grace: the deadline has already passed when Run returns nil.
	// The overrun must win over the helper's own verdict.
	rec := f.enqueue(t, "oblivious", queue.InternalOwner, 100, 0)
	f.dispatcher.Tick(context.Background(), 100)

	got := f.waitTerminal(t, rec.ExecutionID)
	if got.Status != queue.StatusError || got.ErrorCause != queue.CauseTimeout {
		t.Errorf("status/cause = %s/%s, want error/timeout", got.Status, got.ErrorCause)
	}
}

func TestPanickingHelperFailsJob(t *testing.T) {
	f := newFixture(t)
	f.registry.Register(scripted{id: "bomb", fn: func(context.Context, helper.RunContext) error {
		panic("boom")
	}})

	rec := f.enqueue(t, "bomb", queue.InternalOwner, 100, 60)
	f.dispatcher.Tick(context.Background(), 100)

	got := f.waitTerminal(t, rec.ExecutionID)
	if got.Status != queue.StatusError {
		t.Errorf("status = %s, want error", got.Status)
	}
}

func TestRunContextCarriesUserAndParams(t *testing.T) {
	u := directory.User{
		ID:     "u1",
		Status: directory.StatusActive,
		Services: []directory.Subscription{
			{HelperID: "paramful", Enabled: true, Params: map[string]any{"city": "Porto"}},
		},
	}
	f := newFixture(t, u)

	var mu sync.Mutex
	var seenUser, seenCity string
	f.registry.Register(scripted{id: "paramful", fn: func(_ context.Context, rc helper.RunContext) error {
		mu.Lock()
		defer mu.Unlock()
		if rc.User != nil {
			seenUser = rc.User.ID
		}
		seenCity = rc.StringParam("city", "")
		return nil
	}})

	rec := f.enqueue(t, "paramful", "u1", 100, 60)
	f.dispatcher.Tick(context.Background(), 100)
	f.waitTerminal(t, rec.ExecutionID)

	mu.Lock()
	defer mu.Unlock()
	if seenUser != "u1" {
		t.Errorf("helper saw user %q, want u1", seenUser)
	}
	if seenCity != "Porto" {
		t.Errorf("helper saw city %q, want Porto", seenCity)
	}
}
