package queue

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/helperd/internal/store/memory"
)

func TestScoreLaw(t *testing.T) {
	cases := []struct {
		execTime int64
		priority int
		want     int64
	}{
		{1_000_000, 2, 10_000_004},
		{1717228800, 3, 17_172_288_003},
		{100, 1, 1005},
		{100, 5, 1001},
	}
	for _, tc := range cases {
		if got := Score(tc.execTime, tc.priority); got != tc.want {
			t.Errorf("Score(%d, %d) = %d, want %d", tc.execTime, tc.priority, got, tc.want)
		}
	}
}

func TestEnqueueAndIndexMembership(t *testing.T) {
	s := memory.New()
	q := New(s)
	ctx := context.Background()

	rec := NewRecord("daily", "u1", 1000, 3, 600, 999)
	if err := q.Enqueue(ctx, rec); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	got, ok, err := q.Record(ctx, rec.ExecutionID)
	if err != nil || !ok {
		t.Fatalf("Record = (%v, %v, %v), want stored record", got, ok, err)
	}
	if got.Status != StatusQueued {
		t.Errorf("status = %q, want queued", got.Status)
	}
	if got.ExecutionScore != Score(1000, 3) {
		t.Errorf("score = %d, want %d", got.ExecutionScore, Score(1000, 3))
	}
	if got.ExecutionExpiry != 600 {
		t.Errorf("executionExpiry = %d, want 600 (copied from helper timeout)", got.ExecutionExpiry)
	}

	n, _ := q.Len(ctx)
	if n != 1 {
		t.Errorf("queue length = %d, want 1", n)
	}
}

func TestDueNowInclusiveAtExecutionTime(t *testing.T) {
	q := New(memory.New())
	ctx := context.Background()

	rec := NewRecord("h", "u1", 500, 2, 60, 499)
	q.Enqueue(ctx, rec)

	due, err := q.DueNow(ctx, 499)
	if err != nil {
		t.Fatalf("DueNow failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("due at t-1 = %d jobs, want 0", len(due))
	}

	due, _ = q.DueNow(ctx, 500)
	if len(due) != 1 || due[0].ExecutionID != rec.ExecutionID {
		t.Errorf("due at executionTime = %v, want the job (inclusive boundary)", due)
	}
}

func TestDueNowSkipsNonQueued(t *testing.T) {
	q := New(memory.New())
	ctx := context.Background()

	rec := NewRecord("h", "u1", 500, 2, 60, 499)
	q.Enqueue(ctx, rec)
	q.MarkRunning(ctx, rec.ExecutionID)

	due, _ := q.DueNow(ctx, 500)
	if len(due) != 0 {
		t.Errorf("due = %v, want none (running jobs are not re-dispatched)", due)
	}
}

func TestDequeueTerminalRestoresPreCallState(t *testing.T) {
	s := memory.New()
	q := New(s)
	ctx := context.Background()

	before, _ := q.Len(ctx)

	rec := NewRecord("h", "u1", 500, 2, 60, 499)
	q.Enqueue(ctx, rec)
	if err := q.DequeueTerminal(ctx, rec.ExecutionID, StatusCancelled, ""); err != nil {
		t.Fatalf("DequeueTerminal failed: %v", err)
	}

	after, _ := q.Len(ctx)
	if after != before {
		t.Errorf("queue length = %d after cancel, want %d", after, before)
	}

	// Terminal record survives for lazy GC.
	got, ok, _ := q.Record(ctx, rec.ExecutionID)
	if !ok || got.Status != StatusCancelled {
		t.Errorf("record after cancel = (%+v, %v), want cancelled record present", got, ok)
	}
}

func TestDequeueTerminalRecordsCause(t *testing.T) {
	q := New(memory.New())
	ctx := context.Background()

	rec := NewRecord("h", "u1", 500, 2, 60, 499)
	q.Enqueue(ctx, rec)
	q.DequeueTerminal(ctx, rec.ExecutionID, StatusError, CauseTimeout)

	got, _, _ := q.Record(ctx, rec.ExecutionID)
	if got.Status != StatusError || got.ErrorCause != CauseTimeout {
		t.Errorf("record = %+v, want status=error cause=timeout", got)
	}
}

func TestHasPendingMatchesTripleOnly(t *testing.T) {
	q := New(memory.New())
	ctx := context.Background()

	rec := NewRecord("h", "u1", 500, 2, 60, 499)
	q.Enqueue(ctx, rec)

	ok, err := q.HasPending(ctx, "h", "u1", 500)
	if err != nil || !ok {
		t.Errorf("HasPending(same triple) = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, _ := q.HasPending(ctx, "h", "u2", 500); ok {
		t.Error("HasPending(other user) = true, want false")
	}
	if ok, _ := q.HasPending(ctx, "other", "u1", 500); ok {
		t.Error("HasPending(other helper) = true, want false")
	}
	if ok, _ := q.HasPending(ctx, "h", "u1", 501); ok {
		t.Error("HasPending(other time) = true, want false")
	}

	// Terminal jobs are historical: they must not suppress re-planning.
	q.DequeueTerminal(ctx, rec.ExecutionID, StatusSuccess, "")
	if ok, _ := q.HasPending(ctx, "h", "u1", 500); ok {
		t.Error("HasPending after terminal = true, want false")
	}
}

func TestCancelQueuedOwnedBy(t *testing.T) {
	q := New(memory.New())
	ctx := context.Background()

	u1a := NewRecord("h", "u1", 500, 2, 60, 499)
	u1b := NewRecord("h", "u1", 600, 2, 60, 499)
	u2 := NewRecord("h", "u2", 500, 2, 60, 499)
	running := NewRecord("h", "u1", 400, 2, 60, 399)
	for _, r := range []Record{u1a, u1b, u2, running} {
		q.Enqueue(ctx, r)
	}
	q.MarkRunning(ctx, running.ExecutionID)

	n, err := q.CancelQueuedOwnedBy(ctx, "u1")
	if err != nil {
		t.Fatalf("CancelQueuedOwnedBy failed: %v", err)
	}
	if n != 2 {
		t.Errorf("cancelled = %d, want 2 (running job untouched)", n)
	}

	got, _, _ := q.Record(ctx, running.ExecutionID)
	if got.Status != StatusRunning {
		t.Errorf("running job status = %q, want running", got.Status)
	}
	got, _, _ = q.Record(ctx, u2.ExecutionID)
	if got.Status != StatusQueued {
		t.Errorf("other user's job status = %q, want queued", got.Status)
	}

	// Second pass is a no-op.
	n, _ = q.CancelQueuedOwnedBy(ctx, "u1")
	if n != 0 {
		t.Errorf("second cancel pass = %d, want 0", n)
	}
}

func TestGCDeletesOldTerminalRecords(t *testing.T) {
	s := memory.New()
	q := New(s)
	ctx := context.Background()

	rec := NewRecord("h", "u1", 500, 2, 60, 499)
	q.Enqueue(ctx, rec)
	q.DequeueTerminal(ctx, rec.ExecutionID, StatusSuccess, "")

	// Far future: completion is well past the retention window.
	if err := q.GC(ctx, time.Now().Add(48*time.Hour), 24*time.Hour); err != nil {
		t.Fatalf("GC failed: %v", err)
	}

	if _, ok, _ := q.Record(ctx, rec.ExecutionID); ok {
		t.Error("terminal record still present after GC past retention")
	}
}
