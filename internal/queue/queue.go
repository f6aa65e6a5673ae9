package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/helperd/internal/store"
)

// ExecutionQueue is the temporal priority queue over the scheduling store.
// Membership invariant: an execution id is in the sorted-set index exactly
// while its record's status is queued or running.
type ExecutionQueue struct {
	store store.Store
}

// New creates an execution queue over the given store.
func New(s store.Store) *ExecutionQueue {
	return &ExecutionQueue{store: s}
}

// Enqueue writes the job record hash, then adds the index entry. ZADD NX
// keeps a crashed half-enqueue from shifting an existing member's score.
func (q *ExecutionQueue) Enqueue(ctx context.Context, rec Record) error {
	if err := q.store.HashSet(ctx, rec.Key(), rec.fields()); err != nil {
		return err
	}
	_, err := q.store.ZAddIfAbsent(ctx, QueueKey, rec.ExecutionScore, rec.ExecutionID)
	return err
}

// Record loads a job record by execution id; ok=false when absent.
func (q *ExecutionQueue) Record(ctx context.Context, executionID string) (*Record, bool, error) {
	fields, err := q.store.HashGetAll(ctx, JobKeyPrefix+executionID)
	if err != nil {
		return nil, false, err
	}
	rec, err := recordFromFields(fields)
	if err != nil || rec == nil {
		return nil, false, err
	}
	return rec, true, nil
}

// MarkRunning flips a job to running. Only the dispatcher writes this
// transition.
func (q *ExecutionQueue) MarkRunning(ctx context.Context, executionID string) error {
	return q.store.HashSetField(ctx, JobKeyPrefix+executionID, "status", string(StatusRunning))
}

// DequeueTerminal writes a terminal status (and optional error cause),
// removes the index entry, and records the completion in the history set.
// The job record itself stays for lazy GC.
func (q *ExecutionQueue) DequeueTerminal(ctx context.Context, executionID string, terminal Status, cause string) error {
	if !terminal.Terminal() {
		return nil
	}
	key := JobKeyPrefix + executionID
	if err := q.store.HashSetField(ctx, key, "status", string(terminal)); err != nil {
		return err
	}
	if cause != "" {
		if err := q.store.HashSetField(ctx, key, "error", cause); err != nil {
			return err
		}
	}
	if err := q.store.ZRemMember(ctx, QueueKey, executionID); err != nil {
		return err
	}
	_, err := q.store.ZAddIfAbsent(ctx, HistoryKey, time.Now().Unix(), executionID)
	return err
}

// DueNow returns the records of every job due at nowSec, in ascending
// score order, filtered to status queued. The +5 upper bound captures all
// five priority slots of that second.
func (q *ExecutionQueue) DueNow(ctx context.Context, nowSec int64) ([]Record, error) {
	ids, err := q.store.ZRangeByScoreAsc(ctx, QueueKey, 0, nowSec*10+5, 0)
	if err != nil {
		return nil, err
	}
	due := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := q.Record(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok && rec.Status == StatusQueued {
			due = append(due, *rec)
		}
	}
	return due, nil
}

// HasPending reports whether a job for (helperID, userID, executionTime)
// already exists with status queued or running. Used by window expansion
// to keep re-planning idempotent; terminal matches are historical and do
// not count.
func (q *ExecutionQueue) HasPending(ctx context.Context, helperID, userID string, executionTime int64) (bool, error) {
	ids, err := q.store.ZRangeByScoreAsc(ctx, QueueKey, executionTime*10, executionTime*10+5, 0)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		rec, ok, err := q.Record(ctx, id)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		if rec.HelperID == helperID && rec.UserID == userID && rec.ExecutionTime == executionTime &&
			(rec.Status == StatusQueued || rec.Status == StatusRunning) {
			return true, nil
		}
	}
	return false, nil
}

// CancelQueuedOwnedBy cancels every queued job owned by userID and removes
// it from the index. Running jobs are left alone.
func (q *ExecutionQueue) CancelQueuedOwnedBy(ctx context.Context, userID string) (int, error) {
	ids, err := q.store.ZRangeAll(ctx, QueueKey)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, id := range ids {
		rec, ok, err := q.Record(ctx, id)
		if err != nil {
			return cancelled, err
		}
		if !ok || rec.UserID != userID || rec.Status != StatusQueued {
			continue
		}
		if err := q.DequeueTerminal(ctx, id, StatusCancelled, ""); err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// Len returns the number of index entries (queued + running jobs).
func (q *ExecutionQueue) Len(ctx context.Context) (int, error) {
	ids, err := q.store.ZRangeAll(ctx, QueueKey)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// QueuedCountFor counts pending jobs for one helper across all owners.
func (q *ExecutionQueue) QueuedCountFor(ctx context.Context, helperID string) (int, error) {
	ids, err := q.store.ZRangeAll(ctx, QueueKey)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		rec, ok, err := q.Record(ctx, id)
		if err != nil {
			return count, err
		}
		if ok && rec.HelperID == helperID && rec.Status == StatusQueued {
			count++
		}
	}
	return count, nil
}

// GC deletes terminal job records whose completion is older than the
// retention window and trims the history index to the same horizon.
// Runs on the expansion cadence.
func (q *ExecutionQueue) GC(ctx context.Context, now time.Time, retention time.Duration) error {
	cutoff := now.Add(-retention).Unix()
	old, err := q.store.ZRangeByScoreAsc(ctx, HistoryKey, 0, cutoff, 0)
	if err != nil {
		return err
	}
	for _, id := range old {
		if err := q.store.DelKey(ctx, JobKeyPrefix+id); err != nil {
			return err
		}
	}
	removed, err := q.store.ZRemRangeByScore(ctx, HistoryKey, 0, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		slog.Debug("queue: gc removed terminal jobs", "count", removed)
	}
	return nil
}
