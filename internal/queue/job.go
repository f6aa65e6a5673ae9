// Package queue implements the temporal priority queue of pending jobs:
// one hash per job record plus a sorted-set index scored so that
// lexicographic score order is exactly "earliest first, highest priority
// first within the same second".
package queue

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Store keys. Fixed wire contract.
const (
	JobKeyPrefix = "executionJob:"
	QueueKey     = "internalExecutionQueue"
	HistoryKey   = "internalExecutionHistory"
)

// InternalOwner is the synthetic user id that owns jobs of internal
// helpers (those that run without a user).
const InternalOwner = "internal"

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Error causes recorded alongside a terminal error status.
const (
	CauseTimeout       = "timeout"
	CauseHelperMissing = "helper_missing"
	CauseUserMissing   = "user_missing"
)

// Score computes the queue index score for a firing:
//
//	score = executionTime*10 + (6 - priority)
//
// Ten integer score slots per second, one per priority, so the sorted-set
// index gives a total order with no floating-point comparison.
func Score(executionTime int64, priority int) int64 {
	return executionTime*10 + int64(6-priority)
}

// Record is one scheduled invocation of a helper for one owner at one
// timestamp. Immutable once enqueued, except for Status and ErrorCause.
type Record struct {
	ExecutionID     string
	UserID          string // user id or InternalOwner
	HelperID        string
	ExecutionTime   int64 // Unix seconds of the scheduled firing
	ExecutionScore  int64
	Priority        int
	ExecutionExpiry int64 // seconds of dispatch grace + run budget
	Status          Status
	ErrorCause      string // set with terminal error status
	CreatedAt       int64
}

// NewRecord builds a queued record with a fresh execution id and the
// score derived from the firing time and priority.
func NewRecord(helperID, userID string, executionTime int64, priority int, expirySeconds int, createdAt int64) Record {
	return Record{
		ExecutionID:     uuid.NewString(),
		UserID:          userID,
		HelperID:        helperID,
		ExecutionTime:   executionTime,
		ExecutionScore:  Score(executionTime, priority),
		Priority:        priority,
		ExecutionExpiry: int64(expirySeconds),
		Status:          StatusQueued,
		CreatedAt:       createdAt,
	}
}

// Key returns the store key of the record's hash.
func (r *Record) Key() string {
	return JobKeyPrefix + r.ExecutionID
}

// ExpiresAt is the wall-clock deadline for dispatch eligibility.
func (r *Record) ExpiresAt() int64 {
	return r.ExecutionTime + r.ExecutionExpiry
}

func (r *Record) fields() map[string]string {
	f := map[string]string{
		"executionId":     r.ExecutionID,
		"userId":          r.UserID,
		"helperId":        r.HelperID,
		"executionTime":   strconv.FormatInt(r.ExecutionTime, 10),
		"executionScore":  strconv.FormatInt(r.ExecutionScore, 10),
		"priority":        strconv.Itoa(r.Priority),
		"executionExpiry": strconv.FormatInt(r.ExecutionExpiry, 10),
		"status":          string(r.Status),
		"createdAt":       strconv.FormatInt(r.CreatedAt, 10),
	}
	if r.ErrorCause != "" {
		f["error"] = r.ErrorCause
	}
	return f
}

func recordFromFields(fields map[string]string) (*Record, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	id := fields["executionId"]
	if id == "" {
		return nil, fmt.Errorf("job record missing executionId")
	}
	parseInt := func(field string) int64 {
		v, _ := strconv.ParseInt(fields[field], 10, 64)
		return v
	}
	priority, _ := strconv.Atoi(fields["priority"])
	return &Record{
		ExecutionID:     id,
		UserID:          fields["userId"],
		HelperID:        fields["helperId"],
		ExecutionTime:   parseInt("executionTime"),
		ExecutionScore:  parseInt("executionScore"),
		Priority:        priority,
		ExecutionExpiry: parseInt("executionExpiry"),
		Status:          Status(fields["status"]),
		ErrorCause:      fields["error"],
		CreatedAt:       parseInt("createdAt"),
	}, nil
}
