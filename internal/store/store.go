// Package store defines the scheduling store abstraction: plain keys for
// the helper catalogue, hashes for job records, and sorted sets for the
// temporal execution queue. Single-command atomicity is all the engine
// relies on; there are no multi-key transactions.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransport marks a store call that failed at the network/transport
// layer. Callers treat it as recoverable: the dispatcher retries on the
// next tick instead of surfacing it.
var ErrTransport = errors.New("store transport failure")

// Transport wraps err as a transport-level failure for the given operation.
func Transport(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
}

// ZMember pairs a sorted-set member with its score.
type ZMember struct {
	Member string
	Score  int64
}

// Store is the scheduling store consumed by the catalogue, the execution
// queue, and the user-directory cache.
type Store interface {
	// Plain key/value.
	SetKV(ctx context.Context, key, value string) error
	SetKVTTL(ctx context.Context, key, value string, ttlSeconds int64) error
	GetKV(ctx context.Context, key string) (value string, ok bool, err error)
	DelKey(ctx context.Context, key string) error
	KeysByPrefix(ctx context.Context, prefix string) ([]string, error)

	// Hashes.
	HashSet(ctx context.Context, key string, fields map[string]string) error
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashSetField(ctx context.Context, key, field, value string) error

	// Sorted sets with integer scores.
	ZAddIfAbsent(ctx context.Context, key string, score int64, member string) (added bool, err error)
	ZRangeByScoreAsc(ctx context.Context, key string, min, max int64, limit int64) ([]string, error)
	ZRemMember(ctx context.Context, key, member string) error
	ZRangeAll(ctx context.Context, key string) ([]string, error)
	ZRangeAllWithScores(ctx context.Context, key string) ([]ZMember, error)
	ZRemRangeByScore(ctx context.Context, key string, min, max int64) (removed int64, err error)

	Close() error
}
