// Package memory implements the scheduling store in process memory.
// It backs tests and the standalone dev mode; semantics mirror the Redis
// adapter (including TTL expiry on read and ZADD NX behaviour).
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/helperd/internal/store"
)

type kvEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

// Store is an in-memory scheduling store.
type Store struct {
	mu     sync.Mutex
	kv     map[string]kvEntry
	hashes map[string]map[string]string
	zsets  map[string]map[string]int64 // key -> member -> score
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		kv:     make(map[string]kvEntry),
		hashes: make(map[string]map[string]string),
		zsets:  make(map[string]map[string]int64),
	}
}

func (s *Store) SetKV(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = kvEntry{value: value}
	return nil
}

func (s *Store) SetKVTTL(_ context.Context, key, value string, ttlSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = kvEntry{value: value, expiresAt: time.Now().Add(time.Duration(ttlSeconds) * time.Second)}
	return nil
}

func (s *Store) GetKV(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.kv[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.kv, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *Store) DelKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	delete(s.hashes, key)
	delete(s.zsets, key)
	return nil
}

func (s *Store) KeysByPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.kv {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	for k := range s.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) HashSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hashes[key]
	if h == nil {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for f, v := range fields {
		h[f] = v
	}
	return nil
}

func (s *Store) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (s *Store) HashSetField(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hashes[key]
	if h == nil {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (s *Store) ZAddIfAbsent(_ context.Context, key string, score int64, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z := s.zsets[key]
	if z == nil {
		z = make(map[string]int64)
		s.zsets[key] = z
	}
	if _, exists := z[member]; exists {
		return false, nil
	}
	z[member] = score
	return true, nil
}

func (s *Store) ZRangeByScoreAsc(_ context.Context, key string, min, max int64, limit int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.sortedMembers(key)
	var out []string
	for _, m := range members {
		if m.score < min || m.score > max {
			continue
		}
		out = append(out, m.member)
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ZRemMember(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.zsets[key], member)
	return nil
}

func (s *Store) ZRangeAll(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.sortedMembers(key)
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.member)
	}
	return out, nil
}

func (s *Store) ZRangeAllWithScores(_ context.Context, key string) ([]store.ZMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.sortedMembers(key)
	out := make([]store.ZMember, 0, len(members))
	for _, m := range members {
		out = append(out, store.ZMember{Member: m.member, Score: m.score})
	}
	return out, nil
}

func (s *Store) ZRemRangeByScore(_ context.Context, key string, min, max int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z := s.zsets[key]
	var removed int64
	for member, score := range z {
		if score >= min && score <= max {
			delete(z, member)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Close() error { return nil }

type scoredMember struct {
	member string
	score  int64
}

// sortedMembers returns the zset ordered by (score, member).
// Must be called with s.mu held.
func (s *Store) sortedMembers(key string) []scoredMember {
	z := s.zsets[key]
	members := make([]scoredMember, 0, len(z))
	for m, sc := range z {
		members = append(members, scoredMember{member: m, score: sc})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].score != members[j].score {
			return members[i].score < members[j].score
		}
		return members[i].member < members[j].member
	})
	return members
}
