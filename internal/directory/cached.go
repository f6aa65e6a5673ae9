package directory

import (
	"context"
	"encoding/json"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/helperd/internal/store"
)

const (
	cacheKeyPrefix  = "userData:"
	cacheTTLSeconds = 300
	lruSize         = 1024
)

// Cached wraps a directory source with two read-through cache layers: an
// in-process LRU and a shared TTL entry in the scheduling store, so every
// engine process sees an invalidation. Only sanitized records are cached;
// raw lookups always hit the source.
type Cached struct {
	source Directory
	store  store.Store
	lru    *lru.Cache[string, User]
}

// NewCached builds the caching wrapper around source.
func NewCached(source Directory, s store.Store) *Cached {
	cache, _ := lru.New[string, User](lruSize)
	return &Cached{source: source, store: s, lru: cache}
}

func (c *Cached) UserByID(ctx context.Context, id string, opts LookupOpts) (*User, error) {
	if opts.Raw {
		return c.source.UserByID(ctx, id, opts)
	}

	if !opts.BypassCache {
		if u, ok := c.lru.Get(id); ok {
			return &u, nil
		}
		if u, ok, err := c.fromStore(ctx, id); err == nil && ok {
			c.lru.Add(id, *u)
			return u, nil
		}
	}

	u, err := c.source.UserByID(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	sanitized := u.Sanitized()
	c.lru.Add(id, sanitized)
	c.toStore(ctx, id, sanitized)
	return &sanitized, nil
}

func (c *Cached) ActiveUsers(ctx context.Context) ([]User, error) {
	users, err := c.source.ActiveUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Sanitized())
	}
	return out, nil
}

func (c *Cached) UpdateUser(ctx context.Context, id string, u User) error {
	if err := c.source.UpdateUser(ctx, id, u); err != nil {
		return err
	}
	c.lru.Remove(id)
	if err := c.store.DelKey(ctx, cacheKeyPrefix+id); err != nil {
		// A stale shared entry expires on its own TTL.
		slog.Warn("directory: cache invalidation failed", "user", id, "error", err)
	}
	return nil
}

func (c *Cached) fromStore(ctx context.Context, id string) (*User, bool, error) {
	raw, ok, err := c.store.GetKV(ctx, cacheKeyPrefix+id)
	if err != nil || !ok {
		return nil, false, err
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, false, err
	}
	return &u, true, nil
}

func (c *Cached) toStore(ctx context.Context, id string, u User) {
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := c.store.SetKVTTL(ctx, cacheKeyPrefix+id, string(data), cacheTTLSeconds); err != nil {
		slog.Warn("directory: cache write failed", "user", id, "error", err)
	}
}
