package directory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/nextlevelbuilder/helperd/internal/store/memory"
)

// countingSource wraps Static and counts source hits.
type countingSource struct {
	*Static
	lookups atomic.Int32
}

func (c *countingSource) UserByID(ctx context.Context, id string, opts LookupOpts) (*User, error) {
	c.lookups.Add(1)
	return c.Static.UserByID(ctx, id, opts)
}

func seedUser() User {
	return User{
		ID:           "u1",
		Email:        "u1@example.test",
		Status:       StatusActive,
		Region:       "PT",
		PasswordHash: "argon2-secret",
		Services: []Subscription{
			{HelperID: "daily", Enabled: true, Schedule: []string{"0 8 * * *"}},
		},
	}
}

func TestCachedReadThrough(t *testing.T) {
	src := &countingSource{Static: NewStatic(seedUser())}
	c := NewCached(src, memory.New())
	ctx := context.Background()

	u, err := c.UserByID(ctx, "u1", LookupOpts{})
	if err != nil {
		t.Fatalf("UserByID failed: %v", err)
	}
	if u.PasswordHash != "" {
		t.Error("non-raw lookup leaked password hash")
	}

	c.UserByID(ctx, "u1", LookupOpts{})
	c.UserByID(ctx, "u1", LookupOpts{})
	if n := src.lookups.Load(); n != 1 {
		t.Errorf("source lookups = %d, want 1 (cache hit on repeats)", n)
	}
}

func TestCachedRawBypassesCache(t *testing.T) {
	src := &countingSource{Static: NewStatic(seedUser())}
	c := NewCached(src, memory.New())
	ctx := context.Background()

	c.UserByID(ctx, "u1", LookupOpts{}) // warm caches

	u, err := c.UserByID(ctx, "u1", LookupOpts{Raw: true})
	if err != nil {
		t.Fatalf("raw UserByID failed: %v", err)
	}
	if u.PasswordHash == "" {
		t.Error("raw lookup stripped password hash")
	}
	if n := src.lookups.Load(); n != 2 {
		t.Errorf("source lookups = %d, want 2 (raw goes to source)", n)
	}
}

func TestUpdateUserInvalidates(t *testing.T) {
	src := &countingSource{Static: NewStatic(seedUser())}
	c := NewCached(src, memory.New())
	ctx := context.Background()

	c.UserByID(ctx, "u1", LookupOpts{})

	updated := seedUser()
	updated.Region = "US"
	if err := c.UpdateUser(ctx, "u1", updated); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}

	u, _ := c.UserByID(ctx, "u1", LookupOpts{})
	if u.Region != "US" {
		t.Errorf("region after update = %q, want %q (stale cache)", u.Region, "US")
	}
}

func TestUserByIDNotFound(t *testing.T) {
	c := NewCached(NewStatic(), memory.New())

	_, err := c.UserByID(context.Background(), "ghost", LookupOpts{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestActiveUsersFiltersStatus(t *testing.T) {
	suspended := seedUser()
	suspended.ID = "u2"
	suspended.Status = StatusSuspended
	pending := seedUser()
	pending.ID = "u3"
	pending.Status = StatusDeletionPending

	c := NewCached(NewStatic(seedUser(), suspended, pending), memory.New())

	active, err := c.ActiveUsers(context.Background())
	if err != nil {
		t.Fatalf("ActiveUsers failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != "u1" {
		t.Errorf("active = %v, want only u1", active)
	}
}
