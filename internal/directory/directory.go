// Package directory is the user directory consumed by the scheduling
// core: per-user subscription data, admin flags, and account status. The
// core only reads it during planning and dispatch; mutations come from
// the gateway.
package directory

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a user id cannot be resolved.
var ErrNotFound = errors.New("user not found")

// Status is the account lifecycle state.
type Status string

const (
	StatusActive          Status = "active"
	StatusSuspended       Status = "suspended"
	StatusDeletionPending Status = "deletionPending"
)

// Subscription is a user's opt-in to one helper, with parameter values
// and an optional schedule override.
type Subscription struct {
	HelperID string         `json:"helperId"`
	Enabled  bool           `json:"enabled"`
	Params   map[string]any `json:"params,omitempty"`
	Schedule []string       `json:"schedule,omitempty"` // cron expressions, may be empty
}

// User is a directory record. PasswordHash is only populated on raw
// lookups; every other path strips it.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email,omitempty"`
	Admin        bool           `json:"admin"`
	Status       Status         `json:"status"`
	Region       string         `json:"region,omitempty"`
	Services     []Subscription `json:"services,omitempty"`
	PasswordHash string         `json:"passwordHash,omitempty"`
}

// Sanitized returns a copy with the password hash stripped.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// Subscription returns the user's subscription for helperID, if any.
func (u *User) Subscription(helperID string) (*Subscription, bool) {
	for i := range u.Services {
		if u.Services[i].HelperID == helperID {
			return &u.Services[i], true
		}
	}
	return nil, false
}

// LookupOpts tunes a single user lookup.
type LookupOpts struct {
	BypassCache bool // read through to the source
	Raw         bool // keep the password hash (implies BypassCache)
}

// Directory resolves users for planning, dispatch, and the gateway.
type Directory interface {
	// UserByID resolves one user. Returns ErrNotFound when absent.
	UserByID(ctx context.Context, id string, opts LookupOpts) (*User, error)

	// ActiveUsers lists every user with status active.
	ActiveUsers(ctx context.Context) ([]User, error)

	// UpdateUser writes the new record and invalidates caches.
	UpdateUser(ctx context.Context, id string, u User) error
}
