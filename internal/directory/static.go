package directory

import (
	"context"
	"sync"
)

// Static is an in-memory directory source. It backs tests and the
// standalone dev mode, where users are seeded from the config file.
type Static struct {
	mu    sync.Mutex
	users map[string]User
}

// NewStatic seeds an in-memory directory with the given users.
func NewStatic(users ...User) *Static {
	m := make(map[string]User, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	return &Static{users: m}
}

func (s *Static) UserByID(_ context.Context, id string, opts LookupOpts) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	// Callers edit lookup results before UpdateUser commits them; the
	// stored record must not alias the returned slice.
	u.Services = append([]Subscription(nil), u.Services...)
	if !opts.Raw {
		u = u.Sanitized()
	}
	return &u, nil
}

func (s *Static) ActiveUsers(_ context.Context) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []User
	for _, u := range s.users {
		if u.Status == StatusActive {
			active = append(active, u.Sanitized())
		}
	}
	return active, nil
}

func (s *Static) UpdateUser(_ context.Context, id string, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	u.ID = id
	s.users[id] = u
	return nil
}
