// Package helper defines the execution contract between the engine and the
// units of work it runs, plus the process-wide registry the dispatcher
// resolves helpers from.
package helper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/helperd/internal/catalogue"
	"github.com/nextlevelbuilder/helperd/internal/directory"
	"github.com/nextlevelbuilder/helperd/internal/notify"
	"github.com/nextlevelbuilder/helperd/internal/store"
)

// Deps are the engine-provided collaborators a helper may use. All of them
// are safe for concurrent use.
type Deps struct {
	Pusher notify.Pusher
	HTTP   *http.Client
	Store  store.Store
}

// RunContext carries everything one execution needs. User is nil for
// internal helpers, which run on behalf of the system rather than a person.
type RunContext struct {
	User   *directory.User
	Params map[string]any
	Log    *slog.Logger
	Deps   Deps
}

// StringParam returns a declared string parameter, or def when absent or of
// the wrong type.
func (rc RunContext) StringParam(name, def string) string {
	if v, ok := rc.Params[name].(string); ok {
		return v
	}
	return def
}

// Helper is one executable unit. Run must honor ctx cancellation: when the
// execution deadline passes, ctx is cancelled and the run is recorded as a
// timeout regardless of what Run returns afterwards.
type Helper interface {
	Definition() catalogue.Definition
	Run(ctx context.Context, rc RunContext) error
}

// Registry holds the helpers compiled into this binary, keyed by id.
type Registry struct {
	mu      sync.RWMutex
	helpers map[string]Helper
}

// NewRegistry creates an empty helper registry.
func NewRegistry() *Registry {
	return &Registry{helpers: make(map[string]Helper)}
}

// Register adds a helper. Registering a duplicate id is a programming
// error and fails loudly.
func (r *Registry) Register(h Helper) error {
	def := h.Definition()
	if def.ID == "" {
		return fmt.Errorf("helper: empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.helpers[def.ID]; exists {
		return fmt.Errorf("helper: %s already registered", def.ID)
	}
	r.helpers[def.ID] = h
	return nil
}

// Get returns the helper for id.
func (r *Registry) Get(id string) (Helper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.helpers[id]
	return h, ok
}

// All returns the registered helpers sorted by id.
func (r *Registry) All() []Helper {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Helper, 0, len(r.helpers))
	for _, h := range r.helpers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Definition().ID < out[j].Definition().ID
	})
	return out
}

// Definitions returns the catalogue definitions of all registered helpers,
// sorted by id.
func (r *Registry) Definitions() []catalogue.Definition {
	all := r.All()
	defs := make([]catalogue.Definition, 0, len(all))
	for _, h := range all {
		defs = append(defs, h.Definition())
	}
	return defs
}
