// Package catalogue holds the registry of helper definitions discovered at
// boot. Definitions live in the scheduling store as JSON under a fixed key
// prefix and are the source of truth for dispatch planning.
package catalogue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/helperd/internal/store"
)

// KeyPrefix is the store key prefix for helper definitions. Fixed wire
// contract shared with the operator tooling.
const KeyPrefix = "internalAvailableHelpers:"

// ParamType is the declared scalar type of a helper parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
)

// RegionWildcard in a region lock disables the region check.
const RegionWildcard = "*"

// Definition is a helper's declared configuration. Created at boot
// discovery and stable until shutdown.
type Definition struct {
	ID                       string               `json:"id"`
	Name                     string               `json:"name"`
	Description              string               `json:"description"`
	Params                   map[string]ParamType `json:"params,omitempty"`
	Internal                 bool                 `json:"internal"`
	AdminOnly                bool                 `json:"admin_only"`
	RequireAdminActivation   bool                 `json:"require_admin_activation"`
	BootRun                  bool                 `json:"boot_run"`
	Priority                 int                  `json:"priority"` // 1 (highest) .. 5
	Timeout                  int                  `json:"timeout"`  // seconds, per-invocation bound
	AllowExecutionTimeConfig bool                 `json:"allow_execution_time_config"`
	Schedule                 []string             `json:"schedule,omitempty"` // cron expressions
	Disabled                 bool                 `json:"disabled"`
	RegionLock               []string             `json:"region_lock,omitempty"`
}

// RegionAllowed reports whether a user in the given region may run this
// helper. An empty lock or the wildcard entry allows every region.
func (d *Definition) RegionAllowed(region string) bool {
	if len(d.RegionLock) == 0 {
		return true
	}
	for _, r := range d.RegionLock {
		if r == RegionWildcard || r == region {
			return true
		}
	}
	return false
}

// ParamDeclared reports whether the helper declares a parameter with the
// given name, and its type.
func (d *Definition) ParamDeclared(name string) (ParamType, bool) {
	t, ok := d.Params[name]
	return t, ok
}

func (d *Definition) validate() error {
	if d.ID == "" {
		return fmt.Errorf("helper definition missing id")
	}
	if d.Priority < 1 || d.Priority > 5 {
		return fmt.Errorf("helper %s: priority %d out of range 1..5", d.ID, d.Priority)
	}
	if d.Timeout <= 0 {
		return fmt.Errorf("helper %s: timeout must be positive", d.ID)
	}
	return nil
}

// Catalogue reads and writes helper definitions in the scheduling store.
type Catalogue struct {
	store store.Store
}

// New creates a catalogue over the given store.
func New(s store.Store) *Catalogue {
	return &Catalogue{store: s}
}

// Register writes a definition under its id. Repeated register overwrites.
func (c *Catalogue) Register(ctx context.Context, def Definition) error {
	if err := def.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal helper %s: %w", def.ID, err)
	}
	if err := c.store.SetKV(ctx, KeyPrefix+def.ID, string(data)); err != nil {
		return err
	}
	slog.Info("catalogue: registered helper", "id", def.ID, "internal", def.Internal, "priority", def.Priority)
	return nil
}

// Get returns the definition for id, or ok=false if absent.
func (c *Catalogue) Get(ctx context.Context, id string) (*Definition, bool, error) {
	raw, ok, err := c.store.GetKV(ctx, KeyPrefix+id)
	if err != nil || !ok {
		return nil, false, err
	}
	var def Definition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return nil, false, fmt.Errorf("unmarshal helper %s: %w", id, err)
	}
	return &def, true, nil
}

// All returns every registered definition.
func (c *Catalogue) All(ctx context.Context) ([]Definition, error) {
	keys, err := c.store.KeysByPrefix(ctx, KeyPrefix)
	if err != nil {
		return nil, err
	}
	defs := make([]Definition, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, KeyPrefix)
		def, ok, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			defs = append(defs, *def)
		}
	}
	return defs, nil
}

// Clear deletes every catalogue entry. Called once on startup before the
// discovered helpers re-register, so stale entries never survive a deploy.
func (c *Catalogue) Clear(ctx context.Context) error {
	keys, err := c.store.KeysByPrefix(ctx, KeyPrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := c.store.DelKey(ctx, key); err != nil {
			return err
		}
	}
	if len(keys) > 0 {
		slog.Info("catalogue: cleared stale entries", "count", len(keys))
	}
	return nil
}

// SetDisabled flips the disabled flag on a registered helper. The planner
// picks the change up on its next pass; queued jobs are not dequeued.
func (c *Catalogue) SetDisabled(ctx context.Context, id string, disabled bool) error {
	def, ok, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("helper %s not registered", id)
	}
	def.Disabled = disabled
	return c.Register(ctx, *def)
}
