// Package planner turns catalogue definitions and user subscriptions into
// queued jobs over a sliding time window. It owns the three planning
// entrypoints: the boot horizon, the periodic window expansion, and the
// per-user re-plan after a subscription mutation.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/helperd/internal/catalogue"
	"github.com/nextlevelbuilder/helperd/internal/cron"
	"github.com/nextlevelbuilder/helperd/internal/directory"
	"github.com/nextlevelbuilder/helperd/internal/queue"
)

// Window defaults. Lookahead is the boot/replan horizon, ExpandSpan the
// periodic expansion slice.
const (
	DefaultLookahead  = 2 * time.Hour
	DefaultExpandSpan = 10 * time.Minute
)

// Planner plans jobs into the execution queue.
type Planner struct {
	queue     *queue.ExecutionQueue
	catalogue *catalogue.Catalogue
	directory directory.Directory
	lookahead time.Duration
	log       *slog.Logger
}

// New creates a planner. A zero lookahead falls back to the default 2 h
// horizon.
func New(q *queue.ExecutionQueue, c *catalogue.Catalogue, d directory.Directory, lookahead time.Duration) *Planner {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	return &Planner{
		queue:     q,
		catalogue: c,
		directory: d,
		lookahead: lookahead,
		log:       slog.Default().With("component", "planner"),
	}
}

// BuildInitial plans the full lookahead horizon at boot: internal helpers
// under the synthetic owner, then every active user's enabled
// subscriptions. Helpers flagged for a boot run get one extra job at now.
func (p *Planner) BuildInitial(ctx context.Context, now time.Time) error {
	until := now.Add(p.lookahead)

	if err := p.planInternal(ctx, now, until, true); err != nil {
		return err
	}

	users, err := p.directory.ActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("planner: list active users: %w", err)
	}
	for i := range users {
		if err := p.planUser(ctx, &users[i], now, until, true); err != nil {
			return err
		}
	}

	n, err := p.queue.Len(ctx)
	if err == nil {
		p.log.Info("initial horizon planned", "jobs", n, "until", until.UTC().Format(time.RFC3339))
	}
	return nil
}

// ExpandWindow plans the next expansion slice for every internal helper
// and active subscription. The per-firing pending check makes repeated
// expansion of an overlapping window a no-op.
func (p *Planner) ExpandWindow(ctx context.Context, now time.Time, span time.Duration) error {
	if span <= 0 {
		span = DefaultExpandSpan
	}
	until := now.Add(span)

	if err := p.planInternal(ctx, now, until, false); err != nil {
		return err
	}

	users, err := p.directory.ActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("planner: list active users: %w", err)
	}
	for i := range users {
		if err := p.planUser(ctx, &users[i], now, until, false); err != nil {
			return err
		}
	}
	return nil
}

// ReplanUser cancels the user's queued jobs and plans them again over the
// full lookahead horizon. Running jobs are never cancelled, and the boot
// run is not repeated.
func (p *Planner) ReplanUser(ctx context.Context, userID string, now time.Time) error {
	cancelled, err := p.queue.CancelQueuedOwnedBy(ctx, userID)
	if err != nil {
		return fmt.Errorf("planner: cancel jobs for %s: %w", userID, err)
	}

	u, err := p.directory.UserByID(ctx, userID, directory.LookupOpts{BypassCache: true})
	if err != nil {
		if cancelled > 0 {
			// A deleted user's queued jobs stay cancelled.
			p.log.Info("replan cancelled jobs of missing user", "user", userID, "cancelled", cancelled)
			return nil
		}
		return fmt.Errorf("planner: resolve user %s: %w", userID, err)
	}
	if u.Status != directory.StatusActive {
		p.log.Info("replan skipped inactive user", "user", userID, "status", u.Status, "cancelled", cancelled)
		return nil
	}

	if err := p.planUser(ctx, u, now, now.Add(p.lookahead), false); err != nil {
		return err
	}
	p.log.Info("user replanned", "user", userID, "cancelled", cancelled)
	return nil
}

// planInternal plans every enabled internal catalogue helper under the
// synthetic internal owner.
func (p *Planner) planInternal(ctx context.Context, now, until time.Time, bootPass bool) error {
	defs, err := p.catalogue.All(ctx)
	if err != nil {
		return fmt.Errorf("planner: read catalogue: %w", err)
	}
	for i := range defs {
		def := &defs[i]
		if !def.Internal || def.Disabled {
			continue
		}
		if bootPass && def.BootRun {
			if err := p.enqueueFiring(ctx, def, queue.InternalOwner, now.Unix(), now); err != nil {
				return err
			}
		}
		if err := p.planSchedules(ctx, def, queue.InternalOwner, def.Schedule, now, until); err != nil {
			return err
		}
	}
	return nil
}

// planUser plans one user's enabled subscriptions. Each gate failure is
// logged and skips the subscription, never the whole pass.
func (p *Planner) planUser(ctx context.Context, u *directory.User, now, until time.Time, bootPass bool) error {
	for i := range u.Services {
		sub := &u.Services[i]
		log := p.log.With("user", u.ID, "helper", sub.HelperID)

		if !sub.Enabled {
			continue
		}

		def, ok, err := p.catalogue.Get(ctx, sub.HelperID)
		if err != nil {
			return fmt.Errorf("planner: read helper %s: %w", sub.HelperID, err)
		}
		if !ok {
			log.Warn("subscription references unknown helper, skipping")
			continue
		}
		if !def.RegionAllowed(u.Region) {
			log.Debug("helper not available in user region", "region", u.Region)
			continue
		}
		if def.Disabled || def.Internal {
			log.Debug("helper not plannable for users", "disabled", def.Disabled, "internal", def.Internal)
			continue
		}
		if def.AdminOnly && !u.Admin {
			log.Warn("admin-only helper on non-admin subscription, skipping")
			continue
		}

		if bootPass && def.BootRun {
			if err := p.enqueueFiring(ctx, def, u.ID, now.Unix(), now); err != nil {
				return err
			}
		}

		schedules := def.Schedule
		if def.AllowExecutionTimeConfig && len(sub.Schedule) > 0 {
			schedules = sub.Schedule
		}
		if err := p.planSchedules(ctx, def, u.ID, schedules, now, until); err != nil {
			return err
		}
	}
	return nil
}

// planSchedules expands each cron expression over (now, until] and
// enqueues the firings. Unparseable expressions are logged and skipped.
func (p *Planner) planSchedules(ctx context.Context, def *catalogue.Definition, ownerID string, schedules []string, now, until time.Time) error {
	for _, expr := range schedules {
		firings, err := cron.Expand(expr, now, until)
		if err != nil {
			p.log.Warn("invalid cron expression, skipping",
				"helper", def.ID, "owner", ownerID, "expr", expr, "error", err)
			continue
		}
		for _, t := range firings {
			if err := p.enqueueFiring(ctx, def, ownerID, t, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// enqueueFiring creates one job for (helper, owner, executionTime) unless
// an equivalent job is already queued or running. Terminal matches never
// suppress a new firing.
func (p *Planner) enqueueFiring(ctx context.Context, def *catalogue.Definition, ownerID string, executionTime int64, now time.Time) error {
	pending, err := p.queue.HasPending(ctx, def.ID, ownerID, executionTime)
	if err != nil {
		return fmt.Errorf("planner: pending check %s/%s: %w", def.ID, ownerID, err)
	}
	if pending {
		return nil
	}

	rec := queue.NewRecord(def.ID, ownerID, executionTime, def.Priority, def.Timeout, now.Unix())
	if err := p.queue.Enqueue(ctx, rec); err != nil {
		return fmt.Errorf("planner: enqueue %s/%s: %w", def.ID, ownerID, err)
	}
	p.log.Debug("job planned",
		"execution", rec.ExecutionID, "helper", def.ID, "owner", ownerID,
		"at", executionTime, "priority", def.Priority)
	return nil
}
