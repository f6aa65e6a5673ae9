// Package notify is the push-notification boundary. The fan-out provider
// is an external collaborator; the engine only needs a Pusher it can hand
// messages to.
package notify

import (
	"context"
	"log/slog"
)

// Push is one notification to fan out.
type Push struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	TTL   int               `json:"ttl,omitempty"` // seconds the provider may retry delivery
	Data  map[string]string `json:"data,omitempty"`
	// UserID targets a single user's devices; empty means broadcast.
	UserID string `json:"userId,omitempty"`
}

// Pusher delivers notifications through an external provider.
type Pusher interface {
	Push(ctx context.Context, p Push) error
}

// LogPusher logs pushes instead of delivering them. Default in dev and in
// tests.
type LogPusher struct{}

func (LogPusher) Push(_ context.Context, p Push) error {
	slog.Info("notify: push (log only)", "title", p.Title, "user", p.UserID, "ttl", p.TTL)
	return nil
}
