package builtin

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/helperd/internal/catalogue"
	"github.com/nextlevelbuilder/helperd/internal/helper"
	"github.com/nextlevelbuilder/helperd/internal/notify"
)

// CriticalPusher sends a high-priority alert to a user's devices. Admins
// trigger it through the notifications endpoint; it never runs on a cron.
type CriticalPusher struct{}

func (CriticalPusher) Definition() catalogue.Definition {
	return catalogue.Definition{
		ID:                     "criticalpusher",
		Name:                   "Critical Pusher",
		Description:            "Admin-triggered high-priority alert.",
		AdminOnly:              true,
		RequireAdminActivation: true,
		Priority:               1,
		Timeout:                60,
		Params: map[string]catalogue.ParamType{
			"title": catalogue.ParamString,
			"body":  catalogue.ParamString,
		},
	}
}

func (CriticalPusher) Run(ctx context.Context, rc helper.RunContext) error {
	title := rc.StringParam("title", "Alert")
	body := rc.StringParam("body", "")
	if body == "" {
		return fmt.Errorf("criticalpusher: body parameter required")
	}

	push := notify.Push{
		Title: title,
		Body:  body,
		TTL:   86400,
		Data:  map[string]string{"critical": "true"},
	}
	if rc.User != nil {
		push.UserID = rc.User.ID
	}
	if err := rc.Deps.Pusher.Push(ctx, push); err != nil {
		return fmt.Errorf("criticalpusher: push: %w", err)
	}
	return nil
}
