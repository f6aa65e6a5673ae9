// Package builtin holds the helpers compiled into the engine binary.
package builtin

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/nextlevelbuilder/helperd/internal/catalogue"
	"github.com/nextlevelbuilder/helperd/internal/helper"
)

// CheckIn pings an external heartbeat endpoint so an outside monitor can
// tell the engine is alive and dispatching.
type CheckIn struct{}

func (CheckIn) Definition() catalogue.Definition {
	return catalogue.Definition{
		ID:          "checkin",
		Name:        "Check In",
		Description: "Reports engine liveness to the heartbeat monitor.",
		Internal:    true,
		BootRun:     true,
		Priority:    2,
		Timeout:     120,
		Schedule:    []string{"*/2 * * * *"},
	}
}

func (CheckIn) Run(ctx context.Context, rc helper.RunContext) error {
	url := os.Getenv("HELPERD_HEARTBEAT_URL")
	if url == "" {
		rc.Log.Debug("checkin: no heartbeat url configured, skipping")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("checkin: build request: %w", err)
	}
	resp, err := rc.Deps.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("checkin: ping heartbeat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("checkin: heartbeat returned %d", resp.StatusCode)
	}
	rc.Log.Debug("checkin: heartbeat acknowledged", "status", resp.StatusCode)
	return nil
}
