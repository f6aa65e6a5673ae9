package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/nextlevelbuilder/helperd/internal/catalogue"
	"github.com/nextlevelbuilder/helperd/internal/helper"
	"github.com/nextlevelbuilder/helperd/internal/notify"
)

// BusAlerts checks a transit feed for disruptions on the user's stop and
// line. Only available in the PT region, and users pick their own run times.
type BusAlerts struct{}

func (BusAlerts) Definition() catalogue.Definition {
	return catalogue.Definition{
		ID:                       "busalerts",
		Name:                     "Bus Alerts",
		Description:              "Disruption alerts for a transit stop and line.",
		Priority:                 3,
		Timeout:                  300,
		AllowExecutionTimeConfig: true,
		RegionLock:               []string{"PT"},
		Params: map[string]catalogue.ParamType{
			"stop": catalogue.ParamString,
			"line": catalogue.ParamString,
		},
	}
}

func (BusAlerts) Run(ctx context.Context, rc helper.RunContext) error {
	stop := rc.StringParam("stop", "")
	line := rc.StringParam("line", "")
	if stop == "" || line == "" {
		return fmt.Errorf("busalerts: stop and line parameters required")
	}

	feed := os.Getenv("HELPERD_TRANSIT_FEED_URL")
	if feed == "" {
		rc.Log.Debug("busalerts: no transit feed configured, skipping")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/alerts?stop=%s&line=%s", feed, stop, line), nil)
	if err != nil {
		return fmt.Errorf("busalerts: build request: %w", err)
	}
	resp, err := rc.Deps.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("busalerts: fetch alerts: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("busalerts: feed returned %d", resp.StatusCode)
	}

	var alerts []struct {
		Severity string `json:"severity"`
		Message  string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&alerts); err != nil {
		return fmt.Errorf("busalerts: decode alerts: %w", err)
	}
	if len(alerts) == 0 {
		rc.Log.Debug("busalerts: no disruptions", "stop", stop, "line", line)
		return nil
	}

	for _, a := range alerts {
		err := rc.Deps.Pusher.Push(ctx, notify.Push{
			Title:  fmt.Sprintf("Line %s disruption", line),
			Body:   a.Message,
			UserID: rc.User.ID,
			TTL:    1800,
			Data:   map[string]string{"severity": a.Severity, "stop": stop},
		})
		if err != nil {
			return fmt.Errorf("busalerts: push alert: %w", err)
		}
	}
	return nil
}
