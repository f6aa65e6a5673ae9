package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/nextlevelbuilder/helperd/internal/catalogue"
	"github.com/nextlevelbuilder/helperd/internal/helper"
)

// RulesKey is where the current rules blob lives in the scheduling store.
const RulesKey = "internalRules"

// RulesUpdater refreshes the shared rules blob from its upstream source.
// Other processes read the blob from the store and never talk upstream.
type RulesUpdater struct{}

func (RulesUpdater) Definition() catalogue.Definition {
	return catalogue.Definition{
		ID:          "rulesupdater",
		Name:        "Rules Updater",
		Description: "Keeps the shared rules blob in sync with upstream.",
		Internal:    true,
		Priority:    1,
		Timeout:     300,
		Schedule:    []string{"*/30 * * * *"},
	}
}

func (RulesUpdater) Run(ctx context.Context, rc helper.RunContext) error {
	source := os.Getenv("HELPERD_RULES_URL")
	if source == "" {
		rc.Log.Debug("rulesupdater: no rules source configured, skipping")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return fmt.Errorf("rulesupdater: build request: %w", err)
	}
	resp, err := rc.Deps.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("rulesupdater: fetch rules: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rulesupdater: source returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("rulesupdater: read rules: %w", err)
	}
	if err := rc.Deps.Store.SetKV(ctx, RulesKey, string(body)); err != nil {
		return fmt.Errorf("rulesupdater: store rules: %w", err)
	}
	rc.Log.Info("rulesupdater: rules refreshed", "bytes", len(body))
	return nil
}
