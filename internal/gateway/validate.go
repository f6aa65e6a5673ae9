package gateway

import (
	"fmt"
	"math"

	"github.com/nextlevelbuilder/helperd/internal/catalogue"
	"github.com/nextlevelbuilder/helperd/internal/cron"
	"github.com/nextlevelbuilder/helperd/internal/directory"
)

// validateSubscription checks a requested subscription against the helper
// definition: declared parameters only, matching scalar types, and a
// schedule override only where the helper allows one.
func validateSubscription(def *catalogue.Definition, u *directory.User, params map[string]any, schedule []string) error {
	if def.Disabled {
		return fmt.Errorf("helper %s is disabled", def.ID)
	}
	if def.Internal {
		return fmt.Errorf("helper %s is internal", def.ID)
	}
	if !def.RegionAllowed(u.Region) {
		return fmt.Errorf("helper %s is not available in region %s", def.ID, u.Region)
	}
	if def.AdminOnly && !u.Admin {
		return fmt.Errorf("helper %s requires an admin account", def.ID)
	}

	for name, value := range params {
		declared, ok := def.ParamDeclared(name)
		if !ok {
			return fmt.Errorf("parameter %q is not declared by helper %s", name, def.ID)
		}
		if err := checkParamType(name, declared, value); err != nil {
			return err
		}
	}

	if len(schedule) > 0 {
		if !def.AllowExecutionTimeConfig {
			return fmt.Errorf("helper %s does not allow a custom schedule", def.ID)
		}
		for _, expr := range schedule {
			if err := cron.Validate(expr); err != nil {
				return fmt.Errorf("schedule %q: %w", expr, err)
			}
		}
	}
	return nil
}

// checkParamType verifies a decoded JSON value against the declared
// scalar type. JSON numbers decode as float64; integers must be whole.
func checkParamType(name string, declared catalogue.ParamType, value any) error {
	switch declared {
	case catalogue.ParamString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("parameter %q must be a string", name)
		}
	case catalogue.ParamInteger:
		f, ok := value.(float64)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("parameter %q must be an integer", name)
		}
	case catalogue.ParamBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("parameter %q must be a boolean", name)
		}
	default:
		return fmt.Errorf("parameter %q has unknown declared type %q", name, declared)
	}
	return nil
}
