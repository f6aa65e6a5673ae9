// Package cron expands 5-field cron expressions into concrete firing
// timestamps inside a time window. Expansion is pure and deterministic;
// firings are always computed in UTC regardless of the host timezone.
//
// Supported dialect: minute hour dom month dow with "*", literals,
// "a-b" ranges, "a,b,c" lists, and "*/N" steps. Seconds fields and the
// Quartz extensions (L, W, #) are rejected.
package cron

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// ErrInvalidExpression marks a cron expression that does not parse or
// uses an unsupported operator. Planners log and skip these; they never
// abort a planning pass.
var ErrInvalidExpression = errors.New("invalid cron expression")

var gx = gronx.New()

// Validate checks an expression against the supported dialect.
func Validate(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fmt.Errorf("%w: %q: want 5 fields, got %d", ErrInvalidExpression, expr, len(fields))
	}
	if strings.ContainsAny(expr, "LW#?") {
		return fmt.Errorf("%w: %q: unsupported operator", ErrInvalidExpression, expr)
	}
	if !gx.IsValid(expr) {
		return fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
	}
	return nil
}

// Expand returns every firing of expr strictly after from and at or
// before to, as Unix seconds in ascending order. Seconds within the
// fired minute are zero.
func Expand(expr string, from, to time.Time) ([]int64, error) {
	if err := Validate(expr); err != nil {
		return nil, err
	}

	var firings []int64
	ref := from.UTC()
	end := to.UTC()

	for {
		next, err := gronx.NextTickAfter(expr, ref, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
		}
		if next.After(end) {
			return firings, nil
		}
		firings = append(firings, next.Unix())
		ref = next
	}
}
