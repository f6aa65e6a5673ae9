package cron

import (
	"errors"
	"testing"
	"time"
)

func TestExpandEveryTwoMinutes(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(10 * time.Minute)

	firings, err := Expand("*/2 * * * *", from, to)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	// from itself is a */2 firing but expansion is strictly-after.
	want := []int64{
		from.Add(2 * time.Minute).Unix(),
		from.Add(4 * time.Minute).Unix(),
		from.Add(6 * time.Minute).Unix(),
		from.Add(8 * time.Minute).Unix(),
		from.Add(10 * time.Minute).Unix(),
	}
	if len(firings) != len(want) {
		t.Fatalf("len(firings) = %d, want %d (%v)", len(firings), len(want), firings)
	}
	for i := range want {
		if firings[i] != want[i] {
			t.Errorf("firings[%d] = %d, want %d", i, firings[i], want[i])
		}
	}
}

func TestExpandDailyAtEight(t *testing.T) {
	// Midnight → +2h window contains no 08:00 firing.
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	firings, err := Expand("0 8 * * *", from, from.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(firings) != 0 {
		t.Errorf("firings = %v, want none inside [00:00, 02:00]", firings)
	}

	// A window that spans 08:00 contains exactly one firing at 08:00:00.
	firings, err = Expand("0 8 * * *", from, from.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	wantTime := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC).Unix()
	if len(firings) != 1 || firings[0] != wantTime {
		t.Errorf("firings = %v, want [%d]", firings, wantTime)
	}
	if wantTime != 1717228800 {
		t.Errorf("2024-06-01T08:00:00Z = %d, want 1717228800", wantTime)
	}
}

func TestExpandDeterministic(t *testing.T) {
	from := time.Date(2024, 3, 10, 6, 30, 0, 0, time.UTC)
	to := from.Add(6 * time.Hour)

	a, err := Expand("15,45 * * * *", from, to)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	b, _ := Expand("15,45 * * * *", from, to)

	if len(a) != len(b) {
		t.Fatalf("runs differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("a[%d] = %d, b[%d] = %d", i, a[i], i, b[i])
		}
	}
}

func TestExpandInclusiveUpperBound(t *testing.T) {
	from := time.Date(2024, 6, 1, 7, 59, 0, 0, time.UTC)
	to := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	firings, err := Expand("0 8 * * *", from, to)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(firings) != 1 || firings[0] != to.Unix() {
		t.Errorf("firings = %v, want [%d] (to is inclusive)", firings, to.Unix())
	}
}

func TestValidateRejectsBadExpressions(t *testing.T) {
	cases := []string{
		"not a cron",
		"* * * *",          // 4 fields
		"0 0 * * * *",      // 6 fields (seconds)
		"0 0 L * *",        // Quartz L
		"0 0 * * 5#3",      // Quartz #
		"61 * * * *",       // minute out of range
	}
	for _, expr := range cases {
		if err := Validate(expr); !errors.Is(err, ErrInvalidExpression) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidExpression", expr, err)
		}
	}

	for _, expr := range []string{"*/2 * * * *", "0 8 * * *", "0 9-17 * * 1-5", "15,45 6 1 * *"} {
		if err := Validate(expr); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", expr, err)
		}
	}
}
