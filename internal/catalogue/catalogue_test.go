package catalogue

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/helperd/internal/store/memory"
)

func testDef(id string) Definition {
	return Definition{
		ID:          id,
		Name:        "Test helper",
		Description: "does test things",
		Params:      map[string]ParamType{"city": ParamString},
		Priority:    3,
		Timeout:     300,
		Schedule:    []string{"0 8 * * *"},
		RegionLock:  []string{RegionWildcard},
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	c := New(memory.New())
	ctx := context.Background()

	def := testDef("daily")
	if err := c.Register(ctx, def); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := c.Register(ctx, def); err != nil {
		t.Fatalf("second Register failed: %v", err)
	}

	all, err := c.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len(all) = %d, want 1", len(all))
	}
	if all[0].ID != "daily" || all[0].Timeout != 300 {
		t.Errorf("stored definition = %+v, want the registered one", all[0])
	}
}

func TestGetAbsent(t *testing.T) {
	c := New(memory.New())

	def, ok, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok || def != nil {
		t.Errorf("Get(missing) = (%v, %v), want (nil, false)", def, ok)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	c := New(memory.New())
	ctx := context.Background()

	c.Register(ctx, testDef("a"))
	c.Register(ctx, testDef("b"))

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	all, _ := c.All(ctx)
	if len(all) != 0 {
		t.Errorf("len(all) = %d after Clear, want 0", len(all))
	}
}

func TestSetDisabled(t *testing.T) {
	c := New(memory.New())
	ctx := context.Background()

	c.Register(ctx, testDef("daily"))
	if err := c.SetDisabled(ctx, "daily", true); err != nil {
		t.Fatalf("SetDisabled failed: %v", err)
	}

	def, ok, _ := c.Get(ctx, "daily")
	if !ok || !def.Disabled {
		t.Errorf("definition after SetDisabled = %+v, want Disabled=true", def)
	}

	if err := c.SetDisabled(ctx, "missing", true); err == nil {
		t.Error("SetDisabled(missing) = nil, want error")
	}
}

func TestRegisterValidation(t *testing.T) {
	c := New(memory.New())
	ctx := context.Background()

	bad := testDef("p0")
	bad.Priority = 0
	if err := c.Register(ctx, bad); err == nil {
		t.Error("Register with priority 0 succeeded, want error")
	}

	bad = testDef("t0")
	bad.Timeout = 0
	if err := c.Register(ctx, bad); err == nil {
		t.Error("Register with timeout 0 succeeded, want error")
	}
}

func TestRegionAllowed(t *testing.T) {
	cases := []struct {
		lock   []string
		region string
		want   bool
	}{
		{[]string{"*"}, "PT", true},
		{[]string{"US"}, "PT", false},
		{[]string{"US", "PT"}, "PT", true},
		{nil, "anything", true},
	}
	for _, tc := range cases {
		d := Definition{RegionLock: tc.lock}
		if got := d.RegionAllowed(tc.region); got != tc.want {
			t.Errorf("RegionAllowed(%v, %q) = %v, want %v", tc.lock, tc.region, got, tc.want)
		}
	}
}
