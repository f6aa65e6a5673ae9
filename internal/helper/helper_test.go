package helper_test

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/helperd/internal/catalogue"
	"github.com/nextlevelbuilder/helperd/internal/helper"
	"github.com/nextlevelbuilder/helperd/internal/helper/builtin"
)

type fake struct{ id string }

func (f fake) Definition() catalogue.Definition {
	return catalogue.Definition{ID: f.id, Priority: 3, Timeout: 60}
}

func (fake) Run(context.Context, helper.RunContext) error { return nil }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := helper.NewRegistry()
	if err := r.Register(fake{id: "a"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, ok := r.Get("a"); !ok {
		t.Error("Get(a) = false, want registered helper")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) = true, want absent")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := helper.NewRegistry()
	r.Register(fake{id: "a"})
	if err := r.Register(fake{id: "a"}); err == nil {
		t.Error("duplicate Register succeeded, want error")
	}
	if err := r.Register(fake{id: ""}); err == nil {
		t.Error("empty-id Register succeeded, want error")
	}
}

func TestRegistryAllSorted(t *testing.T) {
	r := helper.NewRegistry()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		r.Register(fake{id: id})
	}

	got := r.All()
	want := []string{"alpha", "mid", "zeta"}
	for i, h := range got {
		if h.Definition().ID != want[i] {
			t.Errorf("All()[%d] = %s, want %s", i, h.Definition().ID, want[i])
		}
	}
}

func TestBuiltinDefinitionsValid(t *testing.T) {
	r := helper.NewRegistry()
	for _, h := range builtin.All() {
		if err := r.Register(h); err != nil {
			t.Errorf("builtin %s failed to register: %v", h.Definition().ID, err)
		}
	}

	for _, def := range r.Definitions() {
		if def.Priority < 1 || def.Priority > 5 {
			t.Errorf("%s: priority %d out of range", def.ID, def.Priority)
		}
		if def.Timeout <= 0 {
			t.Errorf("%s: non-positive timeout %d", def.ID, def.Timeout)
		}
	}
}
