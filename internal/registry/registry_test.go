package registry

import (
	"testing"
	"time"

	"cointrade/internal/config"
)

func testAccounts() []config.AccountConfig {
	return []config.AccountConfig{
		{ID: "alpha", Active: true, Interval: 2 * time.Hour},
		{ID: "beta", Active: false},
		{ID: "gamma", Active: true},
	}
}

func TestNew_FillsDefaultInterval(t *testing.T) {
	r, err := New(testAccounts(), time.Hour)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	alpha, _ := r.Get("alpha")
	if alpha.Interval != 2*time.Hour {
		t.Errorf("explicit interval overwritten: %v", alpha.Interval)
	}
	beta, _ := r.Get("beta")
	if beta.Interval != time.Hour {
		t.Errorf("default interval not applied: %v", beta.Interval)
	}
}

func TestNew_RejectsDuplicateIDs(t *testing.T) {
	_, err := New([]config.AccountConfig{{ID: "a"}, {ID: "a"}}, time.Hour)
	if err == nil {
		t.Fatal("expected error for duplicate account IDs")
	}
}

func TestActive(t *testing.T) {
	r, err := New(testAccounts(), time.Hour)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	active := r.Active()
	if len(active) != 2 {
		t.Fatalf("expected 2 active accounts, got %d", len(active))
	}
	if active[0].ID != "alpha" || active[1].ID != "gamma" {
		t.Errorf("unexpected order: %s, %s", active[0].ID, active[1].ID)
	}
}

func TestSetActive(t *testing.T) {
	r, err := New(testAccounts(), time.Hour)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if err := r.SetActive("beta", true); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if !r.IsActive("beta") {
		t.Error("beta should be active")
	}

	if err := r.SetActive("alpha", false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if r.IsActive("alpha") {
		t.Error("alpha should be inactive")
	}

	if err := r.SetActive("unknown", true); err == nil {
		t.Error("expected error for unknown account")
	}
}
