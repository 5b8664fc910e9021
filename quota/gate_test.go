package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/richinex/geoassist/storage"
)

func newTestGate(t *testing.T) (*Gate, *storage.InMemoryStorage) {
	t.Helper()
	policy, err := DefaultPolicy()
	if err != nil {
		t.Fatalf("DefaultPolicy: %v", err)
	}
	dir := storage.NewInMemoryStorage()
	g := NewGate(dir, policy)
	g.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return g, dir
}

func TestAuthorizeAdmitsUnderQuota(t *testing.T) {
	g, dir := newTestGate(t)
	ctx := context.Background()
	dir.UpsertUser(ctx, storage.User{ID: "u1", Role: "analyst", Tier: "free"})
	dir.SetUsage("u1", "2026-10", 49)

	uc, err := g.Authorize(ctx, "u1")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if uc.Limits.MaxRequests != 50 || uc.Limits.MaxAreaSqKm != 100 {
		t.Errorf("limits = %+v", uc.Limits)
	}
	if uc.Usage != 49 || uc.Period != "2026-10" {
		t.Errorf("usage %d period %s", uc.Usage, uc.Period)
	}
}

func TestAuthorizeRejectsAtQuota(t *testing.T) {
	g, dir := newTestGate(t)
	ctx := context.Background()
	dir.UpsertUser(ctx, storage.User{ID: "u1", Role: "analyst", Tier: "free"})
	dir.SetUsage("u1", "2026-10", 50)

	_, err := g.Authorize(ctx, "u1")
	var qe *QuotaExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuotaExceededError, got %v", err)
	}
	if qe.Usage != 50 || qe.Limit != 50 {
		t.Errorf("error = %+v", qe)
	}
}

func TestAuthorizeOldPeriodDoesNotCount(t *testing.T) {
	g, dir := newTestGate(t)
	ctx := context.Background()
	dir.UpsertUser(ctx, storage.User{ID: "u1", Role: "analyst", Tier: "free"})
	dir.SetUsage("u1", "2026-09", 500)

	if _, err := g.Authorize(ctx, "u1"); err != nil {
		t.Errorf("last month's usage should not block: %v", err)
	}
}

func TestAuthorizePermissionErrors(t *testing.T) {
	g, dir := newTestGate(t)
	ctx := context.Background()
	dir.UpsertUser(ctx, storage.User{ID: "ghost-tier", Role: "analyst", Tier: "platinum"})
	dir.UpsertUser(ctx, storage.User{ID: "ghost-role", Role: "intern", Tier: "free"})

	for _, id := range []string{"unknown", "ghost-tier", "ghost-role"} {
		_, err := g.Authorize(ctx, id)
		var pe *PermissionResolutionError
		if !errors.As(err, &pe) {
			t.Errorf("%s: expected PermissionResolutionError, got %v", id, err)
		}
	}

	_, err := g.Authorize(ctx, "unknown")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown user should wrap ErrNotFound: %v", err)
	}
}

func TestWildcardTier(t *testing.T) {
	g, dir := newTestGate(t)
	ctx := context.Background()
	dir.UpsertUser(ctx, storage.User{ID: "r1", Role: "researcher", Tier: "anything"})

	uc, err := g.Authorize(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if uc.Limits.MaxAreaSqKm != 10000 {
		t.Errorf("limits = %+v", uc.Limits)
	}
}

func TestParsePolicyRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ``},
		{"no tiers", "roles:\n  analyst: {}\n"},
		{"zero area", "roles:\n  analyst:\n    free: {maxRequests: 1, maxAreaSqKm: 0}\n"},
		{"negative requests", "roles:\n  analyst:\n    free: {maxRequests: -1, maxAreaSqKm: 5}\n"},
		{"not yaml", "roles: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePolicy([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPeriodIsUTCMonth(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	got := Period(time.Date(2026, 11, 1, 5, 0, 0, 0, loc))
	if got != "2026-10" {
		t.Errorf("Period = %s, want 2026-10", got)
	}
}
