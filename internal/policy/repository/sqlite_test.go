package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/itsfredrick/vayva-platform-sub007/internal/db"
	"github.com/itsfredrick/vayva-platform-sub007/internal/db/migrate"
	"github.com/itsfredrick/vayva-platform-sub007/internal/policy/domain"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "policy.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := migrate.RunSQLite(conn, "up"); err != nil {
		t.Fatalf("RunSQLite: %v", err)
	}
	return NewSQLiteRepository(conn)
}

func TestSQLiteRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2026, 2, 3, 4, 5, 6, 7_000_000, time.UTC)

	p1 := &domain.SendPolicy{ID: "p1", MerchantID: "m1", Name: "quiet hours", Rules: "package consent.send_policy", Enabled: true, CreatedAt: now, UpdatedAt: now}
	p2 := &domain.SendPolicy{ID: "p2", MerchantID: "m1", Name: "paused", Rules: "package consent.send_policy", Enabled: false, CreatedAt: now.Add(time.Second), UpdatedAt: now.Add(time.Second)}
	p3 := &domain.SendPolicy{ID: "p3", MerchantID: "m2", Name: "other", Rules: "package consent.send_policy", Enabled: true, CreatedAt: now, UpdatedAt: now}
	for _, p := range []*domain.SendPolicy{p1, p2, p3} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("Create %s: %v", p.ID, err)
		}
	}

	got, err := repo.GetByID(ctx, "m1", "p1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.Name != "quiet hours" || !got.Enabled || !got.CreatedAt.Equal(now) {
		t.Errorf("GetByID = %+v", got)
	}
	if other, err := repo.GetByID(ctx, "m2", "p1"); err != nil || other != nil {
		t.Errorf("GetByID across merchants = %+v, %v; want nil, nil", other, err)
	}

	all, err := repo.ListByMerchant(ctx, "m1")
	if err != nil || len(all) != 2 || all[0].ID != "p1" || all[1].ID != "p2" {
		t.Fatalf("ListByMerchant = %v, %v", all, err)
	}
	enabled, err := repo.ListEnabledByMerchant(ctx, "m1")
	if err != nil || len(enabled) != 1 || enabled[0].ID != "p1" {
		t.Fatalf("ListEnabledByMerchant = %v, %v", enabled, err)
	}

	p2.Enabled = true
	p2.Name = "resumed"
	p2.UpdatedAt = now.Add(time.Hour)
	if err := repo.Update(ctx, p2); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = repo.GetByID(ctx, "m1", "p2")
	if !got.Enabled || got.Name != "resumed" || !got.UpdatedAt.Equal(now.Add(time.Hour)) {
		t.Errorf("after update = %+v", got)
	}

	missing := &domain.SendPolicy{ID: "nope", MerchantID: "m1", UpdatedAt: now}
	if err := repo.Update(ctx, missing); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}
