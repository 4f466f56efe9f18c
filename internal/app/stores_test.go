package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/itsfredrick/vayva-platform-sub007/internal/config"
)

func TestOpenStores_SQLite(t *testing.T) {
	cfg := &config.Config{
		StorageDriver: config.DriverSQLite,
		SQLitePath:    filepath.Join(t.TempDir(), "nested", "consent.db"),
	}
	stores, err := OpenStores(cfg)
	if err != nil {
		t.Fatalf("OpenStores: %v", err)
	}

	if stores.Driver != config.DriverSQLite {
		t.Errorf("Driver = %q", stores.Driver)
	}
	rec, err := stores.Consent.GetByKey(context.Background(), "m1", "+2348012345678")
	if err != nil || rec != nil {
		t.Errorf("GetByKey on empty store = %v, %v; want nil, nil", rec, err)
	}
	policies, err := stores.Policies.ListByMerchant(context.Background(), "m1")
	if err != nil || len(policies) != 0 {
		t.Errorf("ListByMerchant = %v, %v", policies, err)
	}

	// Reopening an already migrated file is fine.
	if err := stores.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	again, err := OpenStores(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = again.Close()
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	if _, err := OpenStores(&config.Config{StorageDriver: "mysql"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestStores_CloseNil(t *testing.T) {
	var s *Stores
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil = %v", err)
	}
}
