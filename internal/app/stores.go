// Package app opens the storage backend selected by config and builds the repositories
// shared by cmd/server, cmd/worker and cmd/seed.
package app

import (
	"database/sql"
	"fmt"

	auditrepo "github.com/itsfredrick/vayva-platform-sub007/internal/audit/repository"
	"github.com/itsfredrick/vayva-platform-sub007/internal/config"
	consentrepo "github.com/itsfredrick/vayva-platform-sub007/internal/consent/repository"
	"github.com/itsfredrick/vayva-platform-sub007/internal/db"
	"github.com/itsfredrick/vayva-platform-sub007/internal/db/migrate"
	policyrepo "github.com/itsfredrick/vayva-platform-sub007/internal/policy/repository"
)

// Stores holds the open database and its repositories.
type Stores struct {
	DB       *sql.DB
	Driver   string
	Consent  consentrepo.Repository
	Audit    auditrepo.Repository
	Policies policyrepo.Repository
}

// OpenStores opens the configured database. SQLite files are migrated up on open; Postgres
// schemas are managed by cmd/migrate. Caller must call Close.
func OpenStores(cfg *config.Config) (*Stores, error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := migrate.RunSQLite(conn, "up"); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return &Stores{
			DB:       conn,
			Driver:   config.DriverSQLite,
			Consent:  consentrepo.NewSQLiteRepository(conn),
			Audit:    auditrepo.NewSQLiteRepository(conn),
			Policies: policyrepo.NewSQLiteRepository(conn),
		}, nil
	case config.DriverPostgres:
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &Stores{
			DB:       conn,
			Driver:   config.DriverPostgres,
			Consent:  consentrepo.NewPostgresRepository(conn),
			Audit:    auditrepo.NewPostgresRepository(conn),
			Policies: policyrepo.NewPostgresRepository(conn),
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

// Close closes the database.
func (s *Stores) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
