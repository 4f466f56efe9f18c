package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	auditdomain "github.com/itsfredrick/vayva-platform-sub007/internal/audit/domain"
	auditrepo "github.com/itsfredrick/vayva-platform-sub007/internal/audit/repository"
	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/db"
)

// SQLiteRepository stores consent records in SQLite. db.OpenSQLite limits the pool to one
// connection, so each transaction has the database to itself until it ends.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a consent repository on a handle from db.OpenSQLite.
func NewSQLiteRepository(conn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: conn}
}

// GetByKey returns the record for (merchantID, phoneE164), or nil if not found.
func (r *SQLiteRepository) GetByKey(ctx context.Context, merchantID, phoneE164 string) (*domain.ConsentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM consent_records WHERE merchant_id = ? AND phone_e164 = ?`,
		merchantID, phoneE164)
	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return withinTx(ctx, r.db, func(tx *sql.Tx) Tx {
		return &sqliteTx{tx: tx, events: auditrepo.NewSQLiteRepository(tx)}
	}, fn)
}

type sqliteTx struct {
	tx     *sql.Tx
	events *auditrepo.SQLiteRepository
}

func (t *sqliteTx) FindOrCreate(ctx context.Context, fresh *domain.ConsentRecord) (*domain.ConsentRecord, bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO consent_records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (merchant_id, phone_e164) DO NOTHING`,
		fresh.ID, fresh.MerchantID, fresh.PhoneE164, nullString(fresh.CustomerID),
		fresh.MarketingOptIn, fresh.MarketingOptInSource, fresh.TransactionalAllowed, fresh.FullyBlocked,
		db.ToMillis(fresh.CreatedAt), db.ToMillis(fresh.UpdatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert consent record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM consent_records WHERE merchant_id = ? AND phone_e164 = ?`,
		fresh.MerchantID, fresh.PhoneE164)
	rec, err := scanSQLiteRecord(row)
	if err != nil {
		return nil, false, fmt.Errorf("read consent record: %w", err)
	}
	return rec, n == 1, nil
}

func (t *sqliteTx) Update(ctx context.Context, rec *domain.ConsentRecord) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE consent_records SET customer_id = ?, marketing_opt_in = ?, marketing_opt_in_source = ?,
		 transactional_allowed = ?, fully_blocked = ?, updated_at = ? WHERE id = ?`,
		nullString(rec.CustomerID), rec.MarketingOptIn, rec.MarketingOptInSource,
		rec.TransactionalAllowed, rec.FullyBlocked, db.ToMillis(rec.UpdatedAt), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update consent record: %w", err)
	}
	return expectOneRow(res)
}

func (t *sqliteTx) AppendEvent(ctx context.Context, e *auditdomain.ComplianceEvent) error {
	if err := t.events.Create(ctx, e); err != nil {
		return fmt.Errorf("append compliance event: %w", err)
	}
	return nil
}

func scanSQLiteRecord(row *sql.Row) (*domain.ConsentRecord, error) {
	var (
		rec                  domain.ConsentRecord
		customerID           sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rec.ID, &rec.MerchantID, &rec.PhoneE164, &customerID, &rec.MarketingOptIn,
		&rec.MarketingOptInSource, &rec.TransactionalAllowed, &rec.FullyBlocked, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if customerID.Valid {
		rec.CustomerID = &customerID.String
	}
	rec.CreatedAt = db.FromMillis(createdAt)
	rec.UpdatedAt = db.FromMillis(updatedAt)
	return &rec, nil
}
