package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	auditdomain "github.com/itsfredrick/vayva-platform-sub007/internal/audit/domain"
	auditrepo "github.com/itsfredrick/vayva-platform-sub007/internal/audit/repository"
	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
)

const recordColumns = `id, merchant_id, phone_e164, customer_id, marketing_opt_in, marketing_opt_in_source,
	transactional_allowed, fully_blocked, created_at, updated_at`

// PostgresRepository stores consent records in Postgres. Concurrent updates of one key are
// serialized by a row lock taken in FindOrCreate.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a consent repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByKey returns the record for (merchantID, phoneE164), or nil if not found.
func (r *PostgresRepository) GetByKey(ctx context.Context, merchantID, phoneE164 string) (*domain.ConsentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM consent_records WHERE merchant_id = $1 AND phone_e164 = $2`,
		merchantID, phoneE164)
	rec, err := scanPostgresRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// WithinTx runs fn in a READ COMMITTED transaction; the row lock of FindOrCreate provides isolation per key.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return withinTx(ctx, r.db, func(tx *sql.Tx) Tx {
		return &postgresTx{tx: tx, events: auditrepo.NewPostgresRepository(tx)}
	}, fn)
}

type postgresTx struct {
	tx     *sql.Tx
	events *auditrepo.PostgresRepository
}

func (t *postgresTx) FindOrCreate(ctx context.Context, fresh *domain.ConsentRecord) (*domain.ConsentRecord, bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO consent_records (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (merchant_id, phone_e164) DO NOTHING`,
		fresh.ID, fresh.MerchantID, fresh.PhoneE164, nullString(fresh.CustomerID),
		fresh.MarketingOptIn, fresh.MarketingOptInSource, fresh.TransactionalAllowed, fresh.FullyBlocked,
		fresh.CreatedAt.UTC(), fresh.UpdatedAt.UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert consent record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM consent_records WHERE merchant_id = $1 AND phone_e164 = $2 FOR UPDATE`,
		fresh.MerchantID, fresh.PhoneE164)
	rec, err := scanPostgresRecord(row)
	if err != nil {
		return nil, false, fmt.Errorf("lock consent record: %w", err)
	}
	return rec, n == 1, nil
}

func (t *postgresTx) Update(ctx context.Context, rec *domain.ConsentRecord) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE consent_records SET customer_id = $2, marketing_opt_in = $3, marketing_opt_in_source = $4,
		 transactional_allowed = $5, fully_blocked = $6, updated_at = $7 WHERE id = $1`,
		rec.ID, nullString(rec.CustomerID), rec.MarketingOptIn, rec.MarketingOptInSource,
		rec.TransactionalAllowed, rec.FullyBlocked, rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update consent record: %w", err)
	}
	return expectOneRow(res)
}

func (t *postgresTx) AppendEvent(ctx context.Context, e *auditdomain.ComplianceEvent) error {
	if err := t.events.Create(ctx, e); err != nil {
		return fmt.Errorf("append compliance event: %w", err)
	}
	return nil
}

func scanPostgresRecord(row *sql.Row) (*domain.ConsentRecord, error) {
	var (
		rec                  domain.ConsentRecord
		customerID           sql.NullString
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&rec.ID, &rec.MerchantID, &rec.PhoneE164, &customerID, &rec.MarketingOptIn,
		&rec.MarketingOptInSource, &rec.TransactionalAllowed, &rec.FullyBlocked, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if customerID.Valid {
		rec.CustomerID = &customerID.String
	}
	rec.CreatedAt = createdAt.UTC()
	rec.UpdatedAt = updatedAt.UTC()
	return &rec, nil
}
