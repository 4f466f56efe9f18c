package repository

import (
	"context"
	"database/sql"

	"github.com/itsfredrick/vayva-platform-sub007/internal/db"
	"github.com/itsfredrick/vayva-platform-sub007/internal/policy/domain"
)

// SQLiteRepository stores send policies in SQLite. Timestamps are Unix milliseconds.
type SQLiteRepository struct {
	db db.DBTX
}

func NewSQLiteRepository(conn db.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: conn}
}

func (r *SQLiteRepository) GetByID(ctx context.Context, merchantID, id string) (*domain.SendPolicy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+policyColumns+` FROM send_policies WHERE merchant_id = ? AND id = ?`,
		merchantID, id)
	if err != nil {
		return nil, err
	}
	list, err := scanSQLitePolicies(rows)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (r *SQLiteRepository) ListByMerchant(ctx context.Context, merchantID string) ([]*domain.SendPolicy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+policyColumns+` FROM send_policies WHERE merchant_id = ? ORDER BY created_at, id`,
		merchantID)
	if err != nil {
		return nil, err
	}
	return scanSQLitePolicies(rows)
}

func (r *SQLiteRepository) ListEnabledByMerchant(ctx context.Context, merchantID string) ([]*domain.SendPolicy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+policyColumns+` FROM send_policies WHERE merchant_id = ? AND enabled = 1 ORDER BY created_at, id`,
		merchantID)
	if err != nil {
		return nil, err
	}
	return scanSQLitePolicies(rows)
}

func (r *SQLiteRepository) Create(ctx context.Context, p *domain.SendPolicy) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO send_policies (`+policyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MerchantID, p.Name, p.Rules, boolToInt(p.Enabled), db.ToMillis(p.CreatedAt), db.ToMillis(p.UpdatedAt))
	return err
}

func (r *SQLiteRepository) Update(ctx context.Context, p *domain.SendPolicy) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE send_policies SET name = ?, rules = ?, enabled = ?, updated_at = ?
		 WHERE merchant_id = ? AND id = ?`,
		p.Name, p.Rules, boolToInt(p.Enabled), db.ToMillis(p.UpdatedAt), p.MerchantID, p.ID)
	if err != nil {
		return err
	}
	return expectUpdated(res)
}

func scanSQLitePolicies(rows *sql.Rows) ([]*domain.SendPolicy, error) {
	defer rows.Close()
	var out []*domain.SendPolicy
	for rows.Next() {
		var (
			p                    domain.SendPolicy
			enabled              int64
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&p.ID, &p.MerchantID, &p.Name, &p.Rules, &enabled, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.Enabled = enabled != 0
		p.CreatedAt = db.FromMillis(createdAt)
		p.UpdatedAt = db.FromMillis(updatedAt)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

