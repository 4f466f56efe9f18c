package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/itsfredrick/vayva-platform-sub007/internal/db"
	"github.com/itsfredrick/vayva-platform-sub007/internal/policy/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a send policy repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the policy for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, merchantID, id string) (*domain.SendPolicy, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM send_policies WHERE merchant_id = $1 AND id::text = $2`,
		merchantID, id)
	var p domain.SendPolicy
	err := row.Scan(&p.ID, &p.MerchantID, &p.Name, &p.Rules, &p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) ListByMerchant(ctx context.Context, merchantID string) ([]*domain.SendPolicy, error) {
	return r.list(ctx, `SELECT `+policyColumns+` FROM send_policies
		WHERE merchant_id = $1 ORDER BY created_at, id`, merchantID)
}

func (r *PostgresRepository) ListEnabledByMerchant(ctx context.Context, merchantID string) ([]*domain.SendPolicy, error) {
	return r.list(ctx, `SELECT `+policyColumns+` FROM send_policies
		WHERE merchant_id = $1 AND enabled ORDER BY created_at, id`, merchantID)
}

func (r *PostgresRepository) list(ctx context.Context, query, merchantID string) ([]*domain.SendPolicy, error) {
	rows, err := r.db.QueryContext(ctx, query, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.SendPolicy
	for rows.Next() {
		var p domain.SendPolicy
		if err := rows.Scan(&p.ID, &p.MerchantID, &p.Name, &p.Rules, &p.Enabled, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Create persists the policy. The policy must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.SendPolicy) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO send_policies (`+policyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.MerchantID, p.Name, p.Rules, p.Enabled, p.CreatedAt, p.UpdatedAt)
	return err
}

// Update overwrites name, rules and enabled. Returns domain.ErrNotFound if no row matched.
func (r *PostgresRepository) Update(ctx context.Context, p *domain.SendPolicy) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE send_policies SET name = $3, rules = $4, enabled = $5, updated_at = $6
		 WHERE merchant_id = $1 AND id::text = $2`,
		p.MerchantID, p.ID, p.Name, p.Rules, p.Enabled, p.UpdatedAt)
	if err != nil {
		return err
	}
	return expectUpdated(res)
}

func expectUpdated(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
