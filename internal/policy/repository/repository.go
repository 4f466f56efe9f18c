package repository

import (
	"context"

	"github.com/itsfredrick/vayva-platform-sub007/internal/policy/domain"
)

// Repository defines persistence for merchant send policies.
type Repository interface {
	// GetByID returns the policy, or nil if it does not exist for the merchant.
	GetByID(ctx context.Context, merchantID, id string) (*domain.SendPolicy, error)
	ListByMerchant(ctx context.Context, merchantID string) ([]*domain.SendPolicy, error)
	ListEnabledByMerchant(ctx context.Context, merchantID string) ([]*domain.SendPolicy, error)
	Create(ctx context.Context, p *domain.SendPolicy) error
	Update(ctx context.Context, p *domain.SendPolicy) error
}

const policyColumns = `id, merchant_id, name, rules, enabled, created_at, updated_at`
