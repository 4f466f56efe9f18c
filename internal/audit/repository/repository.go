package repository

import (
	"context"
	"time"

	"github.com/itsfredrick/vayva-platform-sub007/internal/audit/domain"
)

// Repository defines persistence for compliance events. There is no update or delete.
type Repository interface {
	// Create appends one event. Use a repository bound to the consent transaction so the
	// event commits with the record it describes.
	Create(ctx context.Context, e *domain.ComplianceEvent) error
	// ListByPhone returns the events of one consent record after the cursor, oldest first.
	ListByPhone(ctx context.Context, merchantID, phoneE164 string, after *domain.Cursor, limit int32) ([]*domain.ComplianceEvent, error)
	// ListByRange returns a merchant's events with from <= createdAt < to after the cursor, oldest first.
	ListByRange(ctx context.Context, merchantID string, from, to time.Time, after *domain.Cursor, limit int32) ([]*domain.ComplianceEvent, error)
}

func metadataOrEmpty(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
