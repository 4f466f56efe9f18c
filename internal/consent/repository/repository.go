package repository

import (
	"context"

	auditdomain "github.com/itsfredrick/vayva-platform-sub007/internal/audit/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
)

// Repository defines persistence for consent records. Records are never deleted.
type Repository interface {
	// GetByKey returns the stored record, or nil if none exists. It returns an error
	// only for database failures, not for missing rows.
	GetByKey(ctx context.Context, merchantID, phoneE164 string) (*domain.ConsentRecord, error)
	// WithinTx runs fn in one transaction and commits if fn returns nil. Any error rolls back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the unit of work of one consent update. The record returned by FindOrCreate is
// locked against concurrent updates until the transaction ends.
type Tx interface {
	// FindOrCreate returns the record for (merchantID, phoneE164), inserting fresh when none
	// exists. created reports whether fresh was inserted.
	FindOrCreate(ctx context.Context, fresh *domain.ConsentRecord) (rec *domain.ConsentRecord, created bool, err error)
	// Update writes the mutable fields and updated_at of rec, matched by ID.
	Update(ctx context.Context, rec *domain.ConsentRecord) error
	// AppendEvent inserts the compliance event for this mutation.
	AppendEvent(ctx context.Context, e *auditdomain.ComplianceEvent) error
}
