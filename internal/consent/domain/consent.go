package domain

import (
	"errors"
	"time"
)

// DefaultOptInSource is the marketing opt-in provenance of a record nobody has set.
const DefaultOptInSource = "unknown"

var (
	// ErrStorageUnavailable marks a transient storage failure; callers retry with backoff.
	// The underlying driver error is wrapped alongside it.
	ErrStorageUnavailable = errors.New("consent: storage unavailable")
	// ErrInvalidInput is returned for a missing merchant id, a phone that is not E.164,
	// or an unknown channel or source.
	ErrInvalidInput = errors.New("consent: invalid input")
)

// ConsentRecord is the consent state of one phone number for one merchant.
// (MerchantID, PhoneE164) is unique.
type ConsentRecord struct {
	ID                   string
	MerchantID           string
	PhoneE164            string
	CustomerID           *string
	MarketingOptIn       bool
	MarketingOptInSource string
	TransactionalAllowed bool
	FullyBlocked         bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// DefaultRecord returns the state a never-written key has: no marketing, transactional
// allowed, not blocked. It has no ID and is not persisted.
func DefaultRecord(merchantID, phoneE164 string) *ConsentRecord {
	return &ConsentRecord{
		MerchantID:           merchantID,
		PhoneE164:            phoneE164,
		MarketingOptIn:       false,
		MarketingOptInSource: DefaultOptInSource,
		TransactionalAllowed: true,
		FullyBlocked:         false,
	}
}

// Persisted reports whether the record has been stored.
func (r *ConsentRecord) Persisted() bool {
	return r != nil && r.ID != ""
}
