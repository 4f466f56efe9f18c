package domain

import (
	"encoding/json"
	"time"
)

// EventType is the kind of consent change a compliance event records.
type EventType string

const (
	EventOptIn            EventType = "OPT_IN"
	EventOptOut           EventType = "OPT_OUT"
	EventBlockAll         EventType = "BLOCK_ALL"
	EventUnblock          EventType = "UNBLOCK"
	EventTransactionalOn  EventType = "TRANSACTIONAL_ON"
	EventTransactionalOff EventType = "TRANSACTIONAL_OFF"
	// EventNoOp records an update whose patch set none of the consent flags.
	EventNoOp EventType = "NO_OP"
)

// ComplianceEvent is an immutable audit entry for one consent mutation. CreatedAt equals
// the UpdatedAt of the record it describes.
type ComplianceEvent struct {
	ID         string          `json:"id"`
	MerchantID string          `json:"merchantId"`
	PhoneE164  string          `json:"phoneE164"`
	EventType  EventType       `json:"eventType"`
	Channel    string          `json:"channel"`
	Source     string          `json:"source"`
	Metadata   json.RawMessage `json:"metadata"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Cursor is the position of the last event of a page. Listing resumes strictly after it
// in (CreatedAt, ID) order. A nil cursor starts from the first event.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}
