package audit

import (
	"encoding/json"

	consentdomain "github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
)

// EventMetadata is the JSON stored in ComplianceEvent.Metadata: the patch as received
// plus the optional free-text reason and caller details.
type EventMetadata struct {
	Patch  consentdomain.Patch `json:"patch"`
	Reason string              `json:"reason,omitempty"`
	Actor  string              `json:"actor,omitempty"`
	IP     string              `json:"ip,omitempty"`
}

// BuildMetadata encodes the patch and update meta into event metadata JSON.
func BuildMetadata(patch consentdomain.Patch, meta consentdomain.UpdateMeta) (json.RawMessage, error) {
	b, err := json.Marshal(EventMetadata{Patch: patch, Reason: meta.Reason, Actor: meta.Actor, IP: meta.IP})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// ParseMetadata decodes event metadata. Empty input yields zero metadata.
func ParseMetadata(raw json.RawMessage) (EventMetadata, error) {
	var m EventMetadata
	if len(raw) == 0 {
		return m, nil
	}
	err := json.Unmarshal(raw, &m)
	return m, err
}
