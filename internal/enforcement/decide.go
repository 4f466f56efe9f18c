// Package enforcement decides at send time whether a message may go out, given its intent
// and the recipient's current consent record.
package enforcement

import (
	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
)

// Intent is the purpose of an outbound message.
type Intent string

const (
	IntentMarketing     Intent = "MARKETING"
	IntentTransactional Intent = "TRANSACTIONAL"
)

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	return i == IntentMarketing || i == IntentTransactional
}

// DenyReason explains a denied send. Empty for allowed sends.
type DenyReason string

const (
	ReasonBlockedAll            DenyReason = "blocked_all"
	ReasonNoMarketingConsent    DenyReason = "no_marketing_consent"
	ReasonTransactionalDisabled DenyReason = "transactional_disabled"
	// ReasonUnknownIntent is returned for an intent outside the known set; such sends fail closed.
	ReasonUnknownIntent DenyReason = "unknown_intent"
)

// Decision is the outcome of Decide. A denial is a normal result, not an error.
type Decision struct {
	Allowed bool       `json:"allowed"`
	Reason  DenyReason `json:"reason,omitempty"`
}

var allow = Decision{Allowed: true}

func deny(r DenyReason) Decision { return Decision{Reason: r} }

// stateKey is one row of the decision table.
type stateKey struct {
	intent               Intent
	fullyBlocked         bool
	marketingOptIn       bool
	transactionalAllowed bool
}

// decisionTable lists every (intent, fullyBlocked, marketingOptIn, transactionalAllowed)
// combination. fullyBlocked denies regardless of the other flags.
var decisionTable = map[stateKey]Decision{
	{IntentMarketing, true, false, false}: deny(ReasonBlockedAll),
	{IntentMarketing, true, false, true}:  deny(ReasonBlockedAll),
	{IntentMarketing, true, true, false}:  deny(ReasonBlockedAll),
	{IntentMarketing, true, true, true}:   deny(ReasonBlockedAll),

	{IntentMarketing, false, false, false}: deny(ReasonNoMarketingConsent),
	{IntentMarketing, false, false, true}:  deny(ReasonNoMarketingConsent),
	{IntentMarketing, false, true, false}:  allow,
	{IntentMarketing, false, true, true}:   allow,

	{IntentTransactional, true, false, false}: deny(ReasonBlockedAll),
	{IntentTransactional, true, false, true}:  deny(ReasonBlockedAll),
	{IntentTransactional, true, true, false}:  deny(ReasonBlockedAll),
	{IntentTransactional, true, true, true}:   deny(ReasonBlockedAll),

	{IntentTransactional, false, false, false}: deny(ReasonTransactionalDisabled),
	{IntentTransactional, false, false, true}:  allow,
	{IntentTransactional, false, true, false}:  deny(ReasonTransactionalDisabled),
	{IntentTransactional, false, true, true}:   allow,
}

// Decide returns whether a message with intent may be sent to the holder of consent.
// Call it immediately before dispatch with a fresh record. A nil record is treated as
// the default consent state.
func Decide(intent Intent, consent *domain.ConsentRecord) Decision {
	if consent == nil {
		consent = domain.DefaultRecord("", "")
	}
	d, ok := decisionTable[stateKey{
		intent:               intent,
		fullyBlocked:         consent.FullyBlocked,
		marketingOptIn:       consent.MarketingOptIn,
		transactionalAllowed: consent.TransactionalAllowed,
	}]
	if !ok {
		return deny(ReasonUnknownIntent)
	}
	return d
}
