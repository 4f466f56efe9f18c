package service

import (
	auditdomain "github.com/itsfredrick/vayva-platform-sub007/internal/audit/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
)

// eventRule maps a patch, given the record before it is applied, to an event type.
type eventRule struct {
	eventType auditdomain.EventType
	applies   func(p domain.Patch, before *domain.ConsentRecord) bool
}

// eventRules is evaluated in order; the first rule that applies names the event.
var eventRules = []eventRule{
	{auditdomain.EventBlockAll, func(p domain.Patch, _ *domain.ConsentRecord) bool {
		return isTrue(p.FullyBlocked)
	}},
	{auditdomain.EventUnblock, func(p domain.Patch, before *domain.ConsentRecord) bool {
		return isFalse(p.FullyBlocked) && before.FullyBlocked
	}},
	{auditdomain.EventOptIn, func(p domain.Patch, _ *domain.ConsentRecord) bool {
		return isTrue(p.MarketingOptIn)
	}},
	{auditdomain.EventOptOut, func(p domain.Patch, _ *domain.ConsentRecord) bool {
		return isFalse(p.MarketingOptIn)
	}},
	{auditdomain.EventTransactionalOn, func(p domain.Patch, _ *domain.ConsentRecord) bool {
		return isTrue(p.TransactionalAllowed)
	}},
	{auditdomain.EventTransactionalOff, func(p domain.Patch, _ *domain.ConsentRecord) bool {
		return isFalse(p.TransactionalAllowed)
	}},
}

// DeriveEventType returns the event type of applying p to before. A patch no rule
// matches yields EventNoOp.
func DeriveEventType(p domain.Patch, before *domain.ConsentRecord) auditdomain.EventType {
	for _, r := range eventRules {
		if r.applies(p, before) {
			return r.eventType
		}
	}
	return auditdomain.EventNoOp
}

func isTrue(b *bool) bool  { return b != nil && *b }
func isFalse(b *bool) bool { return b != nil && !*b }
