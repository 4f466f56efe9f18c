package enforcement

import (
	"context"

	"go.uber.org/zap"

	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/logging"
	"github.com/itsfredrick/vayva-platform-sub007/internal/policy/engine"
	"github.com/itsfredrick/vayva-platform-sub007/internal/telemetry"
)

// policyReasonPrefix marks denials that came from a merchant send policy.
const policyReasonPrefix = "policy:"

// SnapshotReader returns the current consent record, materializing the default.
type SnapshotReader interface {
	Get(ctx context.Context, merchantID, phoneE164 string) (*domain.ConsentRecord, error)
}

// PolicyEvaluator applies merchant send policies.
type PolicyEvaluator interface {
	EvaluateSend(ctx context.Context, in engine.SendInput) (engine.Result, error)
}

// SendRequest describes one message about to be dispatched.
type SendRequest struct {
	MerchantID string
	PhoneE164  string
	Intent     Intent
	Channel    string
	Attributes map[string]any
}

// Outcome is a Decision plus where it came from.
type Outcome struct {
	Decision
	PolicyID string
}

// Enforcer reads a fresh consent snapshot, runs Decide, then merchant send policies.
type Enforcer struct {
	consent  SnapshotReader
	policies PolicyEvaluator
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// NewEnforcer returns an Enforcer. policies, metrics and logger may be nil.
func NewEnforcer(consent SnapshotReader, policies PolicyEvaluator, metrics *telemetry.Metrics, logger *zap.Logger) *Enforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enforcer{consent: consent, policies: policies, metrics: metrics, logger: logger}
}

// Check decides whether req may be sent. Consent rules run first and cannot be
// overridden by a send policy. Storage failures are returned as errors; the caller must
// not send in that case.
func (e *Enforcer) Check(ctx context.Context, req SendRequest) (Outcome, error) {
	rec, err := e.consent.Get(ctx, req.MerchantID, req.PhoneE164)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Decision: Decide(req.Intent, rec)}
	if out.Allowed && e.policies != nil {
		res, err := e.policies.EvaluateSend(ctx, engine.SendInput{
			MerchantID: req.MerchantID,
			PhoneE164:  req.PhoneE164,
			Intent:     string(req.Intent),
			Channel:    req.Channel,
			Consent:    rec,
			Attributes: req.Attributes,
		})
		if err != nil {
			e.logger.Warn("enforcement: send policy error, consent decision stands",
				zap.String("merchant_id", req.MerchantID), zap.Error(err))
		} else if !res.Allowed {
			out = Outcome{Decision: deny(DenyReason(policyReasonPrefix + res.Reason)), PolicyID: res.PolicyID}
		}
	}

	e.metrics.Decision(string(req.Intent), out.Allowed, string(out.Reason))
	if !out.Allowed {
		e.logger.Info("enforcement: send denied",
			zap.String("merchant_id", req.MerchantID),
			logging.Phone(req.PhoneE164),
			zap.String("intent", string(req.Intent)),
			zap.String("channel", req.Channel),
			zap.String("reason", string(out.Reason)))
	}
	return out, nil
}
