// Package engine evaluates merchant send policies written in Rego.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	consentdomain "github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/policy/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/policy/repository"
)

const (
	// PolicyPackage is the Rego package every send policy must declare.
	PolicyPackage = "consent.send_policy"

	policyQuery   = "data." + PolicyPackage
	defaultReason = "denied"
)

// DefaultPolicy allows every send. It is evaluated when a merchant has no enabled policies.
const DefaultPolicy = `package consent.send_policy

default allow := true

default reason := ""
`

// ErrInvalidRules is returned by ValidateRules when a module does not parse, compile or
// declare the expected package.
var ErrInvalidRules = errors.New("invalid send policy rules")

// SendInput is what a send policy sees as input.
type SendInput struct {
	MerchantID string
	PhoneE164  string
	Intent     string
	Channel    string
	Consent    *consentdomain.ConsentRecord
	Attributes map[string]any
}

// Result is the outcome of send policy evaluation. Reason is set only when Allowed is false.
type Result struct {
	Allowed  bool
	Reason   string
	PolicyID string
}

// OPAEvaluator evaluates merchant send policies with OPA Rego.
// Evaluation failures allow the send: consent rules are enforced before this point.
type OPAEvaluator struct {
	policyRepo repository.Repository
	logger     *zap.Logger
	tracer     trace.Tracer
	nowF       func() time.Time
}

// NewOPAEvaluator returns an OPA-based send policy evaluator. logger may be nil.
func NewOPAEvaluator(policyRepo repository.Repository, logger *zap.Logger) *OPAEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OPAEvaluator{
		policyRepo: policyRepo,
		logger:     logger,
		tracer:     otel.Tracer("consent/policy"),
		nowF:       time.Now,
	}
}

// HealthCheck verifies that the in-process OPA engine can compile and evaluate the default policy.
// Does not call the policy repo or database.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	res, err := e.evaluate(ctx, DefaultPolicy, e.buildInput(SendInput{Intent: "TRANSACTIONAL"}))
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if !res.Allowed {
		return errors.New("default policy denied")
	}
	return nil
}

// ValidateRules parses and compiles rules and checks the package name.
func (e *OPAEvaluator) ValidateRules(rules string) error {
	mod, err := ast.ParseModule("policy.rego", rules)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if mod == nil {
		return fmt.Errorf("%w: empty module", ErrInvalidRules)
	}
	if got := mod.Package.Path.String(); got != policyQuery {
		return fmt.Errorf("%w: package must be %s, got %s", ErrInvalidRules, PolicyPackage, strings.TrimPrefix(got, "data."))
	}
	if _, err := ast.CompileModules(map[string]string{"policy.rego": rules}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	return nil
}

// EvaluateSend runs every enabled policy of the merchant. The first policy that denies
// decides the result. No enabled policies means the default policy applies.
func (e *OPAEvaluator) EvaluateSend(ctx context.Context, in SendInput) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "policy.EvaluateSend",
		trace.WithAttributes(attribute.String("merchant_id", in.MerchantID), attribute.String("intent", in.Intent)))
	defer span.End()

	allow := Result{Allowed: true}
	policies, err := e.policyRepo.ListEnabledByMerchant(ctx, in.MerchantID)
	if err != nil {
		e.logger.Warn("send policy: load failed, allowing", zap.String("merchant_id", in.MerchantID), zap.Error(err))
		return allow, nil
	}
	if len(policies) == 0 {
		policies = []*domain.SendPolicy{{ID: "default", Rules: DefaultPolicy, Enabled: true}}
	}

	input := e.buildInput(in)
	for _, p := range policies {
		if !p.Enabled || p.Rules == "" {
			continue
		}
		res, err := e.evaluate(ctx, p.Rules, input)
		if err != nil {
			e.logger.Warn("send policy: evaluation failed, skipping",
				zap.String("merchant_id", in.MerchantID), zap.String("policy_id", p.ID), zap.Error(err))
			continue
		}
		if !res.Allowed {
			res.PolicyID = p.ID
			span.SetAttributes(attribute.String("policy_id", p.ID), attribute.String("reason", res.Reason))
			return res, nil
		}
	}
	return allow, nil
}

func (e *OPAEvaluator) buildInput(in SendInput) map[string]interface{} {
	now := e.nowF().UTC()
	consent := in.Consent
	if consent == nil {
		consent = consentdomain.DefaultRecord(in.MerchantID, in.PhoneE164)
	}
	attrs := in.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	return map[string]interface{}{
		"merchant_id": in.MerchantID,
		"phone":       in.PhoneE164,
		"intent":      in.Intent,
		"channel":     in.Channel,
		"consent": map[string]interface{}{
			"marketing_opt_in":        consent.MarketingOptIn,
			"marketing_opt_in_source": consent.MarketingOptInSource,
			"transactional_allowed":   consent.TransactionalAllowed,
			"fully_blocked":           consent.FullyBlocked,
			"persisted":               consent.Persisted(),
		},
		"now":        now.Format(time.RFC3339),
		"hour_utc":   now.Hour(),
		"weekday":    now.Weekday().String(),
		"attributes": attrs,
	}
}

func (e *OPAEvaluator) evaluate(ctx context.Context, rules string, input map[string]interface{}) (Result, error) {
	compiler, err := ast.CompileModules(map[string]string{"policy.rego": rules})
	if err != nil {
		return Result{}, fmt.Errorf("compile policy: %w", err)
	}
	rs, err := rego.New(
		rego.Query(policyQuery),
		rego.Compiler(compiler),
		rego.Input(input),
	).Eval(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Result{}, errors.New("policy query returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Result{}, fmt.Errorf("policy document has type %T", rs[0].Expressions[0].Value)
	}

	out := Result{Allowed: true}
	if v, ok := doc["allow"]; ok {
		b, ok := v.(bool)
		if !ok {
			return Result{}, fmt.Errorf("allow has type %T, want bool", v)
		}
		out.Allowed = b
	}
	if out.Allowed {
		return out, nil
	}
	out.Reason = defaultReason
	if r, ok := doc["reason"].(string); ok && r != "" {
		out.Reason = r
	}
	return out, nil
}
