// seed inserts development sample data for local testing: a quiet-hours send policy and a
// consent record for a sample customer, then prints a preference link and, when
// JWT_PRIVATE_KEY is set, a merchant bearer token. Idempotent: the policy is skipped if the
// dev merchant already has one with the same name.
package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/itsfredrick/vayva-platform-sub007/internal/app"
	"github.com/itsfredrick/vayva-platform-sub007/internal/config"
	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/service"
	"github.com/itsfredrick/vayva-platform-sub007/internal/phone"
	policydomain "github.com/itsfredrick/vayva-platform-sub007/internal/policy/domain"
	policyengine "github.com/itsfredrick/vayva-platform-sub007/internal/policy/engine"
	"github.com/itsfredrick/vayva-platform-sub007/internal/security"
)

// quietHoursPolicy denies marketing sends between 21:00 and 07:00 UTC.
const quietHoursPolicy = `package consent.send_policy

default allow := true

default reason := ""

quiet if input.hour_utc >= 21

quiet if input.hour_utc < 7

allow := false if {
	input.intent == "MARKETING"
	quiet
}

reason := "quiet_hours" if {
	input.intent == "MARKETING"
	quiet
}
`

const (
	devMerchantID    = "dev-merchant-001"
	devPolicyID      = "00000000-0000-4000-8000-000000000001"
	devPolicyName    = "Quiet hours"
	devCustomerID    = "dev-customer-001"
	devCustomerPhone = "08012345678"
	devSubject       = "dev-user-001"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	stores, err := app.OpenStores(cfg)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer stores.Close()
	ctx := context.Background()

	evaluator := policyengine.NewOPAEvaluator(stores.Policies, nil)
	if err := evaluator.ValidateRules(quietHoursPolicy); err != nil {
		log.Fatalf("seed policy: %v", err)
	}
	existing, err := stores.Policies.ListByMerchant(ctx, devMerchantID)
	if err != nil {
		log.Fatalf("list policies: %v", err)
	}
	if hasPolicy(existing, devPolicyName) {
		log.Println("Send policy already seeded. Skipping.")
	} else {
		now := time.Now().UTC().Truncate(time.Millisecond)
		if err := stores.Policies.Create(ctx, &policydomain.SendPolicy{
			ID:         devPolicyID,
			MerchantID: devMerchantID,
			Name:       devPolicyName,
			Rules:      quietHoursPolicy,
			Enabled:    true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			log.Fatalf("create policy: %v", err)
		}
	}

	phoneE164, err := phone.Normalize(devCustomerPhone, cfg.DefaultCountry)
	if err != nil {
		log.Fatalf("normalize: %v", err)
	}
	consent := service.NewEngine(stores.Consent)
	rec, err := consent.ApplyUpdate(ctx, devMerchantID, phoneE164, domain.Patch{
		MarketingOptIn:       domain.Bool(true),
		MarketingOptInSource: domain.String("seed"),
		CustomerID:           domain.String(devCustomerID),
	}, domain.UpdateMeta{Channel: domain.ChannelAPI, Source: domain.SourceSystem, Reason: "dev seed"})
	if err != nil {
		log.Fatalf("seed consent: %v", err)
	}

	prefTokens, err := security.NewPreferenceTokens(cfg.PreferenceTokenSecret, cfg.PreviousTokenSecrets()...)
	if err != nil {
		log.Fatalf("preference tokens: %v", err)
	}
	token, exp, err := prefTokens.Issue(devMerchantID, rec.PhoneE164, cfg.TokenTTL())
	if err != nil {
		log.Fatalf("issue preference token: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Merchant: %s\n", devMerchantID)
	fmt.Printf("Customer: %s (%s), marketing opt-in %v\n", devCustomerPhone, rec.PhoneE164, rec.MarketingOptIn)
	fmt.Printf("Preference link (expires %s): %s\n", exp.Format(time.RFC3339), withToken(cfg.PreferenceBaseURL, token))

	if cfg.JWTPrivateKey == "" {
		fmt.Println("JWT_PRIVATE_KEY not set; no merchant token minted.")
		return
	}
	priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt private key: %v", err)
	}
	merchantTokens := security.NewMerchantTokens(priv, priv.Public(), cfg.JWTIssuer, cfg.JWTAudience)
	bearer, bearerExp, err := merchantTokens.Issue(devMerchantID, devSubject, 24*time.Hour)
	if err != nil {
		log.Fatalf("issue merchant token: %v", err)
	}
	fmt.Printf("Merchant token (expires %s):\n%s\n", bearerExp.Format(time.RFC3339), bearer)
}

func hasPolicy(policies []*policydomain.SendPolicy, name string) bool {
	for _, p := range policies {
		if p.Name == name {
			return true
		}
	}
	return false
}

func withToken(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
