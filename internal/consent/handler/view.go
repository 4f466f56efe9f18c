package handler

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/phone"
)

// ConsentView is the JSON shape of a consent record.
type ConsentView struct {
	MerchantID           string     `json:"merchantId"`
	PhoneE164            string     `json:"phoneE164"`
	CustomerID           *string    `json:"customerId"`
	MarketingOptIn       bool       `json:"marketingOptIn"`
	MarketingOptInSource string     `json:"marketingOptInSource"`
	TransactionalAllowed bool       `json:"transactionalAllowed"`
	FullyBlocked         bool       `json:"fullyBlocked"`
	Persisted            bool       `json:"persisted"`
	CreatedAt            *time.Time `json:"createdAt,omitempty"`
	UpdatedAt            *time.Time `json:"updatedAt,omitempty"`
}

// NewConsentView converts a record. Timestamps are omitted for the unpersisted default.
func NewConsentView(r *domain.ConsentRecord) ConsentView {
	v := ConsentView{
		MerchantID:           r.MerchantID,
		PhoneE164:            r.PhoneE164,
		CustomerID:           r.CustomerID,
		MarketingOptIn:       r.MarketingOptIn,
		MarketingOptInSource: r.MarketingOptInSource,
		TransactionalAllowed: r.TransactionalAllowed,
		FullyBlocked:         r.FullyBlocked,
		Persisted:            r.Persisted(),
	}
	if v.Persisted {
		created, updated := r.CreatedAt, r.UpdatedAt
		v.CreatedAt, v.UpdatedAt = &created, &updated
	}
	return v
}

// PhoneParam normalizes the {phone} URL parameter using the ?country= hint or defaultCountry.
func PhoneParam(r *http.Request, defaultCountry string) (string, error) {
	raw := chi.URLParam(r, "phone")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	return phone.Normalize(raw, CountryHint(r, defaultCountry))
}

// CountryHint returns the ?country= query value, or defaultCountry.
func CountryHint(r *http.Request, defaultCountry string) string {
	if c := strings.TrimSpace(r.URL.Query().Get("country")); c != "" {
		return strings.ToUpper(c)
	}
	return defaultCountry
}
