package handler

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/phone"
	"github.com/itsfredrick/vayva-platform-sub007/internal/security"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/middleware"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/respond"
	"github.com/itsfredrick/vayva-platform-sub007/internal/telemetry"
)

// invalidLinkMessage is the only answer to a bad preference token, whatever check failed.
const invalidLinkMessage = "link expired or invalid"

// optInSourcePreferenceCenter is stored as marketingOptInSource when a customer opts in themselves.
const optInSourcePreferenceCenter = "preference_center"

// PreferenceTokenService issues and verifies preference-center tokens.
type PreferenceTokenService interface {
	Issue(merchantID, phoneE164 string, ttl time.Duration) (string, time.Time, error)
	Verify(token string) (*security.PreferenceClaims, error)
}

// PreferenceHandler serves preference link issuance (merchant) and the token-gated preference center (customer).
type PreferenceHandler struct {
	svc            ConsentService
	tokens         PreferenceTokenService
	metrics        *telemetry.Metrics
	baseURL        string
	defaultTTL     time.Duration
	defaultCountry string
	logger         *zap.Logger
}

// NewPreferenceHandler returns a PreferenceHandler. Links point at baseURL?token=<token>.
func NewPreferenceHandler(svc ConsentService, tokens PreferenceTokenService, metrics *telemetry.Metrics,
	baseURL string, defaultTTL time.Duration, defaultCountry string, logger *zap.Logger) *PreferenceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceHandler{
		svc:            svc,
		tokens:         tokens,
		metrics:        metrics,
		baseURL:        baseURL,
		defaultTTL:     defaultTTL,
		defaultCountry: defaultCountry,
		logger:         logger,
	}
}

// MerchantRoutes mounts POST /preference-links. r must run middleware.Auth.
func (h *PreferenceHandler) MerchantRoutes(r chi.Router) {
	r.Post("/preference-links", h.issueLink)
}

// PublicRoutes mounts GET and POST /preferences, authorized only by ?token=.
func (h *PreferenceHandler) PublicRoutes(r chi.Router) {
	r.Get("/preferences", h.getPreferences)
	r.Post("/preferences", h.updatePreferences)
}

type linkRequest struct {
	Phone   string `json:"phone"`
	Country string `json:"country"`
	// TTL is a Go duration string (e.g. "72h"). Empty uses the configured default.
	TTL string `json:"ttl"`
}

type linkResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// preferenceUpdate is what a customer may change. Provenance fields are set by the server.
type preferenceUpdate struct {
	MarketingOptIn       *bool `json:"marketingOptIn"`
	TransactionalAllowed *bool `json:"transactionalAllowed"`
	FullyBlocked         *bool `json:"fullyBlocked"`
}

func (h *PreferenceHandler) issueLink(w http.ResponseWriter, r *http.Request) {
	merchantID, _ := middleware.GetMerchantID(r.Context())
	var req linkRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	country := h.defaultCountry
	if req.Country != "" {
		country = req.Country
	}
	phoneE164, err := phone.Normalize(req.Phone, country)
	if err != nil {
		respond.Err(w, r, h.logger, err)
		return
	}
	ttl := h.defaultTTL
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			respond.Error(w, r, http.StatusBadRequest, "ttl must be a positive duration")
			return
		}
		ttl = d
	}
	token, exp, err := h.tokens.Issue(merchantID, phoneE164, ttl)
	if err != nil {
		respond.Err(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusCreated, linkResponse{
		Token:     token,
		URL:       h.linkURL(token),
		ExpiresAt: exp,
	})
}

func (h *PreferenceHandler) linkURL(token string) string {
	u, err := url.Parse(h.baseURL)
	if err != nil || h.baseURL == "" {
		return "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// verify returns the token claims or writes the generic 401.
func (h *PreferenceHandler) verify(w http.ResponseWriter, r *http.Request) (*security.PreferenceClaims, bool) {
	claims, err := h.tokens.Verify(r.URL.Query().Get("token"))
	h.metrics.TokenVerified(err == nil)
	if err != nil {
		respond.Error(w, r, http.StatusUnauthorized, invalidLinkMessage)
		return nil, false
	}
	return claims, true
}

func (h *PreferenceHandler) getPreferences(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.verify(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Get(r.Context(), claims.MerchantID, claims.PhoneE164)
	if err != nil {
		respond.Err(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, NewConsentView(rec))
}

func (h *PreferenceHandler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.verify(w, r)
	if !ok {
		return
	}
	var req preferenceUpdate
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	patch := domain.Patch{
		MarketingOptIn:       req.MarketingOptIn,
		TransactionalAllowed: req.TransactionalAllowed,
		FullyBlocked:         req.FullyBlocked,
	}
	if req.MarketingOptIn != nil && *req.MarketingOptIn {
		patch.MarketingOptInSource = domain.String(optInSourcePreferenceCenter)
	}
	meta := domain.UpdateMeta{
		Channel: domain.ChannelWeb,
		Source:  domain.SourcePreferenceCenter,
		Actor:   "customer",
		IP:      middleware.ClientIP(r),
	}
	rec, err := h.svc.ApplyUpdate(r.Context(), claims.MerchantID, claims.PhoneE164, patch, meta)
	if err != nil {
		respond.Err(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, NewConsentView(rec))
}
