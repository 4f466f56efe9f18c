// Package handler exposes send-time enforcement decisions over HTTP.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/itsfredrick/vayva-platform-sub007/internal/enforcement"
	"github.com/itsfredrick/vayva-platform-sub007/internal/phone"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/middleware"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/respond"
)

// Checker decides whether a send may proceed.
type Checker interface {
	Check(ctx context.Context, req enforcement.SendRequest) (enforcement.Outcome, error)
}

// Handler serves POST /decisions.
type Handler struct {
	checker        Checker
	defaultCountry string
	logger         *zap.Logger
}

// NewHandler returns a decision handler. logger may be nil.
func NewHandler(checker Checker, defaultCountry string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{checker: checker, defaultCountry: defaultCountry, logger: logger}
}

// Routes mounts POST /decisions on r. r must run middleware.Auth.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/decisions", h.decide)
}

type decisionRequest struct {
	Phone      string         `json:"phone"`
	Country    string         `json:"country"`
	Intent     string         `json:"intent"`
	Channel    string         `json:"channel"`
	Attributes map[string]any `json:"attributes"`
}

type decisionResponse struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	PhoneE164 string `json:"phoneE164"`
	PolicyID  string `json:"policyId,omitempty"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	merchantID, _ := middleware.GetMerchantID(r.Context())
	var req decisionRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	country := h.defaultCountry
	if c := strings.TrimSpace(req.Country); c != "" {
		country = strings.ToUpper(c)
	}
	phoneE164, err := phone.Normalize(req.Phone, country)
	if err != nil {
		respond.Err(w, r, h.logger, err)
		return
	}
	out, err := h.checker.Check(r.Context(), enforcement.SendRequest{
		MerchantID: merchantID,
		PhoneE164:  phoneE164,
		Intent:     enforcement.Intent(strings.ToUpper(strings.TrimSpace(req.Intent))),
		Channel:    strings.ToUpper(strings.TrimSpace(req.Channel)),
		Attributes: req.Attributes,
	})
	if err != nil {
		respond.Err(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, decisionResponse{
		Allowed:   out.Allowed,
		Reason:    string(out.Reason),
		PhoneE164: phoneE164,
		PolicyID:  out.PolicyID,
	})
}
