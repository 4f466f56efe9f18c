// Package handler exposes consent records over HTTP for merchants and the preference center.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/middleware"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/respond"
)

// ConsentService reads and updates consent records.
type ConsentService interface {
	Get(ctx context.Context, merchantID, phoneE164 string) (*domain.ConsentRecord, error)
	ApplyUpdate(ctx context.Context, merchantID, phoneE164 string, patch domain.Patch, meta domain.UpdateMeta) (*domain.ConsentRecord, error)
}

// Handler serves the merchant consent endpoints.
type Handler struct {
	svc            ConsentService
	defaultCountry string
	logger         *zap.Logger
}

// NewHandler returns a merchant consent handler. logger may be nil.
func NewHandler(svc ConsentService, defaultCountry string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, defaultCountry: defaultCountry, logger: logger}
}

// Routes mounts GET and PATCH /consents/{phone} on r. r must run middleware.Auth.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/consents/{phone}", h.get)
	r.Patch("/consents/{phone}", h.patch)
}

// updateRequest is the PATCH body: the consent patch plus optional audit details.
type updateRequest struct {
	domain.Patch
	Channel string `json:"channel"`
	Reason  string `json:"reason"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	merchantID, _ := middleware.GetMerchantID(r.Context())
	phoneE164, err := PhoneParam(r, h.defaultCountry)
	if err != nil {
		respond.Err(w, r, h.logger, err)
		return
	}
	rec, err := h.svc.Get(r.Context(), merchantID, phoneE164)
	if err != nil {
		respond.Err(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, NewConsentView(rec))
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	merchantID, _ := middleware.GetMerchantID(r.Context())
	phoneE164, err := PhoneParam(r, h.defaultCountry)
	if err != nil {
		respond.Err(w, r, h.logger, err)
		return
	}
	var req updateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Patch.Empty() {
		respond.Error(w, r, http.StatusBadRequest, "patch must set at least one field")
		return
	}
	channel := domain.ChannelWeb
	if req.Channel != "" {
		channel = domain.Channel(req.Channel)
	}
	actor, _ := middleware.GetSubject(r.Context())
	meta := domain.UpdateMeta{
		Channel: channel,
		Source:  domain.SourceMerchantDashboard,
		Reason:  req.Reason,
		Actor:   actor,
		IP:      middleware.ClientIP(r),
	}
	rec, err := h.svc.ApplyUpdate(r.Context(), merchantID, phoneE164, req.Patch, meta)
	if err != nil {
		respond.Err(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, NewConsentView(rec))
}
