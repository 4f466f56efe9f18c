// Package handler serves merchant send policy management over HTTP.
package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	consentdomain "github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/policy/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/policy/engine"
	"github.com/itsfredrick/vayva-platform-sub007/internal/policy/repository"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/middleware"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/respond"
)

// RulesValidator compiles Rego rules before they are stored.
type RulesValidator interface {
	ValidateRules(rules string) error
}

// Handler serves /send-policies. Rules are compiled on create and update; invalid Rego is a 400.
type Handler struct {
	repo      repository.Repository
	validator RulesValidator
	logger    *zap.Logger
	nowF      func() time.Time
}

// NewHandler returns a send policy handler. logger may be nil.
func NewHandler(repo repository.Repository, validator RulesValidator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, validator: validator, logger: logger, nowF: time.Now}
}

// Routes mounts the send policy endpoints on r. r must run middleware.Auth.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/send-policies", h.list)
	r.Post("/send-policies", h.create)
	r.Get("/send-policies/{id}", h.get)
	r.Patch("/send-policies/{id}", h.update)
}

type createRequest struct {
	Name    string `json:"name"`
	Rules   string `json:"rules"`
	Enabled *bool  `json:"enabled"`
}

type updateRequest struct {
	Name    *string `json:"name"`
	Rules   *string `json:"rules"`
	Enabled *bool   `json:"enabled"`
}

type listResponse struct {
	Policies []*domain.SendPolicy `json:"policies"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	merchantID, _ := middleware.GetMerchantID(r.Context())
	policies, err := h.repo.ListByMerchant(r.Context(), merchantID)
	if err != nil {
		h.storageErr(w, r, err)
		return
	}
	if policies == nil {
		policies = []*domain.SendPolicy{}
	}
	respond.JSON(w, r, http.StatusOK, listResponse{Policies: policies})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	merchantID, _ := middleware.GetMerchantID(r.Context())
	p, err := h.repo.GetByID(r.Context(), merchantID, chi.URLParam(r, "id"))
	if err != nil {
		h.storageErr(w, r, err)
		return
	}
	if p == nil {
		respond.Error(w, r, http.StatusNotFound, "send policy not found")
		return
	}
	respond.JSON(w, r, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	merchantID, _ := middleware.GetMerchantID(r.Context())
	var req createRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respond.Error(w, r, http.StatusBadRequest, "name is required")
		return
	}
	if !h.validRules(w, r, req.Rules) {
		return
	}
	now := h.nowF().UTC().Truncate(time.Millisecond)
	p := &domain.SendPolicy{
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		Name:       name,
		Rules:      req.Rules,
		Enabled:    req.Enabled == nil || *req.Enabled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.repo.Create(r.Context(), p); err != nil {
		h.storageErr(w, r, err)
		return
	}
	h.logger.Info("send policy created", zap.String("merchant_id", merchantID), zap.String("policy_id", p.ID))
	respond.JSON(w, r, http.StatusCreated, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	merchantID, _ := middleware.GetMerchantID(r.Context())
	var req updateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p, err := h.repo.GetByID(r.Context(), merchantID, chi.URLParam(r, "id"))
	if err != nil {
		h.storageErr(w, r, err)
		return
	}
	if p == nil {
		respond.Error(w, r, http.StatusNotFound, "send policy not found")
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			respond.Error(w, r, http.StatusBadRequest, "name must not be empty")
			return
		}
		p.Name = name
	}
	if req.Rules != nil {
		if !h.validRules(w, r, *req.Rules) {
			return
		}
		p.Rules = *req.Rules
	}
	if req.Enabled != nil {
		p.Enabled = *req.Enabled
	}
	p.UpdatedAt = h.nowF().UTC().Truncate(time.Millisecond)
	if err := h.repo.Update(r.Context(), p); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respond.Error(w, r, http.StatusNotFound, "send policy not found")
			return
		}
		h.storageErr(w, r, err)
		return
	}
	h.logger.Info("send policy updated", zap.String("merchant_id", merchantID), zap.String("policy_id", p.ID))
	respond.JSON(w, r, http.StatusOK, p)
}

func (h *Handler) validRules(w http.ResponseWriter, r *http.Request, rules string) bool {
	if err := h.validator.ValidateRules(rules); err != nil {
		msg := "invalid rules"
		if errors.Is(err, engine.ErrInvalidRules) {
			msg = err.Error()
		}
		respond.Error(w, r, http.StatusBadRequest, msg)
		return false
	}
	return true
}

func (h *Handler) storageErr(w http.ResponseWriter, r *http.Request, err error) {
	respond.Err(w, r, h.logger, errors.Join(consentdomain.ErrStorageUnavailable, err))
}

var _ RulesValidator = (*engine.OPAEvaluator)(nil)

