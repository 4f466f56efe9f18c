// Package handler receives inbound customer messages from messaging providers over HTTP.
package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/itsfredrick/vayva-platform-sub007/internal/inbound"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/respond"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

// MessageHandler handles one inbound message. Implemented by *inbound.KeywordHandler.
type MessageHandler interface {
	Handle(ctx context.Context, msg inbound.Message) (inbound.Outcome, error)
}

// Handler serves the inbound message webhook.
type Handler struct {
	messages MessageHandler
	secret   []byte
	logger   *zap.Logger
}

// NewHandler returns a webhook handler. With an empty secret every request is refused.
func NewHandler(messages MessageHandler, secret string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if secret == "" {
		logger.Warn("inbound: webhook secret not set; POST /inbound/messages will reject all requests")
	}
	return &Handler{messages: messages, secret: []byte(secret), logger: logger}
}

// Routes mounts POST /inbound/messages on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/inbound/messages", h.receive)
}

type receiveResponse struct {
	Outcome inbound.Outcome `json:"outcome"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		respond.Error(w, r, http.StatusUnauthorized, "invalid webhook secret")
		return
	}
	var msg inbound.Message
	if err := respond.Decode(r, &msg); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	outcome, err := h.messages.Handle(r.Context(), msg)
	if err != nil {
		respond.Err(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, receiveResponse{Outcome: outcome})
}

func (h *Handler) authorized(r *http.Request) bool {
	if len(h.secret) == 0 {
		return false
	}
	got := []byte(r.Header.Get(SecretHeader))
	return subtle.ConstantTimeCompare(got, h.secret) == 1
}
