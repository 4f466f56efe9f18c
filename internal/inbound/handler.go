package inbound

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/logging"
	"github.com/itsfredrick/vayva-platform-sub007/internal/phone"
	"github.com/itsfredrick/vayva-platform-sub007/internal/telemetry"
)

// Outcome is what happened to one inbound message.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Message is a customer reply delivered by a messaging provider.
type Message struct {
	// ID is the provider message id; it keys de-duplication and may be empty.
	ID         string    `json:"id"`
	MerchantID string    `json:"merchantId"`
	From       string    `json:"from"`
	Country    string    `json:"country,omitempty"`
	Channel    string    `json:"channel"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"receivedAt,omitempty"`
}

// ConsentUpdater applies a consent change. Implemented by the consent service engine.
type ConsentUpdater interface {
	ApplyUpdate(ctx context.Context, merchantID, phoneE164 string, patch domain.Patch, meta domain.UpdateMeta) (*domain.ConsentRecord, error)
}

// KeywordHandler applies keyword replies to consent state.
type KeywordHandler struct {
	consent        ConsentUpdater
	dedupe         Deduper
	metrics        *telemetry.Metrics
	defaultCountry string
	logger         *zap.Logger
}

// NewKeywordHandler returns a handler writing through consent. dedupe and metrics may be nil.
func NewKeywordHandler(consent ConsentUpdater, dedupe Deduper, metrics *telemetry.Metrics, defaultCountry string, logger *zap.Logger) *KeywordHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeywordHandler{
		consent:        consent,
		dedupe:         dedupe,
		metrics:        metrics,
		defaultCountry: defaultCountry,
		logger:         logger,
	}
}

// Handle applies msg if its body is a keyword. Messages that are not keywords are ignored,
// and a message id already handled within the dedupe window is reported as a duplicate.
// Errors are domain.ErrInvalidInput, phone.ErrNotNormalizable or a storage failure; on a
// storage failure the message id is released so a redelivery is applied.
func (h *KeywordHandler) Handle(ctx context.Context, msg Message) (Outcome, error) {
	outcome, err := h.handle(ctx, msg)
	h.metrics.InboundMessage(string(outcome))
	return outcome, err
}

func (h *KeywordHandler) handle(ctx context.Context, msg Message) (Outcome, error) {
	channel := domain.Channel(strings.ToUpper(strings.TrimSpace(msg.Channel)))
	if strings.TrimSpace(msg.MerchantID) == "" {
		return OutcomeFailed, fmt.Errorf("%w: merchant id is required", domain.ErrInvalidInput)
	}
	if !channel.Valid() {
		return OutcomeFailed, fmt.Errorf("%w: unknown channel %q", domain.ErrInvalidInput, msg.Channel)
	}

	kw, ok := ParseKeyword(msg.Body)
	if !ok {
		h.logger.Debug("inbound: not a keyword", zap.String("merchant_id", msg.MerchantID), zap.String("message_id", msg.ID))
		return OutcomeIgnored, nil
	}

	country := msg.Country
	if country == "" {
		country = h.defaultCountry
	}
	phoneE164, err := phone.Normalize(msg.From, country)
	if err != nil {
		return OutcomeFailed, err
	}

	key := dedupeKey(msg.MerchantID, msg.ID)
	if key != "" && h.dedupe != nil {
		first, err := h.dedupe.FirstSeen(ctx, key)
		if err != nil {
			// Consent updates converge, so applying twice is safe.
			h.logger.Warn("inbound: dedupe unavailable", zap.String("message_id", msg.ID), zap.Error(err))
		} else if !first {
			return OutcomeDuplicate, nil
		}
	}

	rec, err := h.consent.ApplyUpdate(ctx, msg.MerchantID, phoneE164, kw.Patch(), domain.UpdateMeta{
		Channel: channel,
		Source:  domain.SourceKeywordReply,
		Reason:  "keyword " + string(kw),
	})
	if err != nil {
		if key != "" && h.dedupe != nil && errors.Is(err, domain.ErrStorageUnavailable) {
			if ferr := h.dedupe.Forget(ctx, key); ferr != nil {
				h.logger.Warn("inbound: release dedupe key", zap.String("message_id", msg.ID), zap.Error(ferr))
			}
		}
		return OutcomeFailed, err
	}

	h.logger.Info("inbound: keyword applied",
		zap.String("merchant_id", msg.MerchantID),
		logging.Phone(phoneE164),
		zap.String("keyword", string(kw)),
		zap.Bool("marketing_opt_in", rec.MarketingOptIn),
		zap.Bool("fully_blocked", rec.FullyBlocked))
	return OutcomeApplied, nil
}

func dedupeKey(merchantID, messageID string) string {
	if messageID == "" {
		return ""
	}
	return merchantID + ":" + messageID
}
