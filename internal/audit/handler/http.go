// Package handler serves compliance event queries over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/itsfredrick/vayva-platform-sub007/internal/audit"
	"github.com/itsfredrick/vayva-platform-sub007/internal/audit/domain"
	consenthandler "github.com/itsfredrick/vayva-platform-sub007/internal/consent/handler"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/middleware"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/respond"
)

// EventLog answers compliance event queries.
type EventLog interface {
	History(ctx context.Context, merchantID, phoneE164, pageToken string, limit int32) (*audit.Page, error)
	Range(ctx context.Context, merchantID string, from, to time.Time, pageToken string, limit int32) (*audit.Page, error)
}

// Handler serves the merchant compliance event endpoints.
type Handler struct {
	log            EventLog
	defaultCountry string
	logger         *zap.Logger
	nowF           func() time.Time
}

// NewHandler returns a compliance event handler. logger may be nil.
func NewHandler(log EventLog, defaultCountry string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{log: log, defaultCountry: defaultCountry, logger: logger, nowF: time.Now}
}

// Routes mounts the event endpoints on r. r must run middleware.Auth.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/consents/{phone}/events", h.history)
	r.Get("/compliance-events", h.rangeQuery)
}

type eventsResponse struct {
	Events        []*domain.ComplianceEvent `json:"events"`
	Count         int                       `json:"count"`
	NextPageToken string                    `json:"nextPageToken,omitempty"`
}

func newEventsResponse(page *audit.Page) eventsResponse {
	events := page.Events
	if events == nil {
		events = []*domain.ComplianceEvent{}
	}
	return eventsResponse{Events: events, Count: len(events), NextPageToken: page.NextPageToken}
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	merchantID, _ := middleware.GetMerchantID(r.Context())
	phoneE164, err := consenthandler.PhoneParam(r, h.defaultCountry)
	if err != nil {
		respond.Err(w, r, h.logger, err)
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	page, err := h.log.History(r.Context(), merchantID, phoneE164, r.URL.Query().Get("pageToken"), limit)
	if err != nil {
		respond.Err(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, newEventsResponse(page))
}

// rangeQuery lists events with from <= createdAt < to. to defaults to now, from to 24h before to.
// Follow nextPageToken with the same from and to to read the rest of the range.
func (h *Handler) rangeQuery(w http.ResponseWriter, r *http.Request) {
	merchantID, _ := middleware.GetMerchantID(r.Context())
	q := r.URL.Query()
	to := h.nowF().UTC()
	if s := q.Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respond.Error(w, r, http.StatusBadRequest, "to must be RFC3339")
			return
		}
		to = t
	}
	from := to.Add(-24 * time.Hour)
	if s := q.Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respond.Error(w, r, http.StatusBadRequest, "from must be RFC3339")
			return
		}
		from = t
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	page, err := h.log.Range(r.Context(), merchantID, from, to, q.Get("pageToken"), limit)
	if err != nil {
		if errors.Is(err, audit.ErrInvalidRange) {
			respond.Error(w, r, http.StatusBadRequest, "from must be before to")
			return
		}
		respond.Err(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, newEventsResponse(page))
}

// parseLimit reads ?limit=. Missing means the log's default; the log clamps large values.
func parseLimit(w http.ResponseWriter, r *http.Request) (int32, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil || n <= 0 {
		respond.Error(w, r, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return int32(n), true
}
