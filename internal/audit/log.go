// Package audit is the compliance event ledger: event metadata encoding and the read
// side used by compliance queries. Events are written only by the consent engine.
package audit

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itsfredrick/vayva-platform-sub007/internal/audit/domain"
	auditrepo "github.com/itsfredrick/vayva-platform-sub007/internal/audit/repository"
	consentdomain "github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
)

const (
	// DefaultListLimit applies when a caller passes limit <= 0.
	DefaultListLimit int32 = 100
	// MaxListLimit caps a single page.
	MaxListLimit int32 = 1000
)

// ErrInvalidRange is returned when a time range is empty or reversed.
var ErrInvalidRange = errors.New("audit: from must be before to")

// Page is one page of events, oldest first. NextPageToken is empty on the last page.
type Page struct {
	Events        []*domain.ComplianceEvent
	NextPageToken string
}

// Log answers compliance queries over stored events.
type Log struct {
	repo auditrepo.Repository
}

// NewLog returns a Log reading from repo.
func NewLog(repo auditrepo.Repository) *Log {
	return &Log{repo: repo}
}

// History returns a page of the events of one consent record, oldest first. pageToken is
// the NextPageToken of the previous page, or empty for the first page.
func (l *Log) History(ctx context.Context, merchantID, phoneE164, pageToken string, limit int32) (*Page, error) {
	if merchantID == "" || phoneE164 == "" {
		return nil, consentdomain.ErrInvalidInput
	}
	after, err := DecodePageToken(pageToken)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	events, err := l.repo.ListByPhone(ctx, merchantID, phoneE164, after, limit+1)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", consentdomain.ErrStorageUnavailable, err)
	}
	return newPage(events, limit), nil
}

// Range returns a page of a merchant's events with from <= createdAt < to, oldest first.
func (l *Log) Range(ctx context.Context, merchantID string, from, to time.Time, pageToken string, limit int32) (*Page, error) {
	if merchantID == "" {
		return nil, consentdomain.ErrInvalidInput
	}
	if !from.Before(to) {
		return nil, ErrInvalidRange
	}
	after, err := DecodePageToken(pageToken)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	events, err := l.repo.ListByRange(ctx, merchantID, from, to, after, limit+1)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", consentdomain.ErrStorageUnavailable, err)
	}
	return newPage(events, limit), nil
}

// newPage trims events fetched with limit+1 and sets the token when more remain.
func newPage(events []*domain.ComplianceEvent, limit int32) *Page {
	if int32(len(events)) <= limit {
		return &Page{Events: events}
	}
	events = events[:limit]
	last := events[len(events)-1]
	return &Page{
		Events:        events,
		NextPageToken: EncodePageToken(domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}),
	}
}

// EncodePageToken returns an opaque token for resuming after c.
func EncodePageToken(c domain.Cursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixMilli(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodePageToken parses a token from EncodePageToken. An empty token yields a nil cursor.
// Malformed tokens are domain.ErrInvalidInput.
func DecodePageToken(token string) (*domain.Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed page token", consentdomain.ErrInvalidInput)
	}
	ms, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: malformed page token", consentdomain.ErrInvalidInput)
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed page token", consentdomain.ErrInvalidInput)
	}
	return &domain.Cursor{CreatedAt: time.UnixMilli(n).UTC(), ID: id}, nil
}

func clampLimit(limit int32) int32 {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
