// Package service is the consent update engine, the only writer of consent records.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/itsfredrick/vayva-platform-sub007/internal/audit"
	auditdomain "github.com/itsfredrick/vayva-platform-sub007/internal/audit/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/repository"
	"github.com/itsfredrick/vayva-platform-sub007/internal/logging"
	"github.com/itsfredrick/vayva-platform-sub007/internal/phone"
	"github.com/itsfredrick/vayva-platform-sub007/internal/telemetry"
)

const tracerName = "consent/service"

// Engine reads consent state and applies consent changes. Each ApplyUpdate runs in one
// storage transaction that writes the record and its compliance event together.
type Engine struct {
	repo      repository.Repository
	publisher Publisher
	metrics   *telemetry.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer

	nowF       func() time.Time
	newEventID func(time.Time) string
}

// Option configures an Engine.
type Option func(*Engine)

// Publisher hands committed events to their sinks in per-key commit order.
// *telemetry.OrderedEmitter implements it.
type Publisher interface {
	Reserve(key string) *telemetry.Pending
}

// WithPublisher sets where committed compliance events are published (best-effort, async).
func WithPublisher(p Publisher) Option {
	return func(en *Engine) { en.publisher = p }
}

// WithMetrics sets the Prometheus metrics. Nil disables them.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(en *Engine) { en.metrics = m }
}

// WithLogger sets the logger. Nil means no logging.
func WithLogger(l *zap.Logger) Option {
	return func(en *Engine) {
		if l != nil {
			en.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(en *Engine) { en.nowF = now }
}

// NewEngine returns an Engine storing through repo.
func NewEngine(repo repository.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:       repo,
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(tracerName),
		nowF:       time.Now,
		newEventID: newEventID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get returns the consent record for (merchantID, phoneE164). A key that was never written
// yields the default record, which is not persisted. Only storage failures and invalid keys
// are errors.
func (e *Engine) Get(ctx context.Context, merchantID, phoneE164 string) (*domain.ConsentRecord, error) {
	ctx, span := e.tracer.Start(ctx, "consent.Get", trace.WithAttributes(attribute.String("merchant_id", merchantID)))
	defer span.End()

	if err := validateKey(merchantID, phoneE164); err != nil {
		return nil, err
	}
	rec, err := e.repo.GetByKey(ctx, merchantID, phoneE164)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage")
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	if rec == nil {
		return domain.DefaultRecord(merchantID, phoneE164), nil
	}
	return rec, nil
}

// ApplyUpdate applies patch to the record for (merchantID, phoneE164), creating it from the
// default if absent, and appends exactly one compliance event in the same transaction. The
// event's CreatedAt equals the record's UpdatedAt. Returns the full updated record.
//
// Conflicting patch fields are not an error; DeriveEventType decides the event type.
// Storage failures are returned wrapped in domain.ErrStorageUnavailable and nothing is committed.
func (e *Engine) ApplyUpdate(ctx context.Context, merchantID, phoneE164 string, patch domain.Patch, meta domain.UpdateMeta) (*domain.ConsentRecord, error) {
	ctx, span := e.tracer.Start(ctx, "consent.ApplyUpdate", trace.WithAttributes(
		attribute.String("merchant_id", merchantID),
		attribute.String("channel", string(meta.Channel)),
		attribute.String("source", string(meta.Source)),
	))
	defer span.End()

	if err := validateUpdate(merchantID, phoneE164, meta); err != nil {
		e.metrics.ConsentUpdateFailed("invalid_input")
		return nil, err
	}
	metadata, err := audit.BuildMetadata(patch, meta)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", domain.ErrInvalidInput, err)
	}

	var (
		updated *domain.ConsentRecord
		event   *auditdomain.ComplianceEvent
		slot    *telemetry.Pending
	)
	err = e.repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		fresh := domain.DefaultRecord(merchantID, phoneE164)
		fresh.ID = uuid.NewString()
		fresh.CreatedAt = e.now()
		fresh.UpdatedAt = fresh.CreatedAt
		before, created, err := tx.FindOrCreate(ctx, fresh)
		if err != nil {
			return err
		}
		now := fresh.CreatedAt
		if !created {
			now = e.nextUpdateTime(before.UpdatedAt)
		}
		eventType := DeriveEventType(patch, before)

		rec := *before
		patch.Apply(&rec)
		rec.UpdatedAt = now
		if err := tx.Update(ctx, &rec); err != nil {
			return err
		}

		ev := &auditdomain.ComplianceEvent{
			ID:         e.newEventID(now),
			MerchantID: merchantID,
			PhoneE164:  phoneE164,
			EventType:  eventType,
			Channel:    string(meta.Channel),
			Source:     string(meta.Source),
			Metadata:   metadata,
			CreatedAt:  now,
		}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return err
		}
		// Reserved under the record lock, so the slot order is the commit order.
		slot = e.reserve(telemetry.EventKey(ev))
		updated, event = &rec, ev
		return nil
	})
	if err != nil {
		slot.Cancel()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage")
		e.metrics.ConsentUpdateFailed("storage")
		e.logger.Error("consent: update failed",
			zap.String("merchant_id", merchantID),
			logging.Phone(phoneE164),
			zap.String("source", string(meta.Source)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}

	span.SetAttributes(attribute.String("event_type", string(event.EventType)))
	e.metrics.ConsentUpdated(string(event.EventType), event.Source)
	e.logger.Info("consent: updated",
		zap.String("merchant_id", merchantID),
		logging.Phone(phoneE164),
		zap.String("event_type", string(event.EventType)),
		zap.String("channel", event.Channel),
		zap.String("source", event.Source),
		zap.String("event_id", event.ID))
	slot.Publish(event)
	return updated, nil
}

func (e *Engine) reserve(key string) *telemetry.Pending {
	if e.publisher == nil {
		return nil
	}
	return e.publisher.Reserve(key)
}

func validateKey(merchantID, phoneE164 string) error {
	if strings.TrimSpace(merchantID) == "" {
		return fmt.Errorf("%w: merchant id is required", domain.ErrInvalidInput)
	}
	if !phone.IsE164(phoneE164) {
		return fmt.Errorf("%w: phone must be normalized E.164", domain.ErrInvalidInput)
	}
	return nil
}

func validateUpdate(merchantID, phoneE164 string, meta domain.UpdateMeta) error {
	if err := validateKey(merchantID, phoneE164); err != nil {
		return err
	}
	if !meta.Channel.Valid() {
		return fmt.Errorf("%w: unknown channel %q", domain.ErrInvalidInput, meta.Channel)
	}
	if !meta.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", domain.ErrInvalidInput, meta.Source)
	}
	return nil
}

// now reads the clock at the millisecond precision both storage encodings keep.
func (e *Engine) now() time.Time {
	return e.nowF().UTC().Truncate(time.Millisecond)
}

// nextUpdateTime returns the timestamp for a change to a record last written at prev.
// Callers hold the record lock. The result is strictly after prev, so a key's events
// sort in commit order.
func (e *Engine) nextUpdateTime(prev time.Time) time.Time {
	now := e.now()
	if !now.After(prev) {
		now = prev.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
	}
	return now
}

// newEventID returns a ULID for t, so event ids sort by creation time.
func newEventID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// IsTransient reports whether err is a storage failure the caller should retry.
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrStorageUnavailable)
}
