package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/itsfredrick/vayva-platform-sub007/internal/audit/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/logging"
	"github.com/itsfredrick/vayva-platform-sub007/internal/telemetry"
)

const instrumentationName = "consent.compliance"

// recordEmitter is the part of otellog.Logger the emitter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that mirrors compliance events as OTel log records via
// the given LoggerProvider. If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(instrumentationName)}
}

// NewEventEmitterWithLogger returns an emitter writing to logger directly.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.ComplianceEvent) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the compliance event to an OTel log record and emits it. The phone number is masked.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.ComplianceEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetEventName("consent." + string(event.EventType))
	if len(event.Metadata) > 0 {
		rec.SetBody(otellog.BytesValue(event.Metadata))
	}
	if event.ID != "" {
		rec.AddAttributes(otellog.String("event_id", event.ID))
	}
	if event.MerchantID != "" {
		rec.AddAttributes(otellog.String("merchant_id", event.MerchantID))
	}
	if event.PhoneE164 != "" {
		rec.AddAttributes(otellog.String("phone", logging.MaskPhone(event.PhoneE164)))
	}
	if event.EventType != "" {
		rec.AddAttributes(otellog.String("event_type", string(event.EventType)))
	}
	if event.Channel != "" {
		rec.AddAttributes(otellog.String("channel", event.Channel))
	}
	if event.Source != "" {
		rec.AddAttributes(otellog.String("source", event.Source))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
