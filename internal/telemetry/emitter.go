// Package telemetry fans committed compliance events out to best-effort sinks (Kafka,
// OTel logs) and holds the service's Prometheus metrics.
package telemetry

import (
	"context"
	"errors"

	"github.com/itsfredrick/vayva-platform-sub007/internal/audit/domain"
)

// EventEmitter emits compliance events to an external sink. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.ComplianceEvent) error
}

// MultiEmitter emits to every non-nil emitter and joins their errors.
type MultiEmitter []EventEmitter

// Emit calls Emit on each emitter in order; one failing sink does not stop the rest.
func (m MultiEmitter) Emit(ctx context.Context, event *domain.ComplianceEvent) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
