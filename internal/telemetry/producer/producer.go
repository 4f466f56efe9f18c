// Package producer publishes committed compliance events to Kafka.
package producer

import (
	"github.com/itsfredrick/vayva-platform-sub007/internal/telemetry"
)

// Producer emits compliance events to a message broker. Callers use it best-effort: log and ignore errors.
type Producer interface {
	telemetry.EventEmitter
	// Close flushes and releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
