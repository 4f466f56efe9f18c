package telemetry

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itsfredrick/vayva-platform-sub007/internal/audit/domain"
)

// emitTimeout is the max time allowed for a single emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long commands wait in OrderedEmitter.Close for queued events
// before shutting down the Kafka writer and OTel providers.
const ShutdownDrainDuration = 2 * emitTimeout

const (
	defaultShards     = 16
	defaultShardQueue = 256
)

// OrderedEmitter publishes compliance events off the request path. Each key hashes to one
// shard worker that emits in reservation order, so events reserved for the same key in
// order are emitted in that order. Errors are logged, never returned.
type OrderedEmitter struct {
	inner  EventEmitter
	logger *zap.Logger
	shards []chan *Pending

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Pending is a reserved slot in a shard queue. The shard waits on it until Publish or
// Cancel is called, so exactly one of them must be called. A nil *Pending is a no-op.
type Pending struct {
	ready chan *domain.ComplianceEvent
}

// Publish releases the slot with event.
func (p *Pending) Publish(event *domain.ComplianceEvent) {
	if p == nil {
		return
	}
	p.ready <- event
}

// Cancel releases the slot without emitting.
func (p *Pending) Cancel() {
	if p == nil {
		return
	}
	p.ready <- nil
}

// NewOrderedEmitter starts shards workers emitting to inner. shards <= 0 uses 16.
// A nil inner yields a nil *OrderedEmitter, whose Reserve returns nil.
func NewOrderedEmitter(inner EventEmitter, logger *zap.Logger, shards int) *OrderedEmitter {
	if inner == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if shards <= 0 {
		shards = defaultShards
	}
	o := &OrderedEmitter{inner: inner, logger: logger, shards: make([]chan *Pending, shards)}
	for i := range o.shards {
		q := make(chan *Pending, defaultShardQueue)
		o.shards[i] = q
		o.wg.Add(1)
		go o.run(q)
	}
	return o
}

// Reserve takes the next slot for key. Call it while the write that produces the event
// still holds its lock, then Publish after commit or Cancel on rollback. It blocks while
// the shard queue is full and returns nil once the emitter is closed.
func (o *OrderedEmitter) Reserve(key string) *Pending {
	if o == nil {
		return nil
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return nil
	}
	p := &Pending{ready: make(chan *domain.ComplianceEvent, 1)}
	o.shards[shardFor(key, len(o.shards))] <- p
	return p
}

// Emit reserves and publishes event in one step, keyed by merchant and phone.
func (o *OrderedEmitter) Emit(_ context.Context, event *domain.ComplianceEvent) error {
	if event == nil {
		return nil
	}
	o.Reserve(EventKey(event)).Publish(event)
	return nil
}

// Close stops accepting reservations and waits until queued events are emitted or ctx ends.
func (o *OrderedEmitter) Close(ctx context.Context) error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		for _, q := range o.shards {
			close(q)
		}
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *OrderedEmitter) run(q <-chan *Pending) {
	defer o.wg.Done()
	for p := range q {
		event := <-p.ready
		if event == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		if err := o.inner.Emit(ctx, event); err != nil {
			o.logger.Warn("telemetry: emit failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.EventType)),
				zap.Error(err))
		}
		cancel()
	}
}

// EventKey is the ordering key of an event: "merchantId|phoneE164".
func EventKey(event *domain.ComplianceEvent) string {
	return event.MerchantID + "|" + event.PhoneE164
}

func shardFor(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
