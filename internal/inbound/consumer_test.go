package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	done      chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, done: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	if len(r.queue) == 0 {
		select {
		case <-r.done:
		default:
			close(r.done)
		}
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func kafkaMessage(t *testing.T, offset int64, msg Message) kafka.Message {
	t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Offset: offset, Value: b}
}

func runUntilDrained(t *testing.T, c *Consumer, r *fakeReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain the queue")
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Run returned %v, want nil on cancel", err)
	}
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	consent := &fakeUpdater{}
	h := NewKeywordHandler(consent, newMemDeduper(), nil, "NG", nil)
	start := stopMessage()
	start.ID, start.Body = "wamid.2", "START"
	r := newFakeReader(
		kafkaMessage(t, 1, stopMessage()),
		kafka.Message{Offset: 2, Value: []byte("{not json")},
		kafkaMessage(t, 3, stopMessage()),
		kafkaMessage(t, 4, start),
	)
	c := newConsumer(r, h, nil)

	runUntilDrained(t, c, r)

	if len(r.committed) != 4 {
		t.Errorf("committed = %v, want all 4 offsets", r.committed)
	}
	// offset 3 is a redelivery of offset 1.
	if consent.count() != 2 {
		t.Errorf("ApplyUpdate calls = %d, want 2", consent.count())
	}
}

func TestConsumer_RetriesStorageFailures(t *testing.T) {
	consent := &flakyUpdater{failures: 2}
	h := NewKeywordHandler(consent, newMemDeduper(), nil, "NG", nil)
	r := newFakeReader(kafkaMessage(t, 7, stopMessage()))
	c := newConsumer(r, h, nil)
	c.initialBackoff, c.maxBackoff = time.Millisecond, 5*time.Millisecond

	runUntilDrained(t, c, r)

	if consent.count() != 3 {
		t.Errorf("attempts = %d, want 3", consent.count())
	}
	if len(r.committed) != 1 || r.committed[0] != 7 {
		t.Errorf("committed = %v", r.committed)
	}
}

func TestConsumer_StorageOutageDoesNotCommit(t *testing.T) {
	consent := &flakyUpdater{failures: 1 << 30}
	h := NewKeywordHandler(consent, nil, nil, "NG", nil)
	r := newFakeReader(kafkaMessage(t, 9, stopMessage()))
	c := newConsumer(r, h, nil)
	c.initialBackoff, c.maxBackoff = time.Millisecond, 2*time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for consent.count() < 10 {
		if time.Now().After(deadline) {
			t.Fatalf("attempts = %d, want the update retried", consent.count())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Run returned %v, want nil on cancel", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.committed) != 0 {
		t.Errorf("committed = %v, want the STOP left uncommitted for redelivery", r.committed)
	}
}

func TestConsumer_SkipsInvalidMessages(t *testing.T) {
	consent := &flakyUpdater{}
	h := NewKeywordHandler(consent, nil, nil, "NG", nil)
	bad := stopMessage()
	bad.MerchantID = ""
	r := newFakeReader(kafkaMessage(t, 11, bad), kafkaMessage(t, 12, stopMessage()))
	c := newConsumer(r, h, nil)
	c.initialBackoff = time.Millisecond

	runUntilDrained(t, c, r)

	if consent.count() != 1 {
		t.Errorf("ApplyUpdate calls = %d, want 1", consent.count())
	}
	if len(r.committed) != 2 {
		t.Errorf("committed = %v, want both offsets", r.committed)
	}
}

type flakyUpdater struct {
	mu       sync.Mutex
	failures int
	attempts int
}

func (f *flakyUpdater) ApplyUpdate(ctx context.Context, merchantID, phoneE164 string, patch domain.Patch, meta domain.UpdateMeta) (*domain.ConsentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		return nil, errors.Join(domain.ErrStorageUnavailable, errors.New("timeout"))
	}
	rec := domain.DefaultRecord(merchantID, phoneE164)
	patch.Apply(rec)
	return rec, nil
}

func (f *flakyUpdater) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}
