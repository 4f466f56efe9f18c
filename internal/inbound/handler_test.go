package inbound

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/phone"
	"github.com/itsfredrick/vayva-platform-sub007/internal/telemetry"
)

type applyCall struct {
	merchantID string
	phoneE164  string
	patch      domain.Patch
	meta       domain.UpdateMeta
}

type fakeUpdater struct {
	mu    sync.Mutex
	calls []applyCall
	err   error
}

func (f *fakeUpdater) ApplyUpdate(ctx context.Context, merchantID, phoneE164 string, patch domain.Patch, meta domain.UpdateMeta) (*domain.ConsentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, applyCall{merchantID, phoneE164, patch, meta})
	if f.err != nil {
		return nil, f.err
	}
	rec := domain.DefaultRecord(merchantID, phoneE164)
	patch.Apply(rec)
	return rec, nil
}

func (f *fakeUpdater) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type memDeduper struct {
	seen      map[string]bool
	err       error
	forgotten []string
}

func newMemDeduper() *memDeduper { return &memDeduper{seen: map[string]bool{}} }

func (d *memDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *memDeduper) Forget(ctx context.Context, key string) error {
	delete(d.seen, key)
	d.forgotten = append(d.forgotten, key)
	return nil
}

func stopMessage() Message {
	return Message{ID: "wamid.1", MerchantID: "m1", From: "0801 234 5678", Channel: "whatsapp", Body: "STOP"}
}

func TestKeywordHandler_AppliesKeyword(t *testing.T) {
	consent := &fakeUpdater{}
	reg := prometheus.NewRegistry()
	h := NewKeywordHandler(consent, newMemDeduper(), telemetry.NewMetrics(reg), "NG", nil)

	outcome, err := h.Handle(context.Background(), stopMessage())
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("outcome = %q, want applied", outcome)
	}
	if consent.count() != 1 {
		t.Fatalf("ApplyUpdate calls = %d, want 1", consent.count())
	}
	call := consent.calls[0]
	if call.merchantID != "m1" || call.phoneE164 != "+2348012345678" {
		t.Errorf("key = %s/%s", call.merchantID, call.phoneE164)
	}
	if call.patch.MarketingOptIn == nil || *call.patch.MarketingOptIn {
		t.Errorf("patch = %+v, want marketingOptIn=false", call.patch)
	}
	if call.meta.Channel != domain.ChannelWhatsApp || call.meta.Source != domain.SourceKeywordReply {
		t.Errorf("meta = %+v", call.meta)
	}
	if got := inboundCount(t, reg, "applied"); got != 1 {
		t.Errorf("applied count = %v, want 1", got)
	}
}

// inboundCount reads consent_inbound_messages_total{outcome} from reg.
func inboundCount(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "consent_inbound_messages_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestKeywordHandler_IgnoresNonKeywords(t *testing.T) {
	consent := &fakeUpdater{}
	dedupe := newMemDeduper()
	h := NewKeywordHandler(consent, dedupe, nil, "NG", nil)

	msg := stopMessage()
	msg.Body = "where is my order?"
	outcome, err := h.Handle(context.Background(), msg)
	if err != nil || outcome != OutcomeIgnored {
		t.Fatalf("Handle = %q, %v; want ignored", outcome, err)
	}
	if consent.count() != 0 {
		t.Error("non-keyword must not update consent")
	}
	if len(dedupe.seen) != 0 {
		t.Error("ignored messages must not be marked seen")
	}
}

func TestKeywordHandler_Duplicate(t *testing.T) {
	consent := &fakeUpdater{}
	h := NewKeywordHandler(consent, newMemDeduper(), nil, "NG", nil)

	for i, want := range []Outcome{OutcomeApplied, OutcomeDuplicate} {
		outcome, err := h.Handle(context.Background(), stopMessage())
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		if outcome != want {
			t.Errorf("delivery %d outcome = %q, want %q", i, outcome, want)
		}
	}
	if consent.count() != 1 {
		t.Errorf("ApplyUpdate calls = %d, want 1", consent.count())
	}

	// Same provider id from another merchant is a different message.
	other := stopMessage()
	other.MerchantID = "m2"
	if outcome, _ := h.Handle(context.Background(), other); outcome != OutcomeApplied {
		t.Errorf("other merchant outcome = %q, want applied", outcome)
	}
}

func TestKeywordHandler_NoMessageIDSkipsDedupe(t *testing.T) {
	consent := &fakeUpdater{}
	h := NewKeywordHandler(consent, newMemDeduper(), nil, "NG", nil)
	msg := stopMessage()
	msg.ID = ""
	for range 2 {
		if outcome, err := h.Handle(context.Background(), msg); err != nil || outcome != OutcomeApplied {
			t.Fatalf("Handle = %q, %v", outcome, err)
		}
	}
	if consent.count() != 2 {
		t.Errorf("ApplyUpdate calls = %d, want 2", consent.count())
	}
}

func TestKeywordHandler_DedupeErrorStillApplies(t *testing.T) {
	consent := &fakeUpdater{}
	dedupe := newMemDeduper()
	dedupe.err = errors.New("redis down")
	h := NewKeywordHandler(consent, dedupe, nil, "NG", nil)

	outcome, err := h.Handle(context.Background(), stopMessage())
	if err != nil || outcome != OutcomeApplied {
		t.Fatalf("Handle = %q, %v; want applied", outcome, err)
	}
}

func TestKeywordHandler_StorageFailureReleasesKey(t *testing.T) {
	consent := &fakeUpdater{err: errors.Join(domain.ErrStorageUnavailable, errors.New("conn reset"))}
	dedupe := newMemDeduper()
	h := NewKeywordHandler(consent, dedupe, nil, "NG", nil)

	outcome, err := h.Handle(context.Background(), stopMessage())
	if !errors.Is(err, domain.ErrStorageUnavailable) || outcome != OutcomeFailed {
		t.Fatalf("Handle = %q, %v", outcome, err)
	}
	if len(dedupe.forgotten) != 1 || dedupe.forgotten[0] != "m1:wamid.1" {
		t.Errorf("forgotten = %v", dedupe.forgotten)
	}

	consent.err = nil
	if outcome, _ := h.Handle(context.Background(), stopMessage()); outcome != OutcomeApplied {
		t.Errorf("redelivery outcome = %q, want applied", outcome)
	}
}

func TestKeywordHandler_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Message)
		wantErr error
	}{
		{"missing merchant", func(m *Message) { m.MerchantID = " " }, domain.ErrInvalidInput},
		{"unknown channel", func(m *Message) { m.Channel = "PIGEON" }, domain.ErrInvalidInput},
		{"bad phone", func(m *Message) { m.From = "12345" }, phone.ErrNotNormalizable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consent := &fakeUpdater{}
			h := NewKeywordHandler(consent, nil, nil, "NG", nil)
			msg := stopMessage()
			tt.mutate(&msg)
			outcome, err := h.Handle(context.Background(), msg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if outcome != OutcomeFailed {
				t.Errorf("outcome = %q, want failed", outcome)
			}
			if consent.count() != 0 {
				t.Error("rejected message must not update consent")
			}
		})
	}
}

func TestKeywordHandler_CountryHint(t *testing.T) {
	consent := &fakeUpdater{}
	h := NewKeywordHandler(consent, nil, nil, "NG", nil)
	msg := stopMessage()
	msg.From = "024 123 4567"
	msg.Country = "GH"
	if _, err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := consent.calls[0].phoneE164; got != "+233241234567" {
		t.Errorf("phone = %q, want +233241234567", got)
	}
}
