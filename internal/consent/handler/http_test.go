package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"

	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/security"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/middleware"
)

const (
	testMerchant = "merchant-1"
	testPhone    = "+2348012345678"
	testSecret   = "0123456789abcdef0123456789abcdef"
)

type updateCall struct {
	merchantID, phoneE164 string
	patch                 domain.Patch
	meta                  domain.UpdateMeta
}

// fakeConsentService keeps records in memory.
type fakeConsentService struct {
	mu      sync.Mutex
	records map[string]*domain.ConsentRecord
	calls   []updateCall
	err     error
}

func newFakeService() *fakeConsentService {
	return &fakeConsentService{records: map[string]*domain.ConsentRecord{}}
}

func (f *fakeConsentService) Get(ctx context.Context, merchantID, phoneE164 string) (*domain.ConsentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if rec, ok := f.records[merchantID+"|"+phoneE164]; ok {
		return rec, nil
	}
	return domain.DefaultRecord(merchantID, phoneE164), nil
}

func (f *fakeConsentService) ApplyUpdate(ctx context.Context, merchantID, phoneE164 string, patch domain.Patch, meta domain.UpdateMeta) (*domain.ConsentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, updateCall{merchantID, phoneE164, patch, meta})
	key := merchantID + "|" + phoneE164
	rec, ok := f.records[key]
	if !ok {
		rec = domain.DefaultRecord(merchantID, phoneE164)
		rec.ID = fmt.Sprintf("rec-%d", len(f.records)+1)
		rec.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	patch.Apply(rec)
	rec.UpdatedAt = time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)
	f.records[key] = rec
	return rec, nil
}

func withMerchant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(middleware.WithMerchant(r.Context(), testMerchant, "user-1")))
	})
}

func newMerchantRouter(t *testing.T, svc ConsentService) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Use(withMerchant)
	NewHandler(svc, "NG", zaptest.NewLogger(t)).Routes(r)
	return r
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) ConsentView {
	t.Helper()
	var v ConsentView
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestHandler_GetDefault(t *testing.T) {
	h := newMerchantRouter(t, newFakeService())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/consents/08012345678", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	v := decodeView(t, w)
	if v.PhoneE164 != testPhone || v.MarketingOptIn || !v.TransactionalAllowed || v.FullyBlocked || v.Persisted {
		t.Errorf("view = %+v, want default record", v)
	}
	if v.CreatedAt != nil || v.MarketingOptInSource != domain.DefaultOptInSource {
		t.Errorf("default view should have no timestamps and source unknown: %+v", v)
	}
}

func TestHandler_GetCountryHintAndEscapedPlus(t *testing.T) {
	h := newMerchantRouter(t, newFakeService())
	tests := []struct {
		path string
		want string
	}{
		{"/consents/0241234567?country=gh", "+233241234567"},
		{"/consents/%2B2348012345678", testPhone},
		{"/consents/+2348012345678", testPhone},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.path, w.Code)
		}
		if v := decodeView(t, w); v.PhoneE164 != tt.want {
			t.Errorf("%s: phone = %q, want %q", tt.path, v.PhoneE164, tt.want)
		}
	}
}

func TestHandler_GetUnnormalizable(t *testing.T) {
	h := newMerchantRouter(t, newFakeService())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/consents/123", nil))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestHandler_Patch(t *testing.T) {
	svc := newFakeService()
	h := newMerchantRouter(t, svc)

	body := `{"marketingOptIn":true,"marketingOptInSource":"checkout_checkbox","reason":"customer asked","channel":"SMS"}`
	r := httptest.NewRequest(http.MethodPatch, "/consents/08012345678", strings.NewReader(body))
	r.RemoteAddr = "192.0.2.10:4000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	v := decodeView(t, w)
	if !v.MarketingOptIn || v.MarketingOptInSource != "checkout_checkbox" || !v.Persisted {
		t.Errorf("view = %+v", v)
	}
	if len(svc.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(svc.calls))
	}
	c := svc.calls[0]
	if c.merchantID != testMerchant || c.phoneE164 != testPhone {
		t.Errorf("key = %s/%s", c.merchantID, c.phoneE164)
	}
	want := domain.UpdateMeta{Channel: domain.ChannelSMS, Source: domain.SourceMerchantDashboard, Reason: "customer asked", Actor: "user-1", IP: "192.0.2.10"}
	if c.meta != want {
		t.Errorf("meta = %+v, want %+v", c.meta, want)
	}
}

func TestHandler_PatchErrors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		svcErr     error
		wantStatus int
	}{
		{"bad json", "/consents/08012345678", `{"marketingOptIn":`, nil, http.StatusBadRequest},
		{"empty body", "/consents/08012345678", ``, nil, http.StatusBadRequest},
		{"bad phone", "/consents/12", `{}`, nil, http.StatusUnprocessableEntity},
		{"no fields", "/consents/08012345678", `{"reason":"nothing to change"}`, nil, http.StatusBadRequest},
		{"invalid input", "/consents/08012345678", `{"fullyBlocked":true,"channel":"PIGEON"}`, fmt.Errorf("%w: channel", domain.ErrInvalidInput), http.StatusBadRequest},
		{"storage", "/consents/08012345678", `{"fullyBlocked":true}`, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, errors.New("timeout")), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.err = tt.svcErr
			h := newMerchantRouter(t, svc)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, tt.path, strings.NewReader(tt.body)))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body)
			}
			if tt.name == "no fields" && len(svc.calls) != 0 {
				t.Errorf("ApplyUpdate called %d times for an empty patch", len(svc.calls))
			}
		})
	}
}

func newPreferenceRouter(t *testing.T, svc ConsentService) (http.Handler, *security.PreferenceTokens) {
	t.Helper()
	tokens, err := security.NewPreferenceTokens(testSecret)
	if err != nil {
		t.Fatalf("NewPreferenceTokens: %v", err)
	}
	ph := NewPreferenceHandler(svc, tokens, nil, "https://shop.example/preferences?lang=en", 24*time.Hour, "NG", zaptest.NewLogger(t))
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(withMerchant)
		ph.MerchantRoutes(r)
	})
	ph.PublicRoutes(r)
	return r, tokens
}

func TestPreferenceHandler_IssueLink(t *testing.T) {
	h, tokens := newPreferenceRouter(t, newFakeService())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/preference-links",
		strings.NewReader(`{"phone":"0801 234 5678","ttl":"1h"}`)))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var resp linkResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := tokens.Verify(resp.Token)
	if err != nil {
		t.Fatalf("Verify issued token: %v", err)
	}
	if claims.MerchantID != testMerchant || claims.PhoneE164 != testPhone {
		t.Errorf("claims = %+v", claims)
	}
	if !strings.HasPrefix(resp.URL, "https://shop.example/preferences?") || !strings.Contains(resp.URL, "lang=en") || !strings.Contains(resp.URL, "token=") {
		t.Errorf("url = %q", resp.URL)
	}
	if d := time.Until(resp.ExpiresAt); d <= 0 || d > time.Hour {
		t.Errorf("expiresAt = %v, want within the hour", resp.ExpiresAt)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/preference-links", strings.NewReader(`{"phone":"0801 234 5678","ttl":"-1h"}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative ttl: status = %d, want 400", w.Code)
	}
}

func TestPreferenceHandler_Center(t *testing.T) {
	svc := newFakeService()
	h, tokens := newPreferenceRouter(t, svc)
	token, _, err := tokens.Issue(testMerchant, testPhone, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/preferences?token="+token, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d", w.Code)
	}
	if v := decodeView(t, w); v.PhoneE164 != testPhone || v.MerchantID != testMerchant {
		t.Errorf("GET view = %+v", v)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/preferences?token="+token,
		strings.NewReader(`{"marketingOptIn":true}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("POST status = %d, body %s", w.Code, w.Body)
	}
	v := decodeView(t, w)
	if !v.MarketingOptIn || v.MarketingOptInSource != optInSourcePreferenceCenter {
		t.Errorf("POST view = %+v", v)
	}
	c := svc.calls[0]
	if c.meta.Source != domain.SourcePreferenceCenter || c.meta.Channel != domain.ChannelWeb || c.meta.Actor != "customer" {
		t.Errorf("meta = %+v", c.meta)
	}
}

func TestPreferenceHandler_InvalidTokenIsGeneric(t *testing.T) {
	h, tokens := newPreferenceRouter(t, newFakeService())
	expired, _, err := tokens.Issue(testMerchant, testPhone, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	valid, _, err := tokens.Issue(testMerchant, testPhone, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for name, token := range map[string]string{
		"missing":  "",
		"garbage":  "abc",
		"expired":  expired,
		"tampered": valid + "x",
	} {
		for _, method := range []string{http.MethodGet, http.MethodPost} {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(method, "/preferences?token="+token, strings.NewReader(`{"fullyBlocked":true}`)))
			if w.Code != http.StatusUnauthorized {
				t.Errorf("%s %s: status = %d, want 401", method, name, w.Code)
			}
			if body := strings.TrimSpace(w.Body.String()); body != `{"error":"link expired or invalid"}` {
				t.Errorf("%s %s: body = %s", method, name, body)
			}
		}
	}
}
