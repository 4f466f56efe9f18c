package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/itsfredrick/vayva-platform-sub007/internal/security"
)

func TestAuth(t *testing.T) {
	tokens, err := security.NewTestMerchantTokens()
	if err != nil {
		t.Fatalf("NewTestMerchantTokens: %v", err)
	}
	valid, _, err := tokens.Issue("merchant-1", "user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var gotMerchant, gotSubject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMerchant, _ = GetMerchantID(r.Context())
		gotSubject, _ = GetSubject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Auth(tokens)(next)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid", "Bearer " + valid, http.StatusNoContent},
		{"lowercase scheme", "bearer " + valid, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"scheme only", "Bearer", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMerchant, gotSubject = "", ""
			r := httptest.NewRequest(http.MethodGet, "/v1/consents/x", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusNoContent && (gotMerchant != "merchant-1" || gotSubject != "user-1") {
				t.Errorf("context merchant=%q subject=%q", gotMerchant, gotSubject)
			}
		})
	}
}

func TestAuth_NilValidatorRejects(t *testing.T) {
	h := Auth(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer x")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
