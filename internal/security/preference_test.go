package security

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

const (
	prefSecret      = "0123456789abcdef0123456789abcdef"
	otherPrefSecret = "fedcba9876543210fedcba9876543210"
)

func newPreferenceTokens(t *testing.T, now time.Time, secret string, previous ...string) *PreferenceTokens {
	t.Helper()
	p, err := NewPreferenceTokens(secret, previous...)
	if err != nil {
		t.Fatalf("NewPreferenceTokens: %v", err)
	}
	p.nowF = func() time.Time { return now }
	return p
}

func TestPreferenceTokens_RoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := newPreferenceTokens(t, now, prefSecret)

	token, exp, err := p.Issue("m1", "+2348012345678", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Errorf("exp = %v, want %v", exp, now.Add(time.Hour))
	}
	if strings.Count(token, ".") != 1 {
		t.Fatalf("token %q should have exactly one separator", token)
	}
	claims, err := p.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.MerchantID != "m1" || claims.PhoneE164 != "+2348012345678" {
		t.Errorf("claims = %+v", claims)
	}
	if !claims.ExpiresAt().Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt(), exp)
	}
}

func TestPreferenceTokens_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := newPreferenceTokens(t, now, prefSecret)

	for _, ttl := range []time.Duration{0, -time.Minute} {
		token, _, err := p.Issue("m1", "+2348012345678", ttl)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if _, err := p.Verify(token); err != ErrInvalidToken {
			t.Errorf("ttl %v: want ErrInvalidToken, got %v", ttl, err)
		}
	}

	token, _, err := p.Issue("m1", "+2348012345678", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	p.nowF = func() time.Time { return now.Add(time.Minute - time.Millisecond) }
	if _, err := p.Verify(token); err != nil {
		t.Errorf("just before exp: %v", err)
	}
	p.nowF = func() time.Time { return now.Add(time.Minute) }
	if _, err := p.Verify(token); err != ErrInvalidToken {
		t.Errorf("at exp: want ErrInvalidToken, got %v", err)
	}
}

func TestPreferenceTokens_TamperEvidence(t *testing.T) {
	p := newPreferenceTokens(t, time.Now(), prefSecret)
	token, _, err := p.Issue("m1", "+2348012345678", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for i := range token {
		for _, c := range []byte{'A', '_', '.'} {
			if token[i] == c {
				continue
			}
			mutated := token[:i] + string(c) + token[i+1:]
			if _, err := p.Verify(mutated); err != ErrInvalidToken {
				t.Fatalf("mutation at %d to %q verified: %v", i, c, err)
			}
		}
	}
	if _, err := p.Verify(token + "A"); err != ErrInvalidToken {
		t.Errorf("appended character: want ErrInvalidToken, got %v", err)
	}
}

func TestPreferenceTokens_Malformed(t *testing.T) {
	p := newPreferenceTokens(t, time.Now(), prefSecret)
	forged := func(payload string) string {
		encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
		return encoded + "." + sign(p.keys[0], encoded)
	}
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no separator", "abcdef"},
		{"empty signature", "abc."},
		{"empty payload", ".abc"},
		{"two separators", "a.b.c"},
		{"not base64 signature", "abc.!!!"},
		{"signed non-base64 payload", "%%%." + sign(p.keys[0], "%%%")},
		{"signed non-json payload", forged("not json")},
		{"signed wrong shape", forged(`{"merchantId":1}`)},
		{"signed missing phone", forged(`{"merchantId":"m1","exp":99999999999999}`)},
		{"signed missing exp", forged(`{"merchantId":"m1","phoneE164":"+2348012345678"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Verify(tt.token); err != ErrInvalidToken {
				t.Errorf("Verify: want ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestPreferenceTokens_SecretIsolationAndRotation(t *testing.T) {
	now := time.Now()
	oldSvc := newPreferenceTokens(t, now, otherPrefSecret)
	token, _, err := oldSvc.Issue("m1", "+2348012345678", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	fresh := newPreferenceTokens(t, now, prefSecret)
	if _, err := fresh.Verify(token); err != ErrInvalidToken {
		t.Errorf("token from another secret: want ErrInvalidToken, got %v", err)
	}

	rotated := newPreferenceTokens(t, now, prefSecret, otherPrefSecret)
	if _, err := rotated.Verify(token); err != nil {
		t.Errorf("token signed with previous secret: %v", err)
	}
	newToken, _, err := rotated.Issue("m1", "+2348012345678", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := fresh.Verify(newToken); err != nil {
		t.Errorf("rotated service should sign with the current secret: %v", err)
	}
}

func TestNewPreferenceTokens_WeakSecret(t *testing.T) {
	if _, err := NewPreferenceTokens("short"); err != ErrWeakSecret {
		t.Errorf("short secret: want ErrWeakSecret, got %v", err)
	}
	if _, err := NewPreferenceTokens(prefSecret, "short"); err != ErrWeakSecret {
		t.Errorf("short previous secret: want ErrWeakSecret, got %v", err)
	}
}
