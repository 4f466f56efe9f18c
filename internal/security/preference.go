package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

const (
	// MinPreferenceSecretLen is the minimum accepted secret length in bytes.
	MinPreferenceSecretLen = 32

	preferenceKeyInfo = "consent/preference-token/v1"
	preferenceKeyLen  = 32
)

// ErrWeakSecret is returned when a preference token secret is shorter than MinPreferenceSecretLen.
var ErrWeakSecret = errors.New("preference token secret too short")

var b64 = base64.RawURLEncoding

// PreferenceClaims is the payload carried by a preference-center link.
// Exp is in Unix seconds.
type PreferenceClaims struct {
	MerchantID string `json:"merchantId"`
	PhoneE164  string `json:"phoneE164"`
	Exp        int64  `json:"exp"`
}

// ExpiresAt returns Exp as a time.
func (c *PreferenceClaims) ExpiresAt() time.Time {
	return time.Unix(c.Exp, 0).UTC()
}

// PreferenceTokens issues and verifies stateless HMAC-SHA256 preference-center tokens.
// The token is base64url(JSON claims) + "." + base64url(HMAC over the encoded claims).
// Signing keys are derived from the configured secrets with HKDF-SHA256; the first key
// signs and every key is accepted on verify so secrets can be rotated.
type PreferenceTokens struct {
	keys [][]byte
	nowF func() time.Time
}

// NewPreferenceTokens derives signing keys from secret and any previous secrets still accepted.
func NewPreferenceTokens(secret string, previous ...string) (*PreferenceTokens, error) {
	p := &PreferenceTokens{nowF: time.Now}
	for _, s := range append([]string{secret}, previous...) {
		if len(s) < MinPreferenceSecretLen {
			return nil, ErrWeakSecret
		}
		key, err := deriveKey(s)
		if err != nil {
			return nil, err
		}
		p.keys = append(p.keys, key)
	}
	return p, nil
}

func deriveKey(secret string) ([]byte, error) {
	key := make([]byte, preferenceKeyLen)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(preferenceKeyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Issue returns a token for (merchantID, phoneE164) that expires after ttl.
// A ttl <= 0 yields a token that is already expired.
func (p *PreferenceTokens) Issue(merchantID, phoneE164 string, ttl time.Duration) (string, time.Time, error) {
	exp := p.nowF().Add(ttl).UTC().Truncate(time.Second)
	payload, err := json.Marshal(PreferenceClaims{
		MerchantID: merchantID,
		PhoneE164:  phoneE164,
		Exp:        exp.Unix(),
	})
	if err != nil {
		return "", time.Time{}, err
	}
	encoded := b64.EncodeToString(payload)
	return encoded + "." + sign(p.keys[0], encoded), exp, nil
}

// Verify returns the claims of a well-formed, correctly signed, unexpired token.
// Any failure returns ErrInvalidToken without saying which check failed.
func (p *PreferenceTokens) Verify(token string) (*PreferenceClaims, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || sig == "" {
		return nil, ErrInvalidToken
	}
	matched := 0
	for _, key := range p.keys {
		matched |= subtle.ConstantTimeCompare([]byte(sign(key, encoded)), []byte(sig))
	}
	if matched != 1 {
		return nil, ErrInvalidToken
	}
	payload, err := b64.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims PreferenceClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.MerchantID == "" || claims.PhoneE164 == "" || claims.Exp == 0 {
		return nil, ErrInvalidToken
	}
	if p.nowF().Unix() >= claims.Exp {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func sign(key []byte, encoded string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(encoded))
	return b64.EncodeToString(mac.Sum(nil))
}
