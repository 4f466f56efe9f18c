package security

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is the single negative result for merchant access tokens and preference tokens.
var ErrInvalidToken = errors.New("invalid token")

// MerchantClaims holds JWT claims of a merchant API access token.
type MerchantClaims struct {
	jwt.RegisteredClaims
	MerchantID string `json:"merchant_id"`
}

// MerchantTokens validates merchant access JWTs signed with RS256 or ES256.
// The signing key is optional; only cmd/seed and tests issue tokens.
type MerchantTokens struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	nowF       func() time.Time
}

// NewMerchantTokens returns a validator for the given public key. privateKey may be nil.
func NewMerchantTokens(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string) *MerchantTokens {
	return &MerchantTokens{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		nowF:       time.Now,
	}
}

// Issue signs an access token for merchantID valid for ttl. Returns the token and its expiry.
func (m *MerchantTokens) Issue(merchantID, subject string, ttl time.Duration) (string, time.Time, error) {
	if m.privateKey == nil || merchantID == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	var method jwt.SigningMethod
	switch KeyAlg(m.privateKey.Public()) {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "ES256":
		method = jwt.SigningMethodES256
	default:
		return "", time.Time{}, ErrInvalidKey
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := m.nowF().UTC()
	exp := now.Add(ttl)
	claims := MerchantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		MerchantID: merchantID,
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString(m.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Validate checks signature, expiry, issuer and audience and returns the claims.
// Every failure yields ErrInvalidToken.
func (m *MerchantTokens) Validate(tokenString string) (*MerchantClaims, error) {
	claims := &MerchantClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return m.publicKey, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithTimeFunc(m.nowF), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != m.issuer || !slices.Contains(claims.Audience, m.audience) {
		return nil, ErrInvalidToken
	}
	if claims.MerchantID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
