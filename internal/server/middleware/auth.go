// Package middleware holds the HTTP middleware of the consent API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/itsfredrick/vayva-platform-sub007/internal/security"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/respond"
)

const bearerPrefix = "bearer "

// TokenValidator validates merchant access tokens.
type TokenValidator interface {
	Validate(token string) (*security.MerchantClaims, error)
}

// Auth returns middleware that requires a valid merchant Bearer token and stores
// merchant_id and subject in the request context.
func Auth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r.Header.Get("Authorization"))
			if token == "" || tokens == nil {
				respond.Error(w, r, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			claims, err := tokens.Validate(token)
			if err != nil {
				respond.Error(w, r, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			ctx := WithMerchant(r.Context(), claims.MerchantID, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearer returns the Bearer token from an Authorization header value, or "".
func extractBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
