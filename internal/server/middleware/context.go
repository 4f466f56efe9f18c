package middleware

import "context"

type contextKey struct{ name string }

var (
	merchantIDKey = contextKey{"merchant_id"}
	subjectKey    = contextKey{"subject"}
)

// WithMerchant returns a context carrying the authenticated merchant and token subject.
func WithMerchant(ctx context.Context, merchantID, subject string) context.Context {
	ctx = context.WithValue(ctx, merchantIDKey, merchantID)
	ctx = context.WithValue(ctx, subjectKey, subject)
	return ctx
}

// GetMerchantID returns the merchant_id from context and true if set; otherwise "", false.
func GetMerchantID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(merchantIDKey).(string)
	return v, ok && v != ""
}

// GetSubject returns the token subject (the acting dashboard user) if set.
func GetSubject(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectKey).(string)
	return v, ok && v != ""
}
