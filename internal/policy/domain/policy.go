package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a send policy does not exist for the merchant.
var ErrNotFound = errors.New("send policy not found")

// SendPolicy is a merchant-owned Rego module evaluated after the consent decision allowed a send.
// Rules must declare package consent.send_policy with boolean allow and string reason.
type SendPolicy struct {
	ID         string    `json:"id"`
	MerchantID string    `json:"merchantId"`
	Name       string    `json:"name"`
	Rules      string    `json:"rules"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
