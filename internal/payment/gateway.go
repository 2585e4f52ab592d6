package payment

import (
	"context"
	"errors"
)

// MinimumChargeCents is the smallest amount the gateway accepts;
// anything below is rejected before any network call.
const MinimumChargeCents = 50

var (
	ErrUnavailable    = errors.New("payment: gateway is not configured")
	ErrAmountTooSmall = errors.New("payment: amount below minimum charge")
)

type CreateIntentParams struct {
	OrderID        string
	OrderNumber    string
	AmountCents    int64
	Currency       string
	CustomerEmail  string
	IdempotencyKey string
	Metadata       map[string]string
}

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret,omitempty"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

type Verification struct {
	Valid       bool   `json:"valid"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
	OrderID     string `json:"order_id,omitempty"`
}

type PublicConfig struct {
	PublishableKey string `json:"publishable_key,omitempty"`
	Configured     bool   `json:"configured"`
	Currency       string `json:"currency"`
}

// Gateway is the thin contract around the external payment provider.
type Gateway interface {
	CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error)
	Retrieve(ctx context.Context, id string) (*Intent, error)
	Verify(ctx context.Context, id string) (*Verification, error)
	Cancel(ctx context.Context, id string) error

	// ConfirmOnServer confirms an intent manually. Idempotent: an
	// already succeeded intent is a no-op success.
	ConfirmOnServer(ctx context.Context, id string) (bool, error)

	PublicConfig() PublicConfig
	Available() bool
}
