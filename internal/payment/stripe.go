package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"
)

// StripeGateway drives Stripe payment intents. The HTTP client is
// bounded by a timeout and network retries are disabled so that a
// confirmation call can never fire twice on its own; idempotency on
// create comes from the caller-supplied key instead.
type StripeGateway struct {
	api            *client.API
	publishableKey string
	currency       string
	configured     bool
	log            *zap.Logger
}

var _ Gateway = (*StripeGateway)(nil)

func NewStripeGateway(secretKey, publishableKey, currency string, timeout time.Duration, log *zap.Logger) *StripeGateway {
	g := &StripeGateway{
		publishableKey: publishableKey,
		currency:       currency,
		log:            log,
	}
	if secretKey == "" {
		log.Warn("stripe secret key not set, payments disabled")
		return g
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	})
	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	g.api = api
	g.configured = true
	return g
}

func (g *StripeGateway) Available() bool { return g.configured }

func (g *StripeGateway) PublicConfig() PublicConfig {
	return PublicConfig{
		PublishableKey: g.publishableKey,
		Configured:     g.configured,
		Currency:       g.currency,
	}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	if !g.configured {
		return nil, ErrUnavailable
	}
	if p.AmountCents < MinimumChargeCents {
		return nil, fmt.Errorf("%w: %d", ErrAmountTooSmall, p.AmountCents)
	}
	currency := p.Currency
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(p.AmountCents),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Description:        stripe.String(fmt.Sprintf("Payment for order %s", p.OrderNumber)),
		Confirm:            stripe.Bool(false),
	}
	params.Context = ctx
	if p.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(p.CustomerEmail)
	}
	if p.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(p.IdempotencyKey)
	}
	params.AddMetadata("order_id", p.OrderID)
	params.AddMetadata("order_number", p.OrderNumber)
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		g.log.Error("stripe payment intent creation failed",
			zap.String("order_id", p.OrderID), zap.Error(err))
		return nil, wrapStripeErr("create intent", err)
	}
	g.log.Info("payment intent created",
		zap.String("intent_id", pi.ID),
		zap.String("order_number", p.OrderNumber))
	return intentFrom(pi), nil
}

func (g *StripeGateway) Retrieve(ctx context.Context, id string) (*Intent, error) {
	if !g.configured {
		return nil, ErrUnavailable
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, wrapStripeErr("retrieve intent", err)
	}
	return intentFrom(pi), nil
}

func (g *StripeGateway) Verify(ctx context.Context, id string) (*Verification, error) {
	if !g.configured {
		return nil, ErrUnavailable
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, wrapStripeErr("verify intent", err)
	}
	return &Verification{
		Valid:       pi.Status == stripe.PaymentIntentStatusSucceeded,
		Status:      string(pi.Status),
		AmountCents: pi.Amount,
		OrderID:     pi.Metadata["order_id"],
	}, nil
}

func (g *StripeGateway) Cancel(ctx context.Context, id string) error {
	if !g.configured {
		return ErrUnavailable
	}
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := g.api.PaymentIntents.Cancel(id, params); err != nil {
		return wrapStripeErr("cancel intent", err)
	}
	g.log.Info("payment intent cancelled", zap.String("intent_id", id))
	return nil
}

func (g *StripeGateway) ConfirmOnServer(ctx context.Context, id string) (bool, error) {
	if !g.configured {
		return false, ErrUnavailable
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return false, wrapStripeErr("confirm intent", err)
	}
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		return true, nil
	}
	if pi.Status == stripe.PaymentIntentStatusRequiresConfirmation {
		confirmParams := &stripe.PaymentIntentConfirmParams{}
		confirmParams.Context = ctx
		confirmed, err := g.api.PaymentIntents.Confirm(id, confirmParams)
		if err != nil {
			return false, wrapStripeErr("confirm intent", err)
		}
		return confirmed.Status == stripe.PaymentIntentStatusSucceeded, nil
	}
	g.log.Warn("payment intent in unexpected state",
		zap.String("intent_id", id), zap.String("status", string(pi.Status)))
	return false, nil
}

func intentFrom(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
	}
}

// A response from Stripe, even an error one, means the gateway is
// reachable; anything else (DNS, timeout) surfaces as unavailability.
func wrapStripeErr(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("payment: %s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
