package guest

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stassart/go-shop-orders/internal/inventory"
	"github.com/stassart/go-shop-orders/internal/orders"
	"github.com/stassart/go-shop-orders/internal/payment"
)

type ItemDTO struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type CreateOrderDTO struct {
	Delivery      orders.Delivery `json:"delivery"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerPhone string          `json:"customer_phone"`
	Notes         string          `json:"notes"`
	Items         []ItemDTO       `json:"items"`
}

// Service adapts the checkout flow for buyers identified only by an
// opaque client-supplied token instead of an account id.
type Service struct {
	Repo   orders.Repository
	Ledger inventory.Ledger
	Orders *orders.Service
	Tokens *TokenIssuer
	Log    *zap.Logger
}

// CreateOrder builds a guest order from client-declared items. The
// catalog price wins when the product exists; the declared unit price
// only covers products this core cannot see. Stock is not reserved on
// this path. Returns the signed access token for later guest calls.
func (s *Service) CreateOrder(ctx context.Context, dto CreateOrderDTO, guestToken string) (*orders.Order, *payment.Intent, string, error) {
	if !strings.HasPrefix(guestToken, TokenPrefix) {
		return nil, nil, "", ErrInvalidToken
	}
	if len(dto.Items) == 0 {
		return nil, nil, "", orders.ErrNoItems
	}
	if dto.Delivery.Type == "" {
		dto.Delivery.Type = orders.DeliveryPickup
	}
	if err := dto.Delivery.Validate(); err != nil {
		return nil, nil, "", err
	}

	var total int64
	items := make([]orders.Item, 0, len(dto.Items))
	for _, it := range dto.Items {
		if it.Quantity <= 0 {
			return nil, nil, "", orders.ErrInvalidQuantity
		}
		price := it.UnitPriceCents
		if p, err := s.Ledger.Product(ctx, it.ProductID); err == nil {
			price = p.PriceCents
		} else {
			s.Log.Warn("guest order references unknown product",
				zap.String("product_id", it.ProductID), zap.Error(err))
		}
		total += price * int64(it.Quantity)
		items = append(items, orders.Item{
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPriceCents: price,
		})
	}

	o := &orders.Order{
		GuestToken:    guestToken,
		OrderNumber:   orders.NewOrderNumber(),
		Delivery:      dto.Delivery,
		CustomerName:  dto.CustomerName,
		CustomerEmail: dto.CustomerEmail,
		CustomerPhone: dto.CustomerPhone,
		Notes:         dto.Notes,
		TotalCents:    total,
	}
	o, err := s.Repo.CreateGuest(ctx, o, items)
	if err != nil {
		return nil, nil, "", err
	}
	access := s.Tokens.Issue(o.ID, time.Now())

	intent, err := s.Orders.RequestIntent(ctx, o, map[string]string{"guest_token": guestToken})
	if err != nil {
		s.Log.Warn("guest payment intent creation failed",
			zap.String("order_id", o.ID), zap.Error(err))
		return o, nil, access, nil
	}
	return o, intent, access, nil
}

// FindOrder loads a guest order after verifying the signed access token.
func (s *Service) FindOrder(ctx context.Context, orderID, accessToken string) (*orders.Order, error) {
	if err := s.Tokens.Verify(accessToken, orderID, time.Now()); err != nil {
		return nil, err
	}
	o, err := s.Repo.ByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsGuest() {
		return nil, ErrAccessDenied
	}
	return o, nil
}

// ProcessPayment verifies the access token, then runs the shared
// idempotent settlement path.
func (s *Service) ProcessPayment(ctx context.Context, orderID, intentID, accessToken string) (*orders.Order, error) {
	if _, err := s.FindOrder(ctx, orderID, accessToken); err != nil {
		return nil, err
	}
	return s.Orders.ProcessSuccessfulPayment(ctx, orderID, intentID)
}
