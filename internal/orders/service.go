package orders

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stassart/go-shop-orders/internal/events"
	"github.com/stassart/go-shop-orders/internal/inventory"
	"github.com/stassart/go-shop-orders/internal/payment"
)

// Service orchestrates the checkout and payment lifecycle. Business
// rule violations surface verbatim; secondary effects (event publish,
// gateway intent cancel, stock restore) are best-effort and never
// fail the primary operation.
type Service struct {
	Repo    Repository
	Ledger  inventory.Ledger
	Gateway payment.Gateway
	Events  events.Publisher
	Log     *zap.Logger

	Currency string
	// ReserveAtCheckout mirrors the on_checkout reservation policy:
	// stock was not touched at cart-edit time, so the checkout
	// transaction must reserve it.
	ReserveAtCheckout bool
}

// CheckoutCart converts the owner's cart into a PENDING order and
// requests a payment intent for the order total. An empty cart fails
// before anything is persisted. Intent creation happens after the
// order commit; on gateway failure the order stays PENDING without an
// intent and the error is surfaced.
func (s *Service) CheckoutCart(ctx context.Context, userID string, d Delivery) (*Order, *payment.Intent, error) {
	if d.Type == "" {
		d.Type = DeliveryPickup
	}
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}

	o := &Order{
		UserID:      userID,
		OrderNumber: NewOrderNumber(),
		Delivery:    d,
	}
	o, err := s.Repo.CreateFromCart(ctx, userID, o, s.ReserveAtCheckout)
	if err != nil {
		return nil, nil, err
	}
	s.publish(events.EventOrderCheckedOut, o)

	intent, err := s.RequestIntent(ctx, o, map[string]string{"user_id": userID})
	if err != nil {
		return o, nil, err
	}
	return o, intent, nil
}

// CreateOrder builds an order directly from an item list, bypassing
// any cart. Validation, item insert and stock decrement commit
// together or not at all. Intent creation afterwards is best-effort,
// matching the cart-less flow's contract.
func (s *Service) CreateOrder(ctx context.Context, userID, email string, d Delivery, specs []ItemSpec) (*Order, *payment.Intent, error) {
	if d.Type == "" {
		d.Type = DeliveryPickup
	}
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}

	o := &Order{
		UserID:        userID,
		OrderNumber:   NewOrderNumber(),
		Delivery:      d,
		CustomerEmail: email,
	}
	o, err := s.Repo.CreateWithItems(ctx, o, specs)
	if err != nil {
		return nil, nil, err
	}
	s.publish(events.EventOrderCreated, o)

	intent, err := s.RequestIntent(ctx, o, map[string]string{"user_id": userID})
	if err != nil {
		s.Log.Warn("payment intent creation failed",
			zap.String("order_id", o.ID), zap.Error(err))
		return o, nil, nil
	}
	return o, intent, nil
}

// RequestIntent asks the gateway for an intent sized to the order
// total and persists the returned id on the order. The idempotency
// key is derived from the order number, so a retried call cannot
// charge twice.
func (s *Service) RequestIntent(ctx context.Context, o *Order, meta map[string]string) (*payment.Intent, error) {
	intent, err := s.Gateway.CreateIntent(ctx, payment.CreateIntentParams{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		AmountCents:    o.TotalCents,
		Currency:       s.Currency,
		CustomerEmail:  o.CustomerEmail,
		IdempotencyKey: "order-intent-" + o.OrderNumber,
		Metadata:       meta,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Repo.SetPaymentIntent(ctx, o.ID, intent.ID); err != nil {
		return nil, err
	}
	o.PaymentIntentID = intent.ID
	return intent, nil
}

// ProcessSuccessfulPayment verifies the settlement with the gateway
// and flips the order to PROCESSING/PAID. Safe to call repeatedly
// with the same intent id: an already paid order is returned
// unchanged, and the conditional update in MarkPaid lets exactly one
// concurrent caller win.
func (s *Service) ProcessSuccessfulPayment(ctx context.Context, orderID, intentID string) (*Order, error) {
	o, err := s.Repo.ByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentIntentID == "" || o.PaymentIntentID != intentID {
		return nil, ErrIntentMismatch
	}
	if o.PaymentStatus == PaymentPaid {
		return o, nil
	}
	if !CanTransition(o.Status, StatusProcessing) || !CanTransitionPayment(o.PaymentStatus, PaymentPaid) {
		return nil, ErrInvalidTransition
	}

	v, err := s.Gateway.Verify(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, fmt.Errorf("%w: status %s", ErrPaymentNotSettled, v.Status)
	}
	if v.AmountCents != o.TotalCents {
		return nil, fmt.Errorf("%w: expected %d, captured %d", ErrAmountMismatch, o.TotalCents, v.AmountCents)
	}

	changed, err := s.Repo.MarkPaid(ctx, o.ID, intentID)
	if err != nil {
		return nil, err
	}
	o, err = s.Repo.ByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(events.EventOrderPaid, o)
	}
	return o, nil
}

// CancelOrderPayment cancels an unpaid order: the outstanding gateway
// intent is cancelled best-effort, reserved stock is restored by the
// one caller that wins the reservation flip, and the order moves to
// CANCELLED.
func (s *Service) CancelOrderPayment(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.Repo.ByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == PaymentPaid {
		return nil, ErrAlreadyPaid
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, ErrInvalidTransition
	}

	if o.PaymentIntentID != "" {
		if err := s.Gateway.Cancel(ctx, o.PaymentIntentID); err != nil {
			s.Log.Warn("failed to cancel payment intent",
				zap.String("order_id", o.ID),
				zap.String("intent_id", o.PaymentIntentID),
				zap.Error(err))
		}
	}

	// The conditional flip in the repository decides exactly one winner;
	// a retry after a partial failure, or the loser of a concurrent
	// cancel, must not restore the same lines again.
	won, err := s.Repo.ClearStockReservation(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if won {
		for _, it := range o.Items {
			if err := s.Ledger.Adjust(ctx, it.ProductID, it.Quantity); err != nil {
				s.Log.Warn("failed to restore stock",
					zap.String("order_id", o.ID),
					zap.String("product_id", it.ProductID),
					zap.Int("quantity", it.Quantity),
					zap.Error(err))
			}
		}
	}

	if err := s.Repo.MarkCancelled(ctx, o.ID); err != nil {
		return nil, err
	}
	o, err = s.Repo.ByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.publish(events.EventOrderCancelled, o)
	return o, nil
}

func (s *Service) UserOrders(ctx context.Context, userID string) ([]Order, error) {
	return s.Repo.ByUser(ctx, userID)
}

// FindOrder loads an order, enforcing ownership when userID is set.
func (s *Service) FindOrder(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := s.Repo.ByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if userID != "" && o.UserID != userID {
		return nil, ErrForbidden
	}
	return o, nil
}

// PaymentInfo returns the order together with the current gateway
// view of its intent. Intent retrieval is best-effort.
func (s *Service) PaymentInfo(ctx context.Context, orderID, userID string) (*Order, *payment.Intent, payment.PublicConfig, error) {
	o, err := s.FindOrder(ctx, orderID, userID)
	if err != nil {
		return nil, nil, payment.PublicConfig{}, err
	}

	var intent *payment.Intent
	if o.PaymentIntentID != "" {
		intent, err = s.Gateway.Retrieve(ctx, o.PaymentIntentID)
		if err != nil {
			s.Log.Warn("failed to retrieve payment intent",
				zap.String("order_id", o.ID), zap.Error(err))
			intent = nil
		}
	}
	return o, intent, s.Gateway.PublicConfig(), nil
}

func (s *Service) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	return s.Repo.HasPurchased(ctx, userID, productID)
}

func (s *Service) publish(eventType string, o *Order) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(eventType, o.ID, events.OrderPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		GuestOrder:    o.IsGuest(),
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		TotalCents:    o.TotalCents,
	})
}
