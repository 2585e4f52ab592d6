package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stassart/go-shop-orders/internal/events"
	"github.com/stassart/go-shop-orders/internal/inventory"
	"github.com/stassart/go-shop-orders/internal/payment"
)

func newTestService(repo *fakeRepo, gw *fakeGateway) (*Service, *fakeLedger, *fakePublisher) {
	ledger := newFakeLedger()
	pub := &fakePublisher{}
	svc := &Service{
		Repo:     repo,
		Ledger:   ledger,
		Gateway:  gw,
		Events:   pub,
		Log:      zap.NewNop(),
		Currency: "usd",
	}
	return svc, ledger, pub
}

func TestCheckoutCart_EmptyCart(t *testing.T) {
	repo := newFakeRepo()
	svc, _, pub := newTestService(repo, &fakeGateway{})

	o, intent, err := svc.CheckoutCart(context.Background(), "u1", Delivery{})

	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Nil(t, o)
	assert.Nil(t, intent)
	assert.Empty(t, repo.orders)
	assert.Empty(t, pub.events)
}

func TestCheckoutCart_CreatesPendingOrderWithIntent(t *testing.T) {
	repo := newFakeRepo()
	repo.cartLines = []Item{
		{ProductID: "p1", Quantity: 2, UnitPriceCents: 1500},
		{ProductID: "p2", Quantity: 1, UnitPriceCents: 500},
	}
	gw := &fakeGateway{}
	svc, _, pub := newTestService(repo, gw)

	o, intent, err := svc.CheckoutCart(context.Background(), "u1", Delivery{Type: DeliveryCourier, Address: "1 Main St"})

	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, int64(3500), o.TotalCents)
	require.NotNil(t, intent)
	assert.Equal(t, intent.ID, o.PaymentIntentID)
	assert.Equal(t, 1, pub.count(events.EventOrderCheckedOut))

	require.Len(t, gw.created, 1)
	assert.Equal(t, int64(3500), gw.created[0].AmountCents)
	assert.Equal(t, "order-intent-"+o.OrderNumber, gw.created[0].IdempotencyKey)
}

func TestCheckoutCart_IntentFailureKeepsOrderPending(t *testing.T) {
	repo := newFakeRepo()
	repo.cartLines = []Item{{ProductID: "p1", Quantity: 1, UnitPriceCents: 2000}}
	gw := &fakeGateway{intentErr: payment.ErrUnavailable}
	svc, _, _ := newTestService(repo, gw)

	o, intent, err := svc.CheckoutCart(context.Background(), "u1", Delivery{})

	require.ErrorIs(t, err, payment.ErrUnavailable)
	require.NotNil(t, o)
	assert.Nil(t, intent)

	stored, err2 := repo.ByID(context.Background(), o.ID)
	require.NoError(t, err2)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Empty(t, stored.PaymentIntentID)
}

func TestCheckoutCart_ReserveAtCheckoutShortfallCommitsNothing(t *testing.T) {
	repo := newFakeRepo()
	repo.stock = map[string]int{"p1": 2}
	repo.cartLines = []Item{{ProductID: "p1", Quantity: 3, UnitPriceCents: 1000}}
	svc, _, pub := newTestService(repo, &fakeGateway{})
	svc.ReserveAtCheckout = true

	o, _, err := svc.CheckoutCart(context.Background(), "u1", Delivery{Type: DeliveryPickup})

	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Nil(t, o)
	assert.Empty(t, repo.orders)
	assert.Equal(t, 2, repo.stock["p1"])
	assert.Empty(t, pub.events)
}

func TestCheckoutCart_ReserveOnAddSkipsStockRecheck(t *testing.T) {
	repo := newFakeRepo()
	// The cart already holds the units, so catalog stock can be zero at
	// checkout time.
	repo.stock = map[string]int{"p1": 0}
	repo.cartLines = []Item{{ProductID: "p1", Quantity: 3, UnitPriceCents: 1000}}
	svc, _, _ := newTestService(repo, &fakeGateway{})

	o, intent, err := svc.CheckoutCart(context.Background(), "u1", Delivery{Type: DeliveryPickup})

	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, 0, repo.stock["p1"])
}

func TestCheckoutCart_InvalidDelivery(t *testing.T) {
	repo := newFakeRepo()
	repo.cartLines = []Item{{ProductID: "p1", Quantity: 1, UnitPriceCents: 100}}
	svc, _, _ := newTestService(repo, &fakeGateway{})

	_, _, err := svc.CheckoutCart(context.Background(), "u1", Delivery{Type: DeliveryCourier})
	require.ErrorIs(t, err, ErrMissingAddress)
	assert.Empty(t, repo.orders)

	_, _, err = svc.CheckoutCart(context.Background(), "u1", Delivery{Type: DeliveryPickup, Address: "somewhere"})
	require.ErrorIs(t, err, ErrAddressNotAllowed)
}

func TestCreateOrder_IntentFailureIsNotFatal(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{intentErr: errors.New("stripe down")}
	svc, _, pub := newTestService(repo, gw)

	o, intent, err := svc.CreateOrder(context.Background(), "u1", "u1@example.com",
		Delivery{}, []ItemSpec{{ProductID: "p1", Quantity: 3}})

	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Nil(t, intent)
	assert.Equal(t, 1, pub.count(events.EventOrderCreated))
}

func TestCreateOrder_NoItems(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo, &fakeGateway{})

	_, _, err := svc.CreateOrder(context.Background(), "u1", "", Delivery{}, nil)
	require.ErrorIs(t, err, ErrNoItems)
	assert.Empty(t, repo.orders)
}

func seedOrder(t *testing.T, repo *fakeRepo, total int64) *Order {
	t.Helper()
	repo.cartLines = []Item{{ProductID: "p1", Quantity: 1, UnitPriceCents: total}}
	o := &Order{UserID: "u1", OrderNumber: NewOrderNumber(), Delivery: Delivery{Type: DeliveryPickup}}
	o, err := repo.CreateFromCart(context.Background(), "u1", o, false)
	require.NoError(t, err)
	require.NoError(t, repo.SetPaymentIntent(context.Background(), o.ID, "pi_test"))
	o.PaymentIntentID = "pi_test"
	return o
}

func TestProcessSuccessfulPayment_HappyPathThenIdempotent(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{verification: payment.Verification{Valid: true, Status: "succeeded", AmountCents: 5000}}
	svc, _, pub := newTestService(repo, gw)
	o := seedOrder(t, repo, 5000)

	got, err := svc.ProcessSuccessfulPayment(context.Background(), o.ID, "pi_test")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
	assert.Equal(t, PaymentPaid, got.PaymentStatus)
	assert.Equal(t, 1, pub.count(events.EventOrderPaid))

	// Repeat confirmation: same terminal state, no second event, no
	// second gateway round trip.
	again, err := svc.ProcessSuccessfulPayment(context.Background(), o.ID, "pi_test")
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, again.PaymentStatus)
	assert.Equal(t, 1, pub.count(events.EventOrderPaid))
	assert.Equal(t, 1, gw.verifyCalls)
}

func TestProcessSuccessfulPayment_IntentMismatch(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo, &fakeGateway{})
	o := seedOrder(t, repo, 5000)

	_, err := svc.ProcessSuccessfulPayment(context.Background(), o.ID, "pi_other")
	require.ErrorIs(t, err, ErrIntentMismatch)
}

func TestProcessSuccessfulPayment_AmountMismatchLeavesOrderPending(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{verification: payment.Verification{Valid: true, Status: "succeeded", AmountCents: 100}}
	svc, _, pub := newTestService(repo, gw)
	o := seedOrder(t, repo, 5000)

	_, err := svc.ProcessSuccessfulPayment(context.Background(), o.ID, "pi_test")
	require.ErrorIs(t, err, ErrAmountMismatch)

	stored, _ := repo.ByID(context.Background(), o.ID)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, PaymentPending, stored.PaymentStatus)
	assert.Zero(t, pub.count(events.EventOrderPaid))
}

func TestProcessSuccessfulPayment_NotSettled(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{verification: payment.Verification{Valid: false, Status: "requires_payment_method"}}
	svc, _, _ := newTestService(repo, gw)
	o := seedOrder(t, repo, 5000)

	_, err := svc.ProcessSuccessfulPayment(context.Background(), o.ID, "pi_test")
	require.ErrorIs(t, err, ErrPaymentNotSettled)
}

func TestCancelOrderPayment_RestoresReservedStock(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{cancelErr: errors.New("network")}
	svc, ledger, pub := newTestService(repo, gw)
	o := seedOrder(t, repo, 5000)

	got, err := svc.CancelOrderPayment(context.Background(), o.ID)

	// A failing gateway cancel never blocks the order cancellation.
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, PaymentCancelled, got.PaymentStatus)
	assert.Equal(t, []string{"pi_test"}, gw.cancelled)
	assert.Equal(t, 1, ledger.adjusted["p1"])
	assert.Equal(t, 1, pub.count(events.EventOrderCancelled))

	// A cancelled order has no further transitions.
	_, err = svc.CancelOrderPayment(context.Background(), o.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 1, ledger.adjusted["p1"])
}

func TestCancelOrderPayment_RetryAfterFailureRestoresOnce(t *testing.T) {
	repo := newFakeRepo()
	repo.cartLines = []Item{{ProductID: "p1", Quantity: 3, UnitPriceCents: 1000}}
	o := &Order{UserID: "u1", OrderNumber: NewOrderNumber(), Delivery: Delivery{Type: DeliveryPickup}}
	o, err := repo.CreateFromCart(context.Background(), "u1", o, false)
	require.NoError(t, err)
	repo.markCancelledErr = errors.New("connection reset")
	svc, ledger, pub := newTestService(repo, &fakeGateway{})

	// First attempt restores the reserved units, then fails to persist
	// the cancellation.
	_, err = svc.CancelOrderPayment(context.Background(), o.ID)
	require.Error(t, err)
	assert.Equal(t, 3, ledger.adjusted["p1"])

	// The retry completes the cancellation without restoring the same
	// lines a second time.
	got, err := svc.CancelOrderPayment(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 3, ledger.adjusted["p1"])
	assert.Equal(t, 1, pub.count(events.EventOrderCancelled))
}

func TestCancelOrderPayment_GuestOrderDoesNotTouchStock(t *testing.T) {
	repo := newFakeRepo()
	svc, ledger, _ := newTestService(repo, &fakeGateway{})

	o := &Order{GuestToken: "guest_abc", OrderNumber: NewOrderNumber(), Delivery: Delivery{Type: DeliveryPickup}, TotalCents: 700}
	o, err := repo.CreateGuest(context.Background(), o, []Item{{ProductID: "p1", Quantity: 7, UnitPriceCents: 100}})
	require.NoError(t, err)

	got, err := svc.CancelOrderPayment(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Empty(t, ledger.adjusted)
}

func TestCancelOrderPayment_AlreadyPaid(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{verification: payment.Verification{Valid: true, Status: "succeeded", AmountCents: 5000}}
	svc, _, _ := newTestService(repo, gw)
	o := seedOrder(t, repo, 5000)

	_, err := svc.ProcessSuccessfulPayment(context.Background(), o.ID, "pi_test")
	require.NoError(t, err)

	_, err = svc.CancelOrderPayment(context.Background(), o.ID)
	require.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestFindOrder_Ownership(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo, &fakeGateway{})
	o := seedOrder(t, repo, 5000)

	got, err := svc.FindOrder(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = svc.FindOrder(context.Background(), o.ID, "u2")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.FindOrder(context.Background(), "missing", "u1")
	require.ErrorIs(t, err, ErrNotFound)
}
