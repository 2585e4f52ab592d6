package orders

import (
	"context"
	"fmt"
	"sync"

	"github.com/stassart/go-shop-orders/internal/inventory"
	"github.com/stassart/go-shop-orders/internal/payment"
)

// fakeRepo implements Repository in memory with the same conditional
// update semantics as the pgx implementation.
type fakeRepo struct {
	mu     sync.Mutex
	seq    int
	orders map[string]*Order

	// cartLines is what CreateFromCart converts; nil means no cart.
	cartLines []Item

	// stock backs the reserve-at-checkout path when non-nil.
	stock map[string]int

	createErr error

	// markCancelledErr fails the next MarkCancelled, once.
	markCancelledErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: map[string]*Order{}}
}

func (r *fakeRepo) nextID() string {
	r.seq++
	return fmt.Sprintf("ord-%d", r.seq)
}

func (r *fakeRepo) put(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	r.orders[o.ID] = &cp
	return o
}

func (r *fakeRepo) get(id string) (*Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp, nil
}

func (r *fakeRepo) CreateFromCart(_ context.Context, ownerID string, o *Order, reserve bool) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	if len(r.cartLines) == 0 {
		return nil, ErrEmptyCart
	}
	if reserve {
		for _, it := range r.cartLines {
			if r.stock != nil && r.stock[it.ProductID] < it.Quantity {
				return nil, fmt.Errorf("product %s: %w", it.ProductID, inventory.ErrInsufficientStock)
			}
		}
		if r.stock != nil {
			for _, it := range r.cartLines {
				r.stock[it.ProductID] -= it.Quantity
			}
		}
	}
	o.ID = r.nextID()
	o.UserID = ownerID
	o.Status = StatusPending
	o.PaymentStatus = PaymentPending
	o.StockReserved = true
	o.Items = append([]Item(nil), r.cartLines...)
	for _, it := range o.Items {
		o.TotalCents += it.UnitPriceCents * int64(it.Quantity)
	}
	r.cartLines = nil
	r.put(o)
	return o, nil
}

func (r *fakeRepo) CreateWithItems(_ context.Context, o *Order, specs []ItemSpec) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	if len(specs) == 0 {
		return nil, ErrNoItems
	}
	o.ID = r.nextID()
	o.Status = StatusPending
	o.PaymentStatus = PaymentPending
	o.StockReserved = true
	for _, sp := range specs {
		if sp.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		o.Items = append(o.Items, Item{ProductID: sp.ProductID, Quantity: sp.Quantity, UnitPriceCents: 1000})
		o.TotalCents += 1000 * int64(sp.Quantity)
	}
	r.put(o)
	return o, nil
}

func (r *fakeRepo) CreateGuest(_ context.Context, o *Order, items []Item) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	o.ID = r.nextID()
	o.Status = StatusPending
	o.PaymentStatus = PaymentPending
	o.StockReserved = false
	o.Items = append([]Item(nil), items...)
	r.put(o)
	return o, nil
}

func (r *fakeRepo) ByID(_ context.Context, id string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r *fakeRepo) ByUser(_ context.Context, userID string) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *fakeRepo) SetPaymentIntent(_ context.Context, orderID, intentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.PaymentIntentID != "" {
		return ErrIntentAlreadySet
	}
	o.PaymentIntentID = intentID
	return nil
}

func (r *fakeRepo) MarkPaid(_ context.Context, orderID, intentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return false, ErrNotFound
	}
	if o.PaymentStatus == PaymentPaid || o.PaymentIntentID != intentID {
		return false, nil
	}
	o.Status = StatusProcessing
	o.PaymentStatus = PaymentPaid
	return true, nil
}

func (r *fakeRepo) MarkCancelled(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markCancelledErr != nil {
		err := r.markCancelledErr
		r.markCancelledErr = nil
		return err
	}
	o, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Status = StatusCancelled
	o.PaymentStatus = PaymentCancelled
	return nil
}

func (r *fakeRepo) ClearStockReservation(_ context.Context, orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return false, ErrNotFound
	}
	if !o.StockReserved {
		return false, nil
	}
	o.StockReserved = false
	return true, nil
}

func (r *fakeRepo) HasPurchased(_ context.Context, userID, productID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.UserID != userID || o.Status != StatusCompleted {
			continue
		}
		for _, it := range o.Items {
			if it.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	stock    map[string]int
	adjusted map[string]int
	err      error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{stock: map[string]int{}, adjusted: map[string]int{}}
}

func (l *fakeLedger) Product(_ context.Context, id string) (*inventory.Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.stock[id]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return &inventory.Product{ID: id, Stock: n}, nil
}

func (l *fakeLedger) Adjust(_ context.Context, id string, delta int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.stock[id] += delta
	l.adjusted[id] += delta
	return nil
}

// fakeGateway scripts the external provider.
type fakeGateway struct {
	intent    *payment.Intent
	intentErr error

	verification payment.Verification
	verifyErr    error
	verifyCalls  int

	cancelErr error
	cancelled []string

	created []payment.CreateIntentParams
}

func (g *fakeGateway) CreateIntent(_ context.Context, p payment.CreateIntentParams) (*payment.Intent, error) {
	g.created = append(g.created, p)
	if g.intentErr != nil {
		return nil, g.intentErr
	}
	if g.intent != nil {
		return g.intent, nil
	}
	return &payment.Intent{ID: "pi_" + p.OrderNumber, AmountCents: p.AmountCents, Currency: p.Currency, Status: "requires_payment_method"}, nil
}

func (g *fakeGateway) Retrieve(_ context.Context, id string) (*payment.Intent, error) {
	return &payment.Intent{ID: id, Status: g.verification.Status}, nil
}

func (g *fakeGateway) Verify(_ context.Context, _ string) (*payment.Verification, error) {
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	v := g.verification
	return &v, nil
}

func (g *fakeGateway) Cancel(_ context.Context, id string) error {
	g.cancelled = append(g.cancelled, id)
	return g.cancelErr
}

func (g *fakeGateway) ConfirmOnServer(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func (g *fakeGateway) PublicConfig() payment.PublicConfig {
	return payment.PublicConfig{Configured: true, Currency: "usd"}
}

func (g *fakeGateway) Available() bool { return true }

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) Publish(eventType, _ string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *fakePublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}
