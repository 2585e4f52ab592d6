package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stassart/go-shop-orders/internal/inventory"
)

// memStore mirrors the pgx store's semantics: price snapshots at add
// time, merged lines, availability checks in both policies and stock
// movement only when reserving.
type memStore struct {
	mu  sync.Mutex
	seq int

	carts map[string]*Cart // by cart id
	owner map[string]string

	stock  map[string]int
	prices map[string]int64
}

func newMemStore() *memStore {
	return &memStore{
		carts:  map[string]*Cart{},
		owner:  map[string]string{},
		stock:  map[string]int{},
		prices: map[string]int64{},
	}
}

var _ Store = (*memStore)(nil)

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) ByOwner(_ context.Context, ownerID string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.owner[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.snapshot(s.carts[id]), nil
}

func (s *memStore) Create(_ context.Context, ownerID string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.owner[ownerID]; ok {
		return s.snapshot(s.carts[id]), nil
	}
	c := &Cart{ID: s.nextID("cart"), OwnerID: ownerID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.carts[c.ID] = c
	s.owner[ownerID] = c.ID
	return s.snapshot(c), nil
}

func (s *memStore) Item(_ context.Context, itemID string) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.carts {
		for _, it := range c.Items {
			if it.ID == itemID {
				cp := it
				return &cp, nil
			}
		}
	}
	return nil, ErrItemNotFound
}

func (s *memStore) AddLine(_ context.Context, cartID, productID string, qty int, reserve bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cartID]
	if !ok {
		return ErrNotFound
	}
	price, ok := s.prices[productID]
	if !ok {
		return inventory.ErrNotFound
	}
	if s.stock[productID] < qty {
		return inventory.ErrInsufficientStock
	}
	if reserve {
		s.stock[productID] -= qty
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += qty
			s.recompute(c)
			return nil
		}
	}
	c.Items = append(c.Items, Item{
		ID: s.nextID("item"), CartID: cartID, ProductID: productID,
		Quantity: qty, UnitPriceCents: price,
	})
	s.recompute(c)
	return nil
}

func (s *memStore) SetLineQuantity(_ context.Context, cartID, itemID string, qty int, reserve bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cartID]
	if !ok {
		return ErrNotFound
	}
	for i := range c.Items {
		it := &c.Items[i]
		if it.ID != itemID {
			continue
		}
		delta := qty - it.Quantity
		if delta > 0 && s.stock[it.ProductID] < delta {
			return inventory.ErrInsufficientStock
		}
		if reserve {
			s.stock[it.ProductID] -= delta
		}
		if qty == 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		} else {
			it.Quantity = qty
		}
		s.recompute(c)
		return nil
	}
	return ErrItemNotFound
}

func (s *memStore) Clear(_ context.Context, cartID string, restock bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cartID]
	if !ok {
		return ErrNotFound
	}
	s.clearLocked(c, restock)
	return nil
}

func (s *memStore) Stale(_ context.Context, cutoff time.Time) ([]Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Cart
	for _, c := range s.carts {
		if c.UpdatedAt.Before(cutoff) {
			out = append(out, *s.snapshot(c))
		}
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, cartID string, restock bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cartID]
	if !ok {
		return ErrNotFound
	}
	s.clearLocked(c, restock)
	delete(s.owner, c.OwnerID)
	delete(s.carts, cartID)
	return nil
}

func (s *memStore) clearLocked(c *Cart, restock bool) {
	if restock {
		for _, it := range c.Items {
			s.stock[it.ProductID] += it.Quantity
		}
	}
	c.Items = nil
	s.recompute(c)
}

func (s *memStore) recompute(c *Cart) {
	c.TotalCents = 0
	for _, it := range c.Items {
		c.TotalCents += it.UnitPriceCents * int64(it.Quantity)
	}
	c.UpdatedAt = time.Now()
}

func (s *memStore) snapshot(c *Cart) *Cart {
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	return &cp
}

type capturedEvent struct {
	Type          string
	CorrelationID string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *fakePublisher) Publish(eventType, correlationID string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{eventType, correlationID})
}
