package cart

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Service owns the single in-progress cart per identity.
type Service struct {
	Store Store
	Log   *zap.Logger

	// ReserveOnAdd commits stock at cart-edit time. When false the
	// store only checks availability and checkout reserves.
	ReserveOnAdd bool
}

// GetOrCreate returns the owner's cart, creating an empty one if
// absent. The unique index on owner_id keeps the single-cart
// invariant under concurrent first requests.
func (s *Service) GetOrCreate(ctx context.Context, ownerID string) (*Cart, error) {
	c, err := s.Store.ByOwner(ctx, ownerID)
	if errors.Is(err, ErrNotFound) {
		return s.Store.Create(ctx, ownerID)
	}
	return c, err
}

func (s *Service) AddItem(ctx context.Context, ownerID, productID string, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	c, err := s.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.Store.AddLine(ctx, c.ID, productID, qty, s.ReserveOnAdd); err != nil {
		return nil, err
	}
	return s.Store.ByOwner(ctx, ownerID)
}

// UpdateItem sets a line to an absolute quantity; zero removes it.
func (s *Service) UpdateItem(ctx context.Context, ownerID, itemID string, qty int) (*Cart, error) {
	if qty < 0 {
		return nil, ErrInvalidQuantity
	}
	c, err := s.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	it, err := s.Store.Item(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.CartID != c.ID {
		return nil, ErrForbidden
	}
	if err := s.Store.SetLineQuantity(ctx, c.ID, itemID, qty, s.ReserveOnAdd); err != nil {
		return nil, err
	}
	return s.Store.ByOwner(ctx, ownerID)
}

func (s *Service) RemoveItem(ctx context.Context, ownerID, itemID string) (*Cart, error) {
	return s.UpdateItem(ctx, ownerID, itemID, 0)
}

// Clear restores every reserved quantity and empties the cart.
func (s *Service) Clear(ctx context.Context, ownerID string) (*Cart, error) {
	c, err := s.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.Store.Clear(ctx, c.ID, s.ReserveOnAdd); err != nil {
		return nil, err
	}
	return s.Store.ByOwner(ctx, ownerID)
}
