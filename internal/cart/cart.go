package cart

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("cart: not found")
	ErrItemNotFound    = errors.New("cart: item not found")
	ErrForbidden       = errors.New("cart: item belongs to another cart")
	ErrInvalidQuantity = errors.New("cart: invalid quantity")
)

// Cart is mutable pre-checkout state, distinct from an Order. Checkout
// converts it and deletes it in the same transaction.
type Cart struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	TotalCents int64     `json:"total_cents"`
	Items      []Item    `json:"items"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Item carries the unit price snapshotted at add time; later catalog
// price changes do not touch existing lines.
type Item struct {
	ID             string `json:"id"`
	CartID         string `json:"cart_id"`
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}
