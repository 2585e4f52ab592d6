package orders

import "errors"

var (
	ErrNotFound          = errors.New("orders: order not found")
	ErrForbidden         = errors.New("orders: not the order owner")
	ErrEmptyCart         = errors.New("orders: cart is empty")
	ErrNoItems           = errors.New("orders: order has no items")
	ErrInvalidQuantity   = errors.New("orders: quantity must be greater than zero")
	ErrDuplicateNumber   = errors.New("orders: duplicate order number")
	ErrIntentAlreadySet  = errors.New("orders: payment intent already assigned")
	ErrIntentMismatch    = errors.New("orders: payment intent mismatch")
	ErrAmountMismatch    = errors.New("orders: captured amount does not match order total")
	ErrPaymentNotSettled = errors.New("orders: payment intent not succeeded")
	ErrInvalidTransition = errors.New("orders: illegal status transition")
	ErrAlreadyPaid       = errors.New("orders: order already paid")

	ErrInvalidDeliveryType = errors.New("orders: unknown delivery type")
	ErrMissingAddress      = errors.New("orders: delivery address required")
	ErrAddressNotAllowed   = errors.New("orders: delivery address not allowed for pickup")
)
