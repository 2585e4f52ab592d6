package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/stassart/go-shop-orders/internal/cart"
	"github.com/stassart/go-shop-orders/internal/guest"
	"github.com/stassart/go-shop-orders/internal/inventory"
	"github.com/stassart/go-shop-orders/internal/orders"
	"github.com/stassart/go-shop-orders/internal/payment"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy to status codes. Unexpected
// errors stay opaque: the message is logged, never echoed.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error("internal error", zap.Error(err))
		writeJSON(w, code, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrEmptyCart),
		errors.Is(err, orders.ErrNoItems),
		errors.Is(err, orders.ErrInvalidDeliveryType),
		errors.Is(err, orders.ErrMissingAddress),
		errors.Is(err, orders.ErrAddressNotAllowed),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, guest.ErrInvalidToken),
		errors.Is(err, payment.ErrAmountTooSmall):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, inventory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrForbidden),
		errors.Is(err, cart.ErrForbidden),
		errors.Is(err, guest.ErrAccessDenied),
		errors.Is(err, guest.ErrTokenExpired):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrDuplicateNumber),
		errors.Is(err, orders.ErrIntentAlreadySet),
		errors.Is(err, orders.ErrAlreadyPaid),
		errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, orders.ErrIntentMismatch),
		errors.Is(err, orders.ErrAmountMismatch),
		errors.Is(err, orders.ErrPaymentNotSettled):
		return http.StatusPaymentRequired
	case errors.Is(err, payment.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
