package redisx

import "time"

const (
	// Cache order status, scoped to the owning user:
	// order_status:{user_id}:{order_id} -> {"status": "...", "payment_status": "..."}
	KeyOrderStatus = "order_status:%s:%s"

	// Dedup payment processing: dedup:payment:{order_id}:{intent_id}
	KeyPaymentDedup = "dedup:payment:%s:%s"
)

var (
	TTLStatusCache  = 5 * time.Minute
	TTLPaymentDedup = 48 * time.Hour
)
