package events

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated    = "OrderCreated"
	EventOrderCheckedOut = "OrderCheckedOut"
	EventOrderPaid       = "OrderPaid"
	EventOrderCancelled  = "OrderCancelled"
	EventCartSwept       = "CartSwept"
)

// Topic carries every order lifecycle event, partitioned by order id so
// events for one order keep their ordering.
const Topic = "shop.orders"

func PartitionKey(orderID string) []byte { return []byte(orderID) }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderPayload struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	UserID        string `json:"user_id,omitempty"`
	GuestOrder    bool   `json:"guest_order,omitempty"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	TotalCents    int64  `json:"total_cents"`
}

type CartSweptPayload struct {
	CartID        string `json:"cart_id"`
	OwnerID       string `json:"owner_id"`
	StockRestored bool   `json:"stock_restored"`
}
