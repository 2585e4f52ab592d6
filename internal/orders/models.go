package orders

import "time"

type DeliveryType string

const (
	DeliveryPickup  DeliveryType = "pickup"
	DeliveryCourier DeliveryType = "courier"
	DeliveryExpress DeliveryType = "express"
)

// Delivery is a tagged variant per delivery type, validated at the
// boundary: courier and express need an address, pickup must not
// carry one.
type Delivery struct {
	Type     DeliveryType `json:"type"`
	Address  string       `json:"address,omitempty"`
	Date     string       `json:"date,omitempty"`
	TimeSlot string       `json:"time_slot,omitempty"`
	Notes    string       `json:"notes,omitempty"`
}

func (d Delivery) Validate() error {
	switch d.Type {
	case DeliveryPickup:
		if d.Address != "" {
			return ErrAddressNotAllowed
		}
	case DeliveryCourier, DeliveryExpress:
		if d.Address == "" {
			return ErrMissingAddress
		}
	default:
		return ErrInvalidDeliveryType
	}
	return nil
}

// Order is immutable once payable: orders are born PENDING at
// checkout, carts live in their own table until then.
type Order struct {
	ID              string        `json:"id"`
	OrderNumber     string        `json:"order_number"`
	UserID          string        `json:"user_id,omitempty"`
	GuestToken      string        `json:"-"`
	Status          Status        `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	Delivery        Delivery      `json:"delivery"`
	CustomerName    string        `json:"customer_name,omitempty"`
	CustomerEmail   string        `json:"customer_email,omitempty"`
	CustomerPhone   string        `json:"customer_phone,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	TotalCents      int64         `json:"total_cents"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	StockReserved   bool          `json:"-"`
	Items           []Item        `json:"items"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	PaidAt          *time.Time    `json:"paid_at,omitempty"`
}

func (o *Order) IsGuest() bool { return o.GuestToken != "" }

type Item struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// ItemSpec is a client-declared order line; the price always comes
// from the catalog.
type ItemSpec struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}
