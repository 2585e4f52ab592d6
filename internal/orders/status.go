package orders

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusCompleted  Status = "completed"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCompleted: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:  {StatusCompleted: true},
	StatusCancelled:  {},
	StatusCompleted:  {},
}

// Refund is handled downstream; the PAID -> REFUNDED edge exists in
// the table but nothing in this core takes it.
var validPaymentNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending:   {PaymentPaid: true, PaymentFailed: true, PaymentCancelled: true},
	PaymentFailed:    {PaymentPending: true, PaymentCancelled: true},
	PaymentPaid:      {PaymentRefunded: true},
	PaymentRefunded:  {},
	PaymentCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return validPaymentNext[from][to]
}
