package orders

import (
	"fmt"
	"math/rand"
	"time"
)

// NewOrderNumber returns the human-facing order number, e.g.
// ORD-1767225600000-0042. Uniqueness is enforced by the database.
func NewOrderNumber() string {
	return fmt.Sprintf("ORD-%d-%04d", time.Now().UnixMilli(), rand.Intn(10000))
}
