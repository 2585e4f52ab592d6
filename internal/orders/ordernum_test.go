package orders

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewOrderNumberFormat(t *testing.T) {
	re := regexp.MustCompile(`^ORD-\d{13}-\d{4}$`)
	for i := 0; i < 100; i++ {
		assert.Regexp(t, re, NewOrderNumber())
	}
}
