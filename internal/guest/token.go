package guest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenPrefix marks a client-generated guest identity. The prefix
// check happens before anything is persisted.
const TokenPrefix = "guest_"

var (
	ErrInvalidToken = errors.New("guest: invalid guest token")
	ErrAccessDenied = errors.New("guest: access token does not match order")
	ErrTokenExpired = errors.New("guest: access token expired")
)

// TokenIssuer mints the signed access tokens handed back after guest
// checkout. The raw guest token only identifies; acting on the order
// afterwards requires the HMAC-signed, expiring token bound to the
// order id, verified server-side.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue returns "<orderID>.<expiryUnix>.<hex hmac>".
func (i *TokenIssuer) Issue(orderID string, now time.Time) string {
	exp := now.Add(i.ttl).Unix()
	msg := fmt.Sprintf("%s.%d", orderID, exp)
	return msg + "." + i.sign(msg)
}

func (i *TokenIssuer) Verify(token, orderID string, now time.Time) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != orderID {
		return ErrAccessDenied
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return ErrAccessDenied
	}
	msg := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(i.sign(msg)), []byte(parts[2])) {
		return ErrAccessDenied
	}
	if now.Unix() > exp {
		return ErrTokenExpired
	}
	return nil
}

func (i *TokenIssuer) sign(msg string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
