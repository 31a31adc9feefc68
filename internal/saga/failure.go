package saga

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
)

// ErrPaymentDeclined is the retry reason for a simulated decline.
var ErrPaymentDeclined = errors.New("payment declined (simulated)")

// Bucket maps orderID onto [0,1) from its MD5 digest. Same id, same value,
// on every host and every attempt.
func Bucket(orderID string) float64 {
	sum := md5.Sum([]byte(orderID))
	// top 53 bits fit a float64 mantissa exactly
	return float64(binary.BigEndian.Uint64(sum[:8])>>11) / (1 << 53)
}

// Decide reports whether the payment for orderID is declined at rate.
func Decide(orderID string, rate float64) bool {
	return Bucket(orderID) < rate
}
