package checkout

import (
	"crypto/rand"
	"fmt"
	"time"
)

// orderNumberAlphabet avoids characters that read ambiguously on receipts.
const orderNumberAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// GenerateOrderNumber produces a human-readable identifier such as
// ORD-20260301-7KQ4M2. Uniqueness is ultimately enforced by the
// order_number index; collisions at this entropy are not expected.
func GenerateOrderNumber(now time.Time) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), buf), nil
}
