package token

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
)

// secretBytes is the entropy of a bearer secret: 16 bytes = 128 bits,
// hex encoded to 32 characters.
const secretBytes = 16

// Record is the unit of relay authorization. A record is never mutated
// after creation except for Counter, which only the authorizer's
// consume step may increment. Expiry is logical: records are never
// deleted by this core, they simply stop satisfying the validity
// predicate.
type Record struct {
	ID       string    `json:"id"`        // Opaque identifier, never reused
	OwnerID  string    `json:"owner_id"`  // Owning sender account
	Secret   string    `json:"-"`         // Opaque bearer secret - never serialize
	IssuedOn time.Time `json:"issued_on"` // Calendar date of creation (UTC midnight)
	Counter  int       `json:"counter"`   // Successful relays attributed to this record
}

// DateOf truncates t to its UTC calendar date. Quota resets daily, not
// on a rolling window, so all issued-on comparisons happen at date
// granularity.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewSecret generates an opaque bearer secret from a cryptographically
// secure source.
func NewSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[NewSecret] rand.Read")
	}
	return hex.EncodeToString(b), nil
}
