package order

import "github.com/google/uuid"

// NewClientOrderID returns a random (version 4) UUID string. It is safe for concurrent use and
// collision-free for practical purposes across the process lifetime.
//
// A client order id is the idempotency key at the venue: resending an order must reuse its id,
// never mint a new one.
func NewClientOrderID() string {
	return uuid.NewString()
}
