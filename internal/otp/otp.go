package otp

import (
	"context"
	"time"
)

// Reason explains a failed verification.
type Reason string

const (
	ReasonNotFound Reason = "not_found"
	ReasonExpired  Reason = "expired"
	ReasonLocked   Reason = "locked"
	ReasonMismatch Reason = "mismatch"
)

// MaxAttempts is the number of code comparisons allowed before the ticket is
// destroyed. The counter increments before every comparison, so once it is
// exhausted even the correct code is rejected.
const MaxAttempts = 5

// Result is the outcome of a Verify call. When OK is true the ticket has been
// consumed and Identifier holds the email or phone it was issued for.
type Result struct {
	OK           bool
	Identifier   string
	Reason       Reason
	AttemptsLeft int
}

// Store issues and verifies one-time codes keyed by an opaque request id.
type Store interface {
	Create(ctx context.Context, requestID, identifier, code string, ttl time.Duration) error
	Verify(ctx context.Context, requestID, code string) (Result, error)
}
