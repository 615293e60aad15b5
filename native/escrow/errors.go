package escrow

import "errors"

var (
	// ErrInvalidAmount marks booking or balance requests with a non-positive
	// or malformed amount.
	ErrInvalidAmount = errors.New("escrow: amount must be positive")
	// ErrInsufficientFunds marks operations the payer cannot cover from the
	// available bucket.
	ErrInsufficientFunds = errors.New("escrow: insufficient available balance")
	// ErrNotFound marks lookups for unknown session identifiers.
	ErrNotFound = errors.New("escrow: session not found")
	// ErrInvalidState marks transitions that are not legal for the session's
	// current status.
	ErrInvalidState = errors.New("escrow: operation not permitted in current state")
	// ErrUnauthorized marks callers lacking the role a transition requires.
	ErrUnauthorized = errors.New("escrow: caller not authorized")
)
