package review

import (
	"errors"
	"iter"

	"novalink/native/escrow"
)

var errNotConfigured = errors.New("review engine: ledger not configured")

// Engine wires higher-level operations against the review ledger. It wraps the
// persistence layer so callers can submit and query reviews without
// re-implementing storage concerns.
type Engine struct {
	ledger *Ledger
}

// NewEngine constructs an engine backed by the provided storage backend and
// session source.
func NewEngine(store storage, sessions sessions) *Engine {
	if store == nil || sessions == nil {
		return &Engine{}
	}
	return &Engine{ledger: NewLedger(store, sessions)}
}

// SetNowFunc overrides the wall clock used by the underlying ledger.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil || e.ledger == nil {
		return
	}
	e.ledger.SetNowFunc(now)
}

// Submit stores a review for a completed session.
func (e *Engine) Submit(sessionID escrow.SessionID, author string, rating uint8, text string, now int64) (*Review, error) {
	if e == nil || e.ledger == nil {
		return nil, errNotConfigured
	}
	return e.ledger.Submit(sessionID, author, rating, text, now)
}

// Get fetches the review for a session, reporting ok=false when none exists.
func (e *Engine) Get(sessionID escrow.SessionID) (*Review, bool, error) {
	if e == nil || e.ledger == nil {
		return nil, false, errNotConfigured
	}
	return e.ledger.Get(sessionID)
}

// ForTutor returns the tutor's reviews in ascending createdAt order.
func (e *Engine) ForTutor(tutor string) iter.Seq[*Review] {
	if e == nil || e.ledger == nil {
		return func(func(*Review) bool) {}
	}
	return e.ledger.ForTutor(tutor)
}

// AverageRating reports the tutor's mean rating; ok=false means no reviews.
func (e *Engine) AverageRating(tutor string) (float64, bool, error) {
	if e == nil || e.ledger == nil {
		return 0, false, errNotConfigured
	}
	return e.ledger.AverageRating(tutor)
}
