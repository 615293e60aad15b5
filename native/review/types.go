package review

import (
	"errors"
	"strings"

	"novalink/native/escrow"
)

var (
	// ErrNotFound marks reviews requested for unknown sessions.
	ErrNotFound = errors.New("review: session not found")
	// ErrSessionNotCompleted marks submissions against sessions that have not
	// reached the Completed state.
	ErrSessionNotCompleted = errors.New("review: session not completed")
	// ErrDuplicateReview marks a second submission for the same session.
	ErrDuplicateReview = errors.New("review: session already reviewed")
	// ErrInvalidRating marks ratings outside the 1-5 range.
	ErrInvalidRating = errors.New("review: rating must be between 1 and 5")
)

// Review captures a single immutable rating attached to a completed session.
type Review struct {
	SessionID escrow.SessionID `json:"sessionId"`
	Tutor     string           `json:"tutor"`
	Author    string           `json:"author"`
	Rating    uint8            `json:"rating"`
	Text      string           `json:"text"`
	CreatedAt int64            `json:"createdAt"`
}

// Validate ensures the review payload is well formed.
func (r *Review) Validate() error {
	if r == nil {
		return errors.New("review: nil review")
	}
	if r.Rating < 1 || r.Rating > 5 {
		return ErrInvalidRating
	}
	if strings.TrimSpace(r.Author) == "" {
		return errors.New("review: author required")
	}
	if strings.TrimSpace(r.Tutor) == "" {
		return errors.New("review: tutor required")
	}
	if r.CreatedAt <= 0 {
		return errors.New("review: createdAt must be positive")
	}
	return nil
}

// Clone returns a copy of the review.
func (r *Review) Clone() *Review {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}
