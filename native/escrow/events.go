package escrow

import (
	"strconv"

	"novalink/core/types"
)

const (
	EventTypeSessionBooked    = "escrow.session.booked"
	EventTypeSessionReleased  = "escrow.session.released"
	EventTypeSessionDisputed  = "escrow.session.disputed"
	EventTypeSessionRefunded  = "escrow.session.refunded"
	EventTypeAccountDeposited = "escrow.account.deposited"
	EventTypeAccountWithdrawn = "escrow.account.withdrawn"
)

func newSessionEvent(eventType string, record *SessionRecord, actor string) *types.Event {
	if record == nil {
		return nil
	}
	attributes := map[string]string{
		"id":        record.ID.Hex(),
		"escrowId":  record.EscrowID.Hex(),
		"student":   record.Student,
		"tutor":     record.Tutor,
		"amount":    record.Amount.Amount.String(),
		"currency":  record.Amount.Currency,
		"status":    record.Status.String(),
		"createdAt": strconv.FormatInt(record.CreatedAt, 10),
	}
	if record.CompletedAt > 0 {
		attributes["completedAt"] = strconv.FormatInt(record.CompletedAt, 10)
	}
	if actor != "" {
		attributes["actor"] = actor
	}
	return &types.Event{Type: eventType, Attributes: attributes}
}

func newAccountEvent(eventType, party string, amount types.Money) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"party":    party,
			"amount":   amount.Amount.String(),
			"currency": amount.Currency,
		},
	}
}

// NewBookedEvent returns the canonical event payload for a newly booked
// session with funds reserved.
func NewBookedEvent(r *SessionRecord) *types.Event {
	return newSessionEvent(EventTypeSessionBooked, r, r.Student)
}

// NewReleasedEvent returns the canonical event payload for a payment release
// to the tutor.
func NewReleasedEvent(r *SessionRecord, actor string) *types.Event {
	return newSessionEvent(EventTypeSessionReleased, r, actor)
}

// NewDisputedEvent returns the canonical event payload emitted when a session
// is frozen pending arbitration.
func NewDisputedEvent(r *SessionRecord, actor string) *types.Event {
	return newSessionEvent(EventTypeSessionDisputed, r, actor)
}

// NewRefundedEvent returns the canonical event payload for an arbitrated
// refund to the student.
func NewRefundedEvent(r *SessionRecord, actor string) *types.Event {
	return newSessionEvent(EventTypeSessionRefunded, r, actor)
}

// NewDepositedEvent returns the event payload for an external deposit.
func NewDepositedEvent(party string, amount types.Money) *types.Event {
	return newAccountEvent(EventTypeAccountDeposited, party, amount)
}

// NewWithdrawnEvent returns the event payload for an external withdrawal.
func NewWithdrawnEvent(party string, amount types.Money) *types.Event {
	return newAccountEvent(EventTypeAccountWithdrawn, party, amount)
}
