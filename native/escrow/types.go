package escrow

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"novalink/core/types"
)

// SessionStatus represents the lifecycle states of a tutoring session and its
// backing escrow.
type SessionStatus uint8

const (
	// SessionPending is the transient pre-reservation state. Reservation
	// either succeeds immediately or the booking is rejected, so a pending
	// record is never persisted.
	SessionPending SessionStatus = iota
	SessionActive
	SessionCompleted
	SessionDisputed
	SessionRefunded
)

// Valid reports whether the status value is within the supported range.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionPending, SessionActive, SessionCompleted, SessionDisputed, SessionRefunded:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionRefunded
}

// String returns the canonical lowercase status name used on the wire.
func (s SessionStatus) String() string {
	switch s {
	case SessionPending:
		return "pending"
	case SessionActive:
		return "active"
	case SessionCompleted:
		return "completed"
	case SessionDisputed:
		return "disputed"
	case SessionRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// SessionID identifies a tutoring session record.
type SessionID [32]byte

// Hex renders the identifier as a 0x-prefixed hex string.
func (id SessionID) Hex() string { return "0x" + hex.EncodeToString(id[:]) }

// ParseSessionID decodes a 0x-prefixed 32-byte hex identifier.
func ParseSessionID(s string) (SessionID, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return SessionID{}, fmt.Errorf("escrow: invalid session id: %w", err)
	}
	if len(raw) != 32 {
		return SessionID{}, fmt.Errorf("escrow: invalid session id length %d", len(raw))
	}
	var id SessionID
	copy(id[:], raw)
	return id, nil
}

// SessionRecord captures one tutoring engagement and the escrow backing it.
// Identity, parties and amount are immutable after creation; only the escrow
// engine mutates the status and completion timestamp. The session identifier
// is the keccak256 hash of the parties and a ledger-assigned sequence number,
// ensuring deterministic IDs without a separate counter per party.
type SessionRecord struct {
	ID          SessionID     `json:"id"`
	EscrowID    SessionID     `json:"escrowId"`
	Student     string        `json:"student"`
	Tutor       string        `json:"tutor"`
	Amount      types.Money   `json:"amount"`
	Status      SessionStatus `json:"status"`
	CreatedAt   int64         `json:"createdAt"`
	CompletedAt int64         `json:"completedAt,omitempty"`
}

// Clone returns a deep copy so callers can safely mutate the copy without
// affecting the stored instance.
func (r *SessionRecord) Clone() *SessionRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Amount = r.Amount.Clone()
	return &clone
}

// SanitizeSession validates a session record before persistence. The function
// does not mutate the original value.
func SanitizeSession(r *SessionRecord) (*SessionRecord, error) {
	if r == nil {
		return nil, fmt.Errorf("escrow: nil session")
	}
	clone := r.Clone()
	clone.Student = strings.TrimSpace(clone.Student)
	clone.Tutor = strings.TrimSpace(clone.Tutor)
	if clone.Student == "" || clone.Tutor == "" {
		return nil, fmt.Errorf("escrow: session parties required")
	}
	if !clone.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !clone.Status.Valid() || clone.Status == SessionPending {
		return nil, fmt.Errorf("escrow: invalid session status %d", clone.Status)
	}
	if clone.Status.Terminal() != (clone.CompletedAt > 0) {
		return nil, fmt.Errorf("escrow: completedAt inconsistent with status %s", clone.Status)
	}
	return clone, nil
}

// ComputeSessionID derives the deterministic session identifier from the
// parties and the ledger sequence number assigned at booking time.
func ComputeSessionID(student, tutor string, seq uint64) SessionID {
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], seq)
	hash := ethcrypto.Keccak256([]byte(strings.TrimSpace(student)), []byte(strings.TrimSpace(tutor)), nonce[:])
	var id SessionID
	copy(id[:], hash)
	return id
}

// ComputeEscrowID derives the escrow vault identifier tied to a session.
func ComputeEscrowID(session SessionID) SessionID {
	hash := ethcrypto.Keccak256(session[:], []byte("escrow-vault"))
	var id SessionID
	copy(id[:], hash)
	return id
}
