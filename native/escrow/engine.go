package escrow

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"novalink/core/events"
	"novalink/core/types"
)

var (
	errNilState      = errors.New("escrow engine: state not configured")
	errNoArbitrator  = errors.New("escrow engine: arbitrator not configured")
	errBadCurrency   = errors.New("escrow engine: unsupported currency")
	errEmptyPartyID  = errors.New("escrow engine: party id required")
	errFeeNoTreasury = errors.New("escrow engine: fee configured without treasury")
)

// engineState abstracts the persistence operations the engine requires.
type engineState interface {
	SessionPut(*SessionRecord) error
	// SettlePut commits a session record and the balances it settles as one
	// atomic write.
	SettlePut(record *SessionRecord, balances map[string]*types.Balances) error
	SessionGet(id SessionID) (*SessionRecord, bool)
	SessionsByParty(party string) ([]*SessionRecord, error)
	BalancesGet(party string) (*types.Balances, error)
	BalancesPut(party string, balances *types.Balances) error
	NextSequence() (uint64, error)
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine owns every session record and enforces the escrow state machine:
//
//	booking reserves funds and creates an Active session;
//	Active -> Completed (release) or Disputed (dispute);
//	Disputed -> Completed (arbitrator release) or Refunded (arbitrator refund).
//
// All mutating operations are serialized behind a single lock so the balance
// conservation invariant holds at every observable point; readers take a
// shared lock and therefore always observe a consistent snapshot.
type Engine struct {
	mu         sync.RWMutex
	state      engineState
	emitter    events.Emitter
	currency   string
	arbitrator string
	feeBps     uint32
	treasury   string
}

// NewEngine creates an escrow engine settling in the given currency, with a
// no-op emitter. Callers can override the emitter via SetEmitter.
func NewEngine(currency string) (*Engine, error) {
	normalized, err := types.NormalizeCurrency(currency)
	if err != nil {
		return nil, errBadCurrency
	}
	return &Engine{
		emitter:  events.NoopEmitter{},
		currency: normalized,
	}, nil
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetArbitrator configures the party trusted to resolve disputed sessions.
func (e *Engine) SetArbitrator(party string) { e.arbitrator = strings.TrimSpace(party) }

// SetFee configures the marketplace fee applied on release and the treasury
// party receiving it. A zero fee disables the deduction.
func (e *Engine) SetFee(bps uint32, treasury string) error {
	if bps > 10_000 {
		return fmt.Errorf("escrow engine: fee bps out of range: %d", bps)
	}
	treasury = strings.TrimSpace(treasury)
	if bps > 0 && treasury == "" {
		return errFeeNoTreasury
	}
	e.feeBps = bps
	e.treasury = treasury
	return nil
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Currency returns the canonical settlement currency code.
func (e *Engine) Currency() string { return e.currency }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func normalizeParty(party string) (string, error) {
	trimmed := strings.TrimSpace(party)
	if trimmed == "" {
		return "", errEmptyPartyID
	}
	return trimmed, nil
}

func (e *Engine) loadBalances(party string) (*types.Balances, error) {
	balances, err := e.state.BalancesGet(party)
	if err != nil {
		return nil, err
	}
	if balances == nil {
		balances = types.NewBalances(e.currency)
	}
	return balances, nil
}

func (e *Engine) checkAmount(amount types.Money) error {
	if amount.Currency != e.currency {
		return errBadCurrency
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Deposit credits the party's available balance. This is the explicit system
// boundary crossing named by the conservation invariant; the surrounding
// chain-submission layer invokes it once an on-chain transfer confirms.
func (e *Engine) Deposit(party string, amount types.Money) (*types.Balances, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	party, err := normalizeParty(party)
	if err != nil {
		return nil, err
	}
	if err := e.checkAmount(amount); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	balances, err := e.loadBalances(party)
	if err != nil {
		return nil, err
	}
	balances.Available, err = balances.Available.Add(amount)
	if err != nil {
		return nil, err
	}
	if err := e.state.BalancesPut(party, balances); err != nil {
		return nil, err
	}
	e.emit(NewDepositedEvent(party, amount))
	return balances.Clone(), nil
}

// Withdraw debits the party's available balance, failing with
// ErrInsufficientFunds when the available bucket cannot cover the amount.
// Reserved funds are never withdrawable.
func (e *Engine) Withdraw(party string, amount types.Money) (*types.Balances, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	party, err := normalizeParty(party)
	if err != nil {
		return nil, err
	}
	if err := e.checkAmount(amount); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	balances, err := e.loadBalances(party)
	if err != nil {
		return nil, err
	}
	if cmp, err := balances.Available.Cmp(amount); err != nil {
		return nil, err
	} else if cmp < 0 {
		return nil, ErrInsufficientFunds
	}
	balances.Available, err = balances.Available.Sub(amount)
	if err != nil {
		return nil, err
	}
	if err := e.state.BalancesPut(party, balances); err != nil {
		return nil, err
	}
	e.emit(NewWithdrawnEvent(party, amount))
	return balances.Clone(), nil
}

// BookSession atomically reserves the session amount from the student's
// available balance and creates the session record in the Active state. The
// pending phase is instantaneous: reservation either succeeds here or the
// booking is rejected with no record persisted.
func (e *Engine) BookSession(student, tutor string, amount types.Money, now int64) (*SessionRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	student, err := normalizeParty(student)
	if err != nil {
		return nil, err
	}
	tutor, err = normalizeParty(tutor)
	if err != nil {
		return nil, err
	}
	if err := e.checkAmount(amount); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	balances, err := e.loadBalances(student)
	if err != nil {
		return nil, err
	}
	if cmp, err := balances.Available.Cmp(amount); err != nil {
		return nil, err
	} else if cmp < 0 {
		return nil, ErrInsufficientFunds
	}
	seq, err := e.state.NextSequence()
	if err != nil {
		return nil, err
	}
	id := ComputeSessionID(student, tutor, seq)
	if _, exists := e.state.SessionGet(id); exists {
		return nil, fmt.Errorf("escrow engine: session id collision for sequence %d", seq)
	}
	record := &SessionRecord{
		ID:        id,
		EscrowID:  ComputeEscrowID(id),
		Student:   student,
		Tutor:     tutor,
		Amount:    amount.Clone(),
		Status:    SessionActive,
		CreatedAt: now,
	}
	if balances.Available, err = balances.Available.Sub(amount); err != nil {
		return nil, err
	}
	if balances.Reserved, err = balances.Reserved.Add(amount); err != nil {
		return nil, err
	}
	if err := e.state.SettlePut(record, map[string]*types.Balances{student: balances}); err != nil {
		return nil, err
	}
	e.emit(NewBookedEvent(record))
	return record.Clone(), nil
}

// ReleasePayment settles the session in favour of the tutor, moving the
// reserved amount out of the student's reserved bucket. For Active sessions
// only the student may release; a Disputed session additionally admits the
// configured arbitrator (and only the arbitrator).
func (e *Engine) ReleasePayment(id SessionID, actor string, now int64) (*SessionRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	actor, err := normalizeParty(actor)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	record, ok := e.state.SessionGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	switch record.Status {
	case SessionActive:
		if actor != record.Student {
			return nil, ErrUnauthorized
		}
	case SessionDisputed:
		if e.arbitrator == "" {
			return nil, errNoArbitrator
		}
		if actor != e.arbitrator {
			return nil, ErrUnauthorized
		}
	default:
		return nil, ErrInvalidState
	}
	payout, fee, err := record.Amount.SplitFee(e.feeBps)
	if err != nil {
		return nil, err
	}
	studentBalances, err := e.loadBalances(record.Student)
	if err != nil {
		return nil, err
	}
	tutorBalances, err := e.loadBalances(record.Tutor)
	if err != nil {
		return nil, err
	}
	if studentBalances.Reserved, err = studentBalances.Reserved.Sub(record.Amount); err != nil {
		return nil, fmt.Errorf("escrow engine: reserved bucket underflow: %w", err)
	}
	if tutorBalances.Available, err = tutorBalances.Available.Add(payout); err != nil {
		return nil, err
	}
	settled := map[string]*types.Balances{
		record.Student: studentBalances,
		record.Tutor:   tutorBalances,
	}
	if fee.IsPositive() {
		// the treasury may itself be a session party
		treasuryBalances, ok := settled[e.treasury]
		if !ok {
			if treasuryBalances, err = e.loadBalances(e.treasury); err != nil {
				return nil, err
			}
			settled[e.treasury] = treasuryBalances
		}
		if treasuryBalances.Available, err = treasuryBalances.Available.Add(fee); err != nil {
			return nil, err
		}
	}
	record.Status = SessionCompleted
	record.CompletedAt = now
	if err := e.state.SettlePut(record, settled); err != nil {
		return nil, err
	}
	e.emit(NewReleasedEvent(record, actor))
	return record.Clone(), nil
}

// InitiateDispute freezes an Active session. Either party may raise the
// dispute; the reserved funds stay locked until the arbitrator resolves it.
func (e *Engine) InitiateDispute(id SessionID, actor string, now int64) (*SessionRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	actor, err := normalizeParty(actor)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	record, ok := e.state.SessionGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	if record.Status != SessionActive {
		return nil, ErrInvalidState
	}
	if actor != record.Student && actor != record.Tutor {
		return nil, ErrUnauthorized
	}
	record.Status = SessionDisputed
	if err := e.state.SessionPut(record); err != nil {
		return nil, err
	}
	e.emit(NewDisputedEvent(record, actor))
	return record.Clone(), nil
}

// Refund resolves a Disputed session in the student's favour, returning the
// reserved amount to the student's available bucket. Only the configured
// arbitrator may refund.
func (e *Engine) Refund(id SessionID, actor string, now int64) (*SessionRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	actor, err := normalizeParty(actor)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	record, ok := e.state.SessionGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	if record.Status != SessionDisputed {
		return nil, ErrInvalidState
	}
	if e.arbitrator == "" {
		return nil, errNoArbitrator
	}
	if actor != e.arbitrator {
		return nil, ErrUnauthorized
	}
	balances, err := e.loadBalances(record.Student)
	if err != nil {
		return nil, err
	}
	if balances.Reserved, err = balances.Reserved.Sub(record.Amount); err != nil {
		return nil, fmt.Errorf("escrow engine: reserved bucket underflow: %w", err)
	}
	if balances.Available, err = balances.Available.Add(record.Amount); err != nil {
		return nil, err
	}
	record.Status = SessionRefunded
	record.CompletedAt = now
	if err := e.state.SettlePut(record, map[string]*types.Balances{record.Student: balances}); err != nil {
		return nil, err
	}
	e.emit(NewRefundedEvent(record, actor))
	return record.Clone(), nil
}

// GetSession returns a copy of the session record.
func (e *Engine) GetSession(id SessionID) (*SessionRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	record, ok := e.state.SessionGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// SessionsByParty returns every session the party participates in, ordered by
// creation. Terminal sessions are retained for audit.
func (e *Engine) SessionsByParty(party string) ([]*SessionRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	party, err := normalizeParty(party)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	records, err := e.state.SessionsByParty(party)
	if err != nil {
		return nil, err
	}
	out := make([]*SessionRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.Clone())
	}
	return out, nil
}

// BalancesOf returns the party's available/reserved pair as one snapshot.
func (e *Engine) BalancesOf(party string) (*types.Balances, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	party, err := normalizeParty(party)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	balances, err := e.loadBalances(party)
	if err != nil {
		return nil, err
	}
	return balances.Clone(), nil
}
