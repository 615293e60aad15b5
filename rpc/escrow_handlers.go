package rpc

import (
	"math/big"
	"net/http"
	"strings"

	"novalink/core/types"
	"novalink/native/escrow"
)

type bookSessionParams struct {
	Student string `json:"student"`
	Tutor   string `json:"tutor"`
	Amount  string `json:"amount"`
}

type sessionIDParams struct {
	ID string `json:"id"`
}

type sessionActorParams struct {
	ID    string `json:"id"`
	Actor string `json:"actor"`
}

type partyParams struct {
	Party string `json:"party"`
}

type partyAmountParams struct {
	Party  string `json:"party"`
	Amount string `json:"amount"`
}

type listSessionsParams struct {
	Party string `json:"party"`
}

type sessionJSON struct {
	ID          string `json:"id"`
	EscrowID    string `json:"escrowId"`
	Student     string `json:"student"`
	Tutor       string `json:"tutor"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
	CompletedAt int64  `json:"completedAt,omitempty"`
}

type balancesJSON struct {
	Party     string `json:"party"`
	Available string `json:"available"`
	Reserved  string `json:"reserved"`
	Currency  string `json:"currency"`
}

func sessionToJSON(record *escrow.SessionRecord) sessionJSON {
	return sessionJSON{
		ID:          record.ID.Hex(),
		EscrowID:    record.EscrowID.Hex(),
		Student:     record.Student,
		Tutor:       record.Tutor,
		Amount:      record.Amount.Amount.String(),
		Currency:    record.Amount.Currency,
		Status:      record.Status.String(),
		CreatedAt:   record.CreatedAt,
		CompletedAt: record.CompletedAt,
	}
}

func balancesToJSON(party string, balances *types.Balances) balancesJSON {
	return balancesJSON{
		Party:     party,
		Available: balances.Available.Amount.String(),
		Reserved:  balances.Reserved.Amount.String(),
		Currency:  balances.Available.Currency,
	}
}

// parsePositiveAmount decodes a decimal minor-unit amount in the ledger's
// settlement currency.
func (s *Server) parsePositiveAmount(raw string) (types.Money, error) {
	trimmed := strings.TrimSpace(raw)
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return types.Money{}, escrow.ErrInvalidAmount
	}
	if value.Sign() <= 0 {
		return types.Money{}, escrow.ErrInvalidAmount
	}
	return types.NewMoney(value, s.ledger.Currency())
}

func (s *Server) handleBookSession(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params bookSessionParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := s.parsePositiveAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "amount must be a positive integer")
		return
	}
	record, err := s.ledger.BookSession(params.Student, params.Tutor, amount, s.now())
	if err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, sessionToJSON(record))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params sessionIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := escrow.ParseSessionID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.ledger.GetSession(id)
	if err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, sessionToJSON(record))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params listSessionsParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	records, err := s.ledger.SessionsByParty(params.Party)
	if err != nil {
		writeLedgerError(w, req, err)
		return
	}
	out := make([]sessionJSON, 0, len(records))
	for _, record := range records {
		out = append(out, sessionToJSON(record))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, req *RPCRequest,
	transition func(escrow.SessionID, string, int64) (*escrow.SessionRecord, error)) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params sessionActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := escrow.ParseSessionID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := transition(id, params.Actor, s.now())
	if err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, sessionToJSON(record))
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTransition(w, r, req, s.ledger.ReleasePayment)
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTransition(w, r, req, s.ledger.InitiateDispute)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTransition(w, r, req, s.ledger.Refund)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params partyParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balances, err := s.ledger.BalancesOf(params.Party)
	if err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, balancesToJSON(strings.TrimSpace(params.Party), balances))
}

func (s *Server) handleMovement(w http.ResponseWriter, r *http.Request, req *RPCRequest,
	movement func(string, types.Money) (*types.Balances, error)) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params partyAmountParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := s.parsePositiveAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "amount must be a positive integer")
		return
	}
	balances, err := movement(params.Party, amount)
	if err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, balancesToJSON(strings.TrimSpace(params.Party), balances))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleMovement(w, r, req, s.ledger.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleMovement(w, r, req, s.ledger.Withdraw)
}
