package gateway

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"novalink/core/types"
	"novalink/native/credential"
	"novalink/native/escrow"
	"novalink/native/registry"
	"novalink/native/review"
	"novalink/observability/metrics"
)

// Server is the REST facade over the ledger engines. It performs wallet
// address translation and idempotency bookkeeping but no business logic; the
// engines remain the source of truth for authorization and state.
type Server struct {
	ledger      *escrow.Engine
	reviews     *review.Engine
	tutors      *registry.Ledger
	credentials *credential.Store
	store       *SQLiteStore
	auth        *Authenticator
	limiter     *RateLimiter
	logger      *slog.Logger
	nowFn       func() int64
	router      http.Handler
}

// ServerConfig carries the facade dependencies.
type ServerConfig struct {
	Ledger      *escrow.Engine
	Reviews     *review.Engine
	Tutors      *registry.Ledger
	Credentials *credential.Store
	Store       *SQLiteStore
	Auth        *Authenticator
	Limiter     *RateLimiter
	Logger      *slog.Logger
	Now         func() int64
}

// NewServer assembles the gateway router.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ledger:      cfg.Ledger,
		reviews:     cfg.Reviews,
		tutors:      cfg.Tutors,
		credentials: cfg.Credentials,
		store:       cfg.Store,
		auth:        cfg.Auth,
		limiter:     cfg.Limiter,
		logger:      logger,
		nowFn:       cfg.Now,
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Use(s.observe)

		r.Get("/v1/balance", s.handleBalance)
		r.Post("/v1/deposits", s.idempotent(s.handleDeposit))
		r.Post("/v1/withdrawals", s.idempotent(s.handleWithdraw))

		r.Post("/v1/sessions", s.idempotent(s.handleBookSession))
		r.Get("/v1/sessions", s.handleListSessions)
		r.Get("/v1/sessions/{id}", s.handleGetSession)
		r.Post("/v1/sessions/{id}/release", s.idempotent(s.handleRelease))
		r.Post("/v1/sessions/{id}/dispute", s.idempotent(s.handleDispute))
		r.Post("/v1/sessions/{id}/refund", s.idempotent(s.handleRefund))
		r.Post("/v1/sessions/{id}/reviews", s.idempotent(s.handleSubmitReview))

		r.Post("/v1/credentials", s.idempotent(s.handleUploadCredential))
		r.Get("/v1/credentials/{hash}", s.handleGetCredential)

		r.Post("/v1/tutors", s.idempotent(s.handleRegisterTutor))
		r.Get("/v1/tutors", s.handleListTutors)
		r.Get("/v1/tutors/{address}", s.handleGetTutor)
		r.Get("/v1/tutors/{address}/reviews", s.handleTutorReviews)
		r.Get("/v1/tutors/{address}/rating", s.handleTutorRating)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) now() int64 {
	if s.nowFn != nil {
		return s.nowFn()
	}
	return time.Now().Unix()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// observe assigns a request id and writes the audit record once the handler
// completes.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if s.store != nil {
			if err := s.store.AppendAudit(requestID, Subject(r.Context()), r.Method, r.URL.Path, recorder.status); err != nil {
				s.logger.Warn("audit append failed", slog.String("error", err.Error()))
			}
		}
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.buf.Write(p)
	return r.ResponseWriter.Write(p)
}

// idempotent replays a stored response when the caller retries a mutation
// with the same Idempotency-Key, and rejects key reuse with a different body.
func (s *Server) idempotent(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" || s.store == nil {
			handler(w, r)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		subject := Subject(r.Context())
		requestHash := HashRequest(append([]byte(r.Method+" "+r.URL.Path+"\n"), body...))
		stored, err := s.store.LookupIdempotency(subject, key, requestHash)
		if errors.Is(err, ErrIdempotencyMismatch) {
			writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "idempotency lookup failed")
			return
		}
		if stored != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotency-Replayed", "true")
			w.WriteHeader(stored.Status)
			_, _ = w.Write(stored.Body)
			return
		}
		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		if err := s.store.SaveIdempotency(subject, key, requestHash, recorder.status, recorder.buf.Bytes()); err != nil {
			s.logger.Warn("idempotency save failed", slog.String("error", err.Error()))
		}
	}
}

// writeLedgerError maps engine sentinel errors onto REST statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, escrow.ErrInvalidAmount):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, escrow.ErrInsufficientFunds):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, escrow.ErrInvalidState):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, escrow.ErrUnauthorized):
		writeJSONError(w, http.StatusForbidden, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

type sessionPayload struct {
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

func sessionPayloadOf(record *escrow.SessionRecord) sessionPayload {
	return sessionPayload{
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

type balancePayload struct {
	Party     string `json:"party"`
	Available string `json:"available"`
	Reserved  string `json:"reserved"`
	Currency  string `json:"currency"`
}

func balancePayloadOf(party string, balances *types.Balances) balancePayload {
	return balancePayload{
		Party:     party,
		Available: balances.Available.Amount.String(),
		Reserved:  balances.Reserved.Amount.String(),
		Currency:  balances.Available.Currency,
	}
}

func (s *Server) parseAmount(raw string) (types.Money, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || value.Sign() <= 0 {
		return types.Money{}, escrow.ErrInvalidAmount
	}
	return types.NewMoney(value, s.ledger.Currency())
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	subject := Subject(r.Context())
	balances, err := s.ledger.BalancesOf(subject)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balancePayloadOf(subject, balances))
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleMovement(w http.ResponseWriter, r *http.Request,
	movement func(string, types.Money) (*types.Balances, error)) {
	subject := Subject(r.Context())
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := s.parseAmount(req.Amount)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "amount must be a positive integer")
		return
	}
	balances, err := movement(subject, amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balancePayloadOf(subject, balances))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleMovement(w, r, s.ledger.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleMovement(w, r, s.ledger.Withdraw)
}

type bookSessionRequest struct {
	Tutor  string `json:"tutor"`
	Amount string `json:"amount"`
}

func (s *Server) handleBookSession(w http.ResponseWriter, r *http.Request) {
	student := Subject(r.Context())
	var req bookSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tutor, err := TranslateWalletAddress(req.Tutor)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := s.parseAmount(req.Amount)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "amount must be a positive integer")
		return
	}
	record, err := s.ledger.BookSession(student, tutor, amount, s.now())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayloadOf(record))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	records, err := s.ledger.SessionsByParty(Subject(r.Context()))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	out := make([]sessionPayload, 0, len(records))
	for _, record := range records {
		out = append(out, sessionPayloadOf(record))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) sessionIDFromPath(w http.ResponseWriter, r *http.Request) (escrow.SessionID, bool) {
	id, err := escrow.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return escrow.SessionID{}, false
	}
	return id, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionIDFromPath(w, r)
	if !ok {
		return
	}
	record, err := s.ledger.GetSession(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayloadOf(record))
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request,
	transition func(escrow.SessionID, string, int64) (*escrow.SessionRecord, error)) {
	id, ok := s.sessionIDFromPath(w, r)
	if !ok {
		return
	}
	record, err := transition(id, Subject(r.Context()), s.now())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayloadOf(record))
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.ledger.ReleasePayment)
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.ledger.InitiateDispute)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.ledger.Refund)
}

type submitReviewRequest struct {
	Rating uint8  `json:"rating"`
	Text   string `json:"text"`
}

type reviewPayload struct {
	SessionID string `json:"sessionId"`
	Tutor     string `json:"tutor"`
	Author    string `json:"author"`
	Rating    uint8  `json:"rating"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

func reviewPayloadOf(entry *review.Review) reviewPayload {
	return reviewPayload{
		SessionID: entry.SessionID.Hex(),
		Tutor:     entry.Tutor,
		Author:    entry.Author,
		Rating:    entry.Rating,
		Text:      entry.Text,
		CreatedAt: entry.CreatedAt,
	}
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionIDFromPath(w, r)
	if !ok {
		return
	}
	var req submitReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	entry, err := s.reviews.Submit(id, Subject(r.Context()), req.Rating, req.Text, s.now())
	if err == nil {
		metrics.Escrow().ReviewSubmitted()
	}
	if err != nil {
		switch {
		case errors.Is(err, review.ErrNotFound):
			writeJSONError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, review.ErrSessionNotCompleted):
			writeJSONError(w, http.StatusConflict, err.Error())
		case errors.Is(err, review.ErrDuplicateReview):
			writeJSONError(w, http.StatusConflict, err.Error())
		case errors.Is(err, review.ErrInvalidRating):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			writeJSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, reviewPayloadOf(entry))
}

type uploadCredentialRequest struct {
	Data        string `json:"data"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

func (s *Server) handleUploadCredential(w http.ResponseWriter, r *http.Request) {
	var req uploadCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "data must be base64 encoded")
		return
	}
	hash, err := s.credentials.Put(data, req.Name, req.ContentType)
	if err != nil {
		if errors.Is(err, credential.ErrEmptyContent) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"hash": hash.Hex()})
}

func (s *Server) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	hash, err := credential.ParseHash(chi.URLParam(r, "hash"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, ok, err := s.credentials.Get(hash)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, "credential not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"hash": hash.Hex(),
		"data": base64.StdEncoding.EncodeToString(data),
	})
}

type registerTutorRequest struct {
	Name            string   `json:"name"`
	Subjects        []string `json:"subjects"`
	HourlyRate      string   `json:"hourlyRate"`
	CredentialsHash string   `json:"credentialsHash,omitempty"`
}

type tutorPayload struct {
	Address         string   `json:"address"`
	Name            string   `json:"name"`
	Subjects        []string `json:"subjects"`
	HourlyRate      string   `json:"hourlyRate"`
	Currency        string   `json:"currency"`
	CredentialsHash string   `json:"credentialsHash,omitempty"`
	RegisteredAt    int64    `json:"registeredAt"`
}

func tutorPayloadOf(profile *registry.TutorProfile) tutorPayload {
	return tutorPayload{
		Address:         profile.Address,
		Name:            profile.Name,
		Subjects:        profile.Subjects,
		HourlyRate:      profile.HourlyRate.Amount.String(),
		Currency:        profile.HourlyRate.Currency,
		CredentialsHash: profile.CredentialsHash,
		RegisteredAt:    profile.RegisteredAt,
	}
}

func (s *Server) handleRegisterTutor(w http.ResponseWriter, r *http.Request) {
	var req registerTutorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rate, err := s.parseAmount(req.HourlyRate)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "hourlyRate must be a positive integer")
		return
	}
	profile, err := s.tutors.Register(&registry.TutorProfile{
		Address:         Subject(r.Context()),
		Name:            req.Name,
		Subjects:        req.Subjects,
		HourlyRate:      rate,
		CredentialsHash: strings.TrimSpace(req.CredentialsHash),
	})
	if err != nil {
		if errors.Is(err, registry.ErrAlreadyRegistered) {
			writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, tutorPayloadOf(profile))
}

func (s *Server) handleListTutors(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.tutors.List()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]tutorPayload, 0, len(profiles))
	for _, profile := range profiles {
		out = append(out, tutorPayloadOf(profile))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) tutorAddressFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	address, err := TranslateWalletAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return address, true
}

func (s *Server) handleGetTutor(w http.ResponseWriter, r *http.Request) {
	address, ok := s.tutorAddressFromPath(w, r)
	if !ok {
		return
	}
	profile, err := s.tutors.Get(address)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tutorPayloadOf(profile))
}

func (s *Server) handleTutorReviews(w http.ResponseWriter, r *http.Request) {
	address, ok := s.tutorAddressFromPath(w, r)
	if !ok {
		return
	}
	out := make([]reviewPayload, 0)
	for entry := range s.reviews.ForTutor(address) {
		out = append(out, reviewPayloadOf(entry))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTutorRating(w http.ResponseWriter, r *http.Request) {
	address, ok := s.tutorAddressFromPath(w, r)
	if !ok {
		return
	}
	average, hasData, err := s.reviews.AverageRating(address)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tutor":   address,
		"average": average,
		"hasData": hasData,
	})
}
