package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"novalink/native/credential"
	"novalink/native/escrow"
	"novalink/native/registry"
	"novalink/native/review"
	"novalink/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001

	codeEscrowNotFound     = -32022
	codeEscrowForbidden    = -32023
	codeEscrowConflict     = -32024
	codeEscrowInsufficient = -32026
	codeReviewConflict     = -32027
	codeRegistryConflict   = -32028
	codeCredentialNotFound = -32029
)

// Server exposes the ledger engines over JSON-RPC 2.0. Mutating methods
// require the configured bearer token; queries are open.
type Server struct {
	ledger      *escrow.Engine
	reviews     *review.Engine
	tutors      *registry.Ledger
	credentials *credential.Store
	authToken   string
	logger      *slog.Logger
	nowFn       func() int64
}

// Config carries the server dependencies.
type Config struct {
	Ledger      *escrow.Engine
	Reviews     *review.Engine
	Tutors      *registry.Ledger
	Credentials *credential.Store
	AuthToken   string
	Logger      *slog.Logger
	Now         func() int64
}

// NewServer builds an RPC server over the supplied engines.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ledger:      cfg.Ledger,
		reviews:     cfg.Reviews,
		tutors:      cfg.Tutors,
		credentials: cfg.Credentials,
		authToken:   strings.TrimSpace(cfg.AuthToken),
		logger:      logger,
		nowFn:       cfg.Now,
	}
}

// Handler returns the HTTP handler serving the RPC endpoint alongside health
// and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError carries a JSON-RPC error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type authError struct {
	Code    int
	Message string
	Data    interface{}
}

func (s *Server) requireAuth(r *http.Request) *authError {
	if s.authToken == "" {
		return &authError{Code: codeUnauthorized, Message: "unauthorized", Data: "rpc auth token not configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &authError{Code: codeUnauthorized, Message: "unauthorized", Data: "missing bearer token"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &authError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid bearer token"}
	}
	return nil
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() { _ = reader.Close() }()

	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "invalid_request", "POST required")
		return
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = "request body too large"
		}
		writeError(w, status, nil, codeInvalidRequest, "invalid_request", message)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}

	switch req.Method {
	case "escrow_bookSession":
		s.handleBookSession(w, r, &req)
	case "escrow_getSession":
		s.handleGetSession(w, r, &req)
	case "escrow_listSessions":
		s.handleListSessions(w, r, &req)
	case "escrow_release":
		s.handleRelease(w, r, &req)
	case "escrow_dispute":
		s.handleDispute(w, r, &req)
	case "escrow_refund":
		s.handleRefund(w, r, &req)
	case "escrow_balance":
		s.handleBalance(w, r, &req)
	case "escrow_deposit":
		s.handleDeposit(w, r, &req)
	case "escrow_withdraw":
		s.handleWithdraw(w, r, &req)
	case "review_submit":
		s.handleReviewSubmit(w, r, &req)
	case "review_list":
		s.handleReviewList(w, r, &req)
	case "review_average":
		s.handleReviewAverage(w, r, &req)
	case "registry_register":
		s.handleRegistryRegister(w, r, &req)
	case "registry_get":
		s.handleRegistryGet(w, r, &req)
	case "registry_list":
		s.handleRegistryList(w, r, &req)
	case "credential_put":
		s.handleCredentialPut(w, r, &req)
	case "credential_get":
		s.handleCredentialGet(w, r, &req)
	case "credential_pin":
		s.handleCredentialPin(w, r, &req)
	case "credential_attachNotes":
		s.handleCredentialAttachNotes(w, r, &req)
	case "credential_sessionNotes":
		s.handleCredentialSessionNotes(w, r, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
	}
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

// writeLedgerError maps engine sentinel errors onto RPC status/code pairs and
// counts the rejection against the originating method.
func writeLedgerError(w http.ResponseWriter, req *RPCRequest, err error) {
	var (
		status  int
		code    int
		message string
	)
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		status, code, message = http.StatusNotFound, codeEscrowNotFound, "not_found"
	case errors.Is(err, escrow.ErrInvalidAmount):
		status, code, message = http.StatusBadRequest, codeInvalidParams, "invalid_params"
	case errors.Is(err, escrow.ErrInsufficientFunds):
		status, code, message = http.StatusUnprocessableEntity, codeEscrowInsufficient, "insufficient_funds"
	case errors.Is(err, escrow.ErrInvalidState):
		status, code, message = http.StatusConflict, codeEscrowConflict, "invalid_state"
	case errors.Is(err, escrow.ErrUnauthorized):
		status, code, message = http.StatusForbidden, codeEscrowForbidden, "forbidden"
	default:
		status, code, message = http.StatusInternalServerError, codeServerError, "internal_error"
	}
	metrics.Escrow().OperationFailed(req.Method, message)
	writeError(w, status, req.ID, code, message, err.Error())
}

func (s *Server) now() int64 {
	if s.nowFn != nil {
		return s.nowFn()
	}
	return time.Now().Unix()
}
