package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"novalink/core/types"
	"novalink/native/credential"
	"novalink/native/escrow"
	"novalink/native/registry"
	"novalink/native/review"
	"novalink/state"
	"novalink/storage"
)

const (
	studentWallet = "1234567890L"
	tutorWallet   = "9876543210L"
	arbiterWallet = "5555555555L"
)

type testEnv struct {
	server *httptest.Server
	auth   *Authenticator
	store  *SQLiteStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	manager, err := state.NewManager(storage.NewMemDB())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	ledger, err := escrow.NewEngine(types.CurrencyLSK)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ledger.SetState(manager)
	ledger.SetArbitrator(arbiterWallet)

	sqlStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "gateway.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = sqlStore.Close() })

	auth := NewAuthenticator(testSecret, "novalink", "novalink-gateway", time.Minute)
	server := NewServer(ServerConfig{
		Ledger:      ledger,
		Reviews:     review.NewEngine(manager, ledger),
		Tutors:      registry.NewLedger(manager),
		Credentials: credential.NewStore(manager),
		Store:       sqlStore,
		Auth:        auth,
		Now:         func() int64 { return 1_700_000_000 },
	})
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, auth: auth, store: sqlStore}
}

func (env *testEnv) request(t *testing.T, wallet, method, path string, body interface{}, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, env.server.URL+path, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if wallet != "" {
		token, err := env.auth.MintToken(wallet, time.Minute)
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read: %v", err)
	}
	return resp, buf.Bytes()
}

func decodeInto(t *testing.T, raw []byte, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
}

func TestGatewayRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.request(t, "", http.MethodGet, "/v1/balance", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestGatewaySessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp, raw := env.request(t, studentWallet, http.MethodPost, "/v1/deposits",
		map[string]string{"amount": "1000"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit: %d %s", resp.StatusCode, raw)
	}
	var balance balancePayload
	decodeInto(t, raw, &balance)
	if balance.Available != "1000" {
		t.Fatalf("expected available 1000, got %s", balance.Available)
	}

	resp, raw = env.request(t, studentWallet, http.MethodPost, "/v1/sessions",
		map[string]string{"tutor": tutorWallet, "amount": "400"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book: %d %s", resp.StatusCode, raw)
	}
	var session sessionPayload
	decodeInto(t, raw, &session)
	if session.Status != "active" || session.Student != studentWallet || session.Tutor != tutorWallet {
		t.Fatalf("unexpected session %+v", session)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}

	// the tutor sees the session too
	resp, raw = env.request(t, tutorWallet, http.MethodGet, "/v1/sessions", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", resp.StatusCode, raw)
	}
	var sessions []sessionPayload
	decodeInto(t, raw, &sessions)
	if len(sessions) != 1 || sessions[0].ID != session.ID {
		t.Fatalf("unexpected listing %+v", sessions)
	}

	// the tutor cannot release their own payment
	resp, _ = env.request(t, tutorWallet, http.MethodPost, "/v1/sessions/"+session.ID+"/release", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	resp, raw = env.request(t, studentWallet, http.MethodPost, "/v1/sessions/"+session.ID+"/release", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("release: %d %s", resp.StatusCode, raw)
	}
	decodeInto(t, raw, &session)
	if session.Status != "completed" {
		t.Fatalf("expected completed, got %s", session.Status)
	}

	resp, raw = env.request(t, studentWallet, http.MethodPost, "/v1/sessions/"+session.ID+"/reviews",
		map[string]interface{}{"rating": 5, "text": "brilliant"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("review: %d %s", resp.StatusCode, raw)
	}

	resp, raw = env.request(t, studentWallet, http.MethodGet, "/v1/tutors/"+tutorWallet+"/rating", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rating: %d %s", resp.StatusCode, raw)
	}
	var rating struct {
		Average float64 `json:"average"`
		HasData bool    `json:"hasData"`
	}
	decodeInto(t, raw, &rating)
	if !rating.HasData || rating.Average != 5 {
		t.Fatalf("unexpected rating %+v", rating)
	}
}

func TestGatewayDisputeAndRefund(t *testing.T) {
	env := newTestEnv(t)

	env.request(t, studentWallet, http.MethodPost, "/v1/deposits", map[string]string{"amount": "500"}, nil)
	_, raw := env.request(t, studentWallet, http.MethodPost, "/v1/sessions",
		map[string]string{"tutor": tutorWallet, "amount": "500"}, nil)
	var session sessionPayload
	decodeInto(t, raw, &session)

	resp, raw := env.request(t, tutorWallet, http.MethodPost, "/v1/sessions/"+session.ID+"/dispute", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispute: %d %s", resp.StatusCode, raw)
	}

	// only the arbitrator can refund
	resp, _ = env.request(t, studentWallet, http.MethodPost, "/v1/sessions/"+session.ID+"/refund", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp, raw = env.request(t, arbiterWallet, http.MethodPost, "/v1/sessions/"+session.ID+"/refund", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refund: %d %s", resp.StatusCode, raw)
	}
	decodeInto(t, raw, &session)
	if session.Status != "refunded" {
		t.Fatalf("expected refunded, got %s", session.Status)
	}

	_, raw = env.request(t, studentWallet, http.MethodGet, "/v1/balance", nil, nil)
	var balance balancePayload
	decodeInto(t, raw, &balance)
	if balance.Available != "500" || balance.Reserved != "0" {
		t.Fatalf("refund did not restore funds: %+v", balance)
	}
}

func TestGatewayIdempotencyReplay(t *testing.T) {
	env := newTestEnv(t)
	headers := map[string]string{"Idempotency-Key": "dep-1"}

	resp, first := env.request(t, studentWallet, http.MethodPost, "/v1/deposits",
		map[string]string{"amount": "100"}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit: %d %s", resp.StatusCode, first)
	}

	// the retry replays the stored response without re-executing the deposit
	resp, second := env.request(t, studentWallet, http.MethodPost, "/v1/deposits",
		map[string]string{"amount": "100"}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replay: %d %s", resp.StatusCode, second)
	}
	if resp.Header.Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected replay marker header")
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("replay body differs: %s vs %s", first, second)
	}

	_, raw := env.request(t, studentWallet, http.MethodGet, "/v1/balance", nil, nil)
	var balance balancePayload
	decodeInto(t, raw, &balance)
	if balance.Available != "100" {
		t.Fatalf("retry double-applied the deposit: %+v", balance)
	}

	// same key with a different body is a conflict
	resp, _ = env.request(t, studentWallet, http.MethodPost, "/v1/deposits",
		map[string]string{"amount": "999"}, headers)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on key reuse, got %d", resp.StatusCode)
	}
}

func TestGatewayTutorRegistry(t *testing.T) {
	env := newTestEnv(t)

	resp, raw := env.request(t, tutorWallet, http.MethodPost, "/v1/tutors", map[string]interface{}{
		"name": "Bob", "subjects": []string{"math"}, "hourlyRate": "2500",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: %d %s", resp.StatusCode, raw)
	}
	var profile tutorPayload
	decodeInto(t, raw, &profile)
	if profile.Address != tutorWallet {
		t.Fatalf("profile address should come from the token subject, got %q", profile.Address)
	}

	resp, _ = env.request(t, tutorWallet, http.MethodPost, "/v1/tutors", map[string]interface{}{
		"name": "Bob", "subjects": []string{"math"}, "hourlyRate": "2500",
	}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 duplicate, got %d", resp.StatusCode)
	}

	resp, raw = env.request(t, studentWallet, http.MethodGet, "/v1/tutors/"+tutorWallet, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d %s", resp.StatusCode, raw)
	}
	resp, _ = env.request(t, studentWallet, http.MethodGet, "/v1/tutors/"+arbiterWallet, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGatewayValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	for _, amount := range []string{"", "0", "-5", "ten"} {
		resp, _ := env.request(t, studentWallet, http.MethodPost, "/v1/deposits",
			map[string]string{"amount": amount}, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("amount %q: expected 400, got %d", amount, resp.StatusCode)
		}
	}

	resp, _ := env.request(t, studentWallet, http.MethodPost, "/v1/sessions",
		map[string]string{"tutor": "not-a-wallet", "amount": "100"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid tutor wallet, got %d", resp.StatusCode)
	}

	resp, _ = env.request(t, studentWallet, http.MethodPost, "/v1/sessions",
		map[string]string{"tutor": tutorWallet, "amount": "100"}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for insufficient funds, got %d", resp.StatusCode)
	}

	resp, _ = env.request(t, studentWallet, http.MethodGet,
		fmt.Sprintf("/v1/sessions/%064d", 7), nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.StatusCode)
	}
}

func TestGatewayWritesAudit(t *testing.T) {
	env := newTestEnv(t)
	env.request(t, studentWallet, http.MethodPost, "/v1/deposits", map[string]string{"amount": "100"}, nil)
	env.request(t, studentWallet, http.MethodGet, "/v1/balance", nil, nil)

	var count int
	if err := env.store.db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE subject = ?", studentWallet).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 audit rows, got %d", count)
	}
}
