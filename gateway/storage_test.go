package gateway

import (
	"errors"
	"net/http"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "gateway.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIdempotencyRoundTrip(t *testing.T) {
	store := newTestStore(t)
	hash := HashRequest([]byte("POST /v1/deposits\n{\"amount\":\"100\"}"))

	stored, err := store.LookupIdempotency("alice", "key-1", hash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored != nil {
		t.Fatalf("expected miss on fresh key")
	}

	if err := store.SaveIdempotency("alice", "key-1", hash, http.StatusCreated, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	stored, err = store.LookupIdempotency("alice", "key-1", hash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored == nil {
		t.Fatalf("expected stored response")
	}
	if stored.Status != http.StatusCreated || string(stored.Body) != `{"ok":true}` {
		t.Fatalf("unexpected stored response %+v", stored)
	}
}

func TestIdempotencyKeyReuseWithDifferentBody(t *testing.T) {
	store := newTestStore(t)
	original := HashRequest([]byte("body-a"))
	if err := store.SaveIdempotency("alice", "key-1", original, http.StatusOK, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.LookupIdempotency("alice", "key-1", HashRequest([]byte("body-b"))); !errors.Is(err, ErrIdempotencyMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestSaveIdempotencyPersistsEmptyBody(t *testing.T) {
	store := newTestStore(t)
	hash := HashRequest([]byte("DELETE /v1/thing\n"))
	if err := store.SaveIdempotency("alice", "key-1", hash, http.StatusNoContent, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	stored, err := store.LookupIdempotency("alice", "key-1", hash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored == nil {
		t.Fatal("body-less response must still be recorded")
	}
	if stored.Status != http.StatusNoContent || len(stored.Body) != 0 {
		t.Fatalf("unexpected stored response %+v", stored)
	}
}

func TestIdempotencyScopedPerSubject(t *testing.T) {
	store := newTestStore(t)
	hash := HashRequest([]byte("shared-body"))
	if err := store.SaveIdempotency("alice", "key-1", hash, http.StatusOK, []byte("alice")); err != nil {
		t.Fatalf("save: %v", err)
	}
	stored, err := store.LookupIdempotency("bob", "key-1", hash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored != nil {
		t.Fatalf("bob must not see alice's stored response")
	}
}

func TestSaveIdempotencyIgnoresRace(t *testing.T) {
	store := newTestStore(t)
	hash := HashRequest([]byte("body"))
	if err := store.SaveIdempotency("alice", "key-1", hash, http.StatusOK, []byte("first")); err != nil {
		t.Fatalf("save: %v", err)
	}
	// a concurrent duplicate insert loses silently; the first response wins
	if err := store.SaveIdempotency("alice", "key-1", hash, http.StatusOK, []byte("second")); err != nil {
		t.Fatalf("duplicate save: %v", err)
	}
	stored, err := store.LookupIdempotency("alice", "key-1", hash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if string(stored.Body) != "first" {
		t.Fatalf("expected first response preserved, got %q", stored.Body)
	}
}

func TestAppendAudit(t *testing.T) {
	store := newTestStore(t)
	if err := store.AppendAudit("req-1", "alice", http.MethodPost, "/v1/deposits", http.StatusOK); err != nil {
		t.Fatalf("audit: %v", err)
	}
	if err := store.AppendAudit("req-2", "alice", http.MethodGet, "/v1/balance", http.StatusOK); err != nil {
		t.Fatalf("audit: %v", err)
	}

	var count int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE subject = ?", "alice").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 audit rows, got %d", count)
	}
}
