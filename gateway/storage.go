package gateway

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// ErrIdempotencyMismatch is returned when a key is reused with a different
// payload.
var ErrIdempotencyMismatch = errors.New("idempotency key reuse with different request body")

// SQLiteStore manages idempotency keys and audit log persistence for the
// gateway. Ledger operations are not idempotent by themselves; the stored
// response lets the gateway replay a committed result instead of re-invoking
// the mutation.
type SQLiteStore struct {
	db *sql.DB
}

// StoredResponse is a replayable response captured under an idempotency key.
type StoredResponse struct {
	Status int
	Body   []byte
}

// NewSQLiteStore opens (and if needed initialises) the gateway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
            subject TEXT NOT NULL,
            idempotency_key TEXT NOT NULL,
            request_hash TEXT NOT NULL,
            response_status INTEGER NOT NULL,
            response_body BLOB NOT NULL,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY(subject, idempotency_key)
        );`,
		`CREATE TABLE IF NOT EXISTS audit_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            occurred_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            request_id TEXT,
            subject TEXT,
            method TEXT NOT NULL,
            path TEXT NOT NULL,
            response_status INTEGER
        );`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HashRequest produces the fingerprint used to detect idempotency key reuse
// with a different payload.
func HashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// LookupIdempotency returns the stored response for (subject, key), if any.
// A hit with a different request hash fails with ErrIdempotencyMismatch.
func (s *SQLiteStore) LookupIdempotency(subject, key, requestHash string) (*StoredResponse, error) {
	row := s.db.QueryRow(
		`SELECT request_hash, response_status, response_body FROM idempotency_keys
         WHERE subject = ? AND idempotency_key = ?`, subject, key)
	var storedHash string
	var stored StoredResponse
	err := row.Scan(&storedHash, &stored.Status, &stored.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if storedHash != requestHash {
		return nil, ErrIdempotencyMismatch
	}
	return &stored, nil
}

// SaveIdempotency records the response to replay for future retries. Racing
// saves under the same key keep the first committed row; any other constraint
// failure is reported.
func (s *SQLiteStore) SaveIdempotency(subject, key, requestHash string, status int, body []byte) error {
	if body == nil {
		body = []byte{}
	}
	_, err := s.db.Exec(
		`INSERT INTO idempotency_keys
         (subject, idempotency_key, request_hash, response_status, response_body, created_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(subject, idempotency_key) DO NOTHING`,
		subject, key, requestHash, status, body, time.Now().UTC())
	return err
}

// AppendAudit records one gateway request outcome.
func (s *SQLiteStore) AppendAudit(requestID, subject, method, path string, status int) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (occurred_at, request_id, subject, method, path, response_status)
         VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), requestID, subject, method, path, status)
	return err
}
