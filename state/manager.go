package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"novalink/core/types"
	"novalink/native/escrow"
	"novalink/storage"
)

var (
	sessionPrefix   = []byte("escrow/session/")
	partyIndexPref  = []byte("escrow/party/")
	balancesPrefix  = []byte("account/balances/")
	sequenceKey     = []byte("escrow/sequence")
	schemaHeaderKey = []byte("meta/schema")
)

const schemaVersion = 1

// Manager is the single state backend shared by the native engines. It stores
// JSON-encoded records in the underlying key-value database and keeps a lock
// around multi-key reads so iterating callers see a consistent view.
type Manager struct {
	mu sync.Mutex
	db storage.Database
}

// NewManager wraps a key-value database. The schema marker is written on
// first use and checked on reopen so a data directory is never interpreted
// under the wrong layout.
func NewManager(db storage.Database) (*Manager, error) {
	if db == nil {
		return nil, errors.New("state: database required")
	}
	m := &Manager{db: db}
	var version int
	ok, err := m.KVGet(schemaHeaderKey, &version)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := m.KVPut(schemaHeaderKey, schemaVersion); err != nil {
			return nil, err
		}
		return m, nil
	}
	if version != schemaVersion {
		return nil, fmt.Errorf("state: unsupported schema version %d", version)
	}
	return m, nil
}

// KVGet decodes the value stored under key into out, reporting whether the
// key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut JSON-encodes value and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, raw)
}

func batchPut(batch storage.Batch, key []byte, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	batch.Put(key, raw)
	return nil
}

func sessionKey(id escrow.SessionID) []byte {
	return []byte(fmt.Sprintf("%s%x", sessionPrefix, id[:]))
}

func partyIndexKey(party string) []byte {
	return []byte(fmt.Sprintf("%s%s", partyIndexPref, party))
}

func balancesKey(party string) []byte {
	return []byte(fmt.Sprintf("%s%s", balancesPrefix, party))
}

type partySessions struct {
	Sessions []escrow.SessionID `json:"sessions"`
}

// SessionPut validates and persists a session record, indexing it under both
// parties on first write.
func (m *Manager) SessionPut(record *escrow.SessionRecord) error {
	sanitized, err := escrow.SanitizeSession(record)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var existing escrow.SessionRecord
	known, err := m.KVGet(sessionKey(sanitized.ID), &existing)
	if err != nil {
		return err
	}
	if err := m.KVPut(sessionKey(sanitized.ID), sanitized); err != nil {
		return err
	}
	if known {
		return nil
	}
	for _, party := range []string{sanitized.Student, sanitized.Tutor} {
		var index partySessions
		if _, err := m.KVGet(partyIndexKey(party), &index); err != nil {
			return err
		}
		index.Sessions = append(index.Sessions, sanitized.ID)
		if err := m.KVPut(partyIndexKey(party), &index); err != nil {
			return err
		}
	}
	return nil
}

// SettlePut persists a session record together with the balances it settles
// in one storage batch, so a storage fault cannot leave the record and the
// funds out of step. First writes also index the record under both parties.
func (m *Manager) SettlePut(record *escrow.SessionRecord, balances map[string]*types.Balances) error {
	sanitized, err := escrow.SanitizeSession(record)
	if err != nil {
		return err
	}
	for party, b := range balances {
		if b == nil {
			return fmt.Errorf("state: nil balances for party %q", party)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var existing escrow.SessionRecord
	known, err := m.KVGet(sessionKey(sanitized.ID), &existing)
	if err != nil {
		return err
	}
	batch := m.db.NewBatch()
	if err := batchPut(batch, sessionKey(sanitized.ID), sanitized); err != nil {
		return err
	}
	if !known {
		for _, party := range []string{sanitized.Student, sanitized.Tutor} {
			var index partySessions
			if _, err := m.KVGet(partyIndexKey(party), &index); err != nil {
				return err
			}
			index.Sessions = append(index.Sessions, sanitized.ID)
			if err := batchPut(batch, partyIndexKey(party), &index); err != nil {
				return err
			}
		}
	}
	for party, b := range balances {
		if err := batchPut(batch, balancesKey(party), b); err != nil {
			return err
		}
	}
	return batch.Write()
}

// SessionGet loads a session record by id.
func (m *Manager) SessionGet(id escrow.SessionID) (*escrow.SessionRecord, bool) {
	var record escrow.SessionRecord
	ok, err := m.KVGet(sessionKey(id), &record)
	if err != nil || !ok {
		return nil, false
	}
	return &record, true
}

// SessionsByParty returns every session the party participates in, in
// creation order.
func (m *Manager) SessionsByParty(party string) ([]*escrow.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var index partySessions
	if _, err := m.KVGet(partyIndexKey(party), &index); err != nil {
		return nil, err
	}
	out := make([]*escrow.SessionRecord, 0, len(index.Sessions))
	for _, id := range index.Sessions {
		var record escrow.SessionRecord
		ok, err := m.KVGet(sessionKey(id), &record)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("state: dangling session index entry %x", id[:])
		}
		out = append(out, &record)
	}
	return out, nil
}

// BalancesGet loads a party's balance pair; nil means the party has no
// balances recorded yet.
func (m *Manager) BalancesGet(party string) (*types.Balances, error) {
	var balances types.Balances
	ok, err := m.KVGet(balancesKey(party), &balances)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &balances, nil
}

// BalancesPut persists a party's balance pair.
func (m *Manager) BalancesPut(party string, balances *types.Balances) error {
	if balances == nil {
		return errors.New("state: nil balances")
	}
	return m.KVPut(balancesKey(party), balances)
}

// NextSequence atomically increments and returns the ledger-wide booking
// sequence used to derive session identifiers.
func (m *Manager) NextSequence() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current uint64
	if _, err := m.KVGet(sequenceKey, &current); err != nil {
		return 0, err
	}
	next := current + 1
	if err := m.KVPut(sequenceKey, next); err != nil {
		return 0, err
	}
	return next, nil
}
