package credential

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"lukechampine.com/blake3"

	"novalink/native/escrow"
)

// storage abstracts the subset of state manager functionality required by the
// content store.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	// ErrNotFound marks lookups for unknown content hashes.
	ErrNotFound = errors.New("credential: content not found")
	// ErrEmptyContent marks attempts to store an empty blob.
	ErrEmptyContent = errors.New("credential: content required")
)

var (
	blobPrefix  = []byte("credential/blob/")
	notesPrefix = []byte("credential/notes/")
)

// Hash is the blake3 digest addressing stored content.
type Hash [32]byte

// Hex renders the hash as a plain hex string, the form used in tutor profiles
// and RPC payloads.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// ParseHash decodes a 32-byte hex content hash.
func ParseHash(s string) (Hash, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Hash{}, fmt.Errorf("credential: invalid content hash: %w", err)
	}
	if len(raw) != 32 {
		return Hash{}, fmt.Errorf("credential: invalid content hash length %d", len(raw))
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

type storedBlob struct {
	Data   []byte `json:"data"`
	Name   string `json:"name,omitempty"`
	Type   string `json:"type,omitempty"`
	Pinned bool   `json:"pinned"`
}

// Store is a content-addressed blob store for tutor credential bundles and
// session notes. Content is keyed by its blake3 digest, so uploads are
// idempotent and retrieval verifies integrity by construction.
type Store struct {
	store storage
}

// NewStore constructs a content store bound to the provided backend.
func NewStore(store storage) *Store {
	return &Store{store: store}
}

func blobKey(h Hash) []byte {
	return []byte(fmt.Sprintf("%s%x", blobPrefix, h[:]))
}

func notesKey(id escrow.SessionID) []byte {
	return []byte(fmt.Sprintf("%s%x", notesPrefix, id[:]))
}

// Put stores a blob and returns its content hash. Re-uploading identical
// content is a no-op that preserves any existing pin.
func (s *Store) Put(data []byte, name, contentType string) (Hash, error) {
	if s == nil || s.store == nil {
		return Hash{}, errors.New("credential: store not initialised")
	}
	if len(data) == 0 {
		return Hash{}, ErrEmptyContent
	}
	h := Hash(blake3.Sum256(data))
	var existing storedBlob
	found, err := s.store.KVGet(blobKey(h), &existing)
	if err != nil {
		return Hash{}, err
	}
	if found {
		return h, nil
	}
	blob := storedBlob{
		Data: append([]byte(nil), data...),
		Name: strings.TrimSpace(name),
		Type: strings.TrimSpace(contentType),
	}
	if err := s.store.KVPut(blobKey(h), &blob); err != nil {
		return Hash{}, err
	}
	return h, nil
}

// Get retrieves a stored blob by content hash.
func (s *Store) Get(h Hash) ([]byte, bool, error) {
	if s == nil || s.store == nil {
		return nil, false, errors.New("credential: store not initialised")
	}
	var blob storedBlob
	found, err := s.store.KVGet(blobKey(h), &blob)
	if err != nil || !found {
		return nil, false, err
	}
	return blob.Data, true, nil
}

// Pin marks content for retention. Unpinned blobs are candidates for a future
// garbage-collection pass; pinned blobs are never collected.
func (s *Store) Pin(h Hash) error {
	if s == nil || s.store == nil {
		return errors.New("credential: store not initialised")
	}
	var blob storedBlob
	found, err := s.store.KVGet(blobKey(h), &blob)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if blob.Pinned {
		return nil
	}
	blob.Pinned = true
	return s.store.KVPut(blobKey(h), &blob)
}

// Pinned reports whether content is pinned.
func (s *Store) Pinned(h Hash) (bool, error) {
	if s == nil || s.store == nil {
		return false, errors.New("credential: store not initialised")
	}
	var blob storedBlob
	found, err := s.store.KVGet(blobKey(h), &blob)
	if err != nil {
		return false, err
	}
	if !found {
		return false, ErrNotFound
	}
	return blob.Pinned, nil
}

// AttachSessionNotes links a stored notes blob to a session. The content must
// already exist in the store.
func (s *Store) AttachSessionNotes(sessionID escrow.SessionID, h Hash) error {
	if s == nil || s.store == nil {
		return errors.New("credential: store not initialised")
	}
	var blob storedBlob
	found, err := s.store.KVGet(blobKey(h), &blob)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return s.store.KVPut(notesKey(sessionID), h)
}

// SessionNotes resolves the notes hash attached to a session, if any.
func (s *Store) SessionNotes(sessionID escrow.SessionID) (Hash, bool, error) {
	if s == nil || s.store == nil {
		return Hash{}, false, errors.New("credential: store not initialised")
	}
	var h Hash
	found, err := s.store.KVGet(notesKey(sessionID), &h)
	if err != nil || !found {
		return Hash{}, false, err
	}
	return h, true, nil
}
