package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// storage abstracts the subset of state manager functionality required by the
// tutor registry.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	profilePrefix   = []byte("registry/tutor/")
	registryListKey = []byte("registry/index")
)

func profileKey(address string) []byte {
	return []byte(fmt.Sprintf("%s%s", profilePrefix, strings.TrimSpace(address)))
}

type addressIndex struct {
	Addresses []string `json:"addresses"`
}

// Ledger persists tutor profiles keyed by wallet address.
type Ledger struct {
	mu    sync.Mutex
	store storage
	nowFn func() int64
}

// NewLedger constructs a registry bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{
		store: store,
		nowFn: func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the registration clock, primarily for tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	if l == nil {
		return
	}
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

// Register stores a new tutor profile. Addresses are unique; registering an
// existing address fails with ErrAlreadyRegistered.
func (l *Ledger) Register(profile *TutorProfile) (*TutorProfile, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("registry: ledger not initialised")
	}
	if profile == nil {
		return nil, errors.New("registry: nil profile")
	}
	sanitized := profile.Clone()
	sanitized.Address = strings.TrimSpace(sanitized.Address)
	sanitized.Name = strings.TrimSpace(sanitized.Name)
	for i, subject := range sanitized.Subjects {
		sanitized.Subjects[i] = strings.TrimSpace(subject)
	}
	if sanitized.RegisteredAt <= 0 {
		sanitized.RegisteredAt = l.nowFn()
	}
	if err := sanitized.Validate(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var existing TutorProfile
	found, err := l.store.KVGet(profileKey(sanitized.Address), &existing)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, ErrAlreadyRegistered
	}
	if err := l.store.KVPut(profileKey(sanitized.Address), sanitized); err != nil {
		return nil, err
	}
	var index addressIndex
	if _, err := l.store.KVGet(registryListKey, &index); err != nil {
		return nil, err
	}
	index.Addresses = append(index.Addresses, sanitized.Address)
	if err := l.store.KVPut(registryListKey, &index); err != nil {
		return nil, err
	}
	return sanitized.Clone(), nil
}

// Get fetches the profile for an address.
func (l *Ledger) Get(address string) (*TutorProfile, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("registry: ledger not initialised")
	}
	var profile TutorProfile
	found, err := l.store.KVGet(profileKey(address), &profile)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return profile.Clone(), nil
}

// List returns every registered profile in registration order.
func (l *Ledger) List() ([]*TutorProfile, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("registry: ledger not initialised")
	}
	var index addressIndex
	if _, err := l.store.KVGet(registryListKey, &index); err != nil {
		return nil, err
	}
	out := make([]*TutorProfile, 0, len(index.Addresses))
	for _, address := range index.Addresses {
		var profile TutorProfile
		found, err := l.store.KVGet(profileKey(address), &profile)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		out = append(out, profile.Clone())
	}
	return out, nil
}
