package registry

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"novalink/core/types"
)

type memKV struct {
	entries map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{entries: make(map[string][]byte)}
}

func (m *memKV) KVGet(key []byte, out interface{}) (bool, error) {
	raw, ok := m.entries[string(key)]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *memKV) KVPut(key []byte, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[string(key)] = raw
	return nil
}

func testProfile(t *testing.T, address string) *TutorProfile {
	t.Helper()
	rate, err := types.NewMoney(big.NewInt(2_500), types.CurrencyLSK)
	if err != nil {
		t.Fatalf("new money: %v", err)
	}
	return &TutorProfile{
		Address:    address,
		Name:       "Bob the Tutor",
		Subjects:   []string{"mathematics", "physics"},
		HourlyRate: rate,
	}
}

func TestRegisterAndGet(t *testing.T) {
	ledger := NewLedger(newMemKV())
	ledger.SetNowFunc(func() int64 { return 1_700_000_000 })

	stored, err := ledger.Register(testProfile(t, "  bob  "))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if stored.Address != "bob" {
		t.Fatalf("expected trimmed address, got %q", stored.Address)
	}
	if stored.RegisteredAt != 1_700_000_000 {
		t.Fatalf("expected clock-stamped registration, got %d", stored.RegisteredAt)
	}

	fetched, err := ledger.Get("bob")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Name != "Bob the Tutor" || len(fetched.Subjects) != 2 {
		t.Fatalf("unexpected profile %+v", fetched)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	ledger := NewLedger(newMemKV())
	if _, err := ledger.Register(testProfile(t, "bob")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := ledger.Register(testProfile(t, "bob")); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected already registered, got %v", err)
	}
}

func TestRegisterValidations(t *testing.T) {
	ledger := NewLedger(newMemKV())

	missingName := testProfile(t, "bob")
	missingName.Name = "   "
	if _, err := ledger.Register(missingName); err == nil {
		t.Fatalf("expected name validation error")
	}

	noSubjects := testProfile(t, "bob")
	noSubjects.Subjects = nil
	if _, err := ledger.Register(noSubjects); err == nil {
		t.Fatalf("expected subjects validation error")
	}

	freeTutor := testProfile(t, "bob")
	freeTutor.HourlyRate = types.Zero(types.CurrencyLSK)
	if _, err := ledger.Register(freeTutor); err == nil {
		t.Fatalf("expected hourly rate validation error")
	}
}

func TestGetUnknown(t *testing.T) {
	ledger := NewLedger(newMemKV())
	if _, err := ledger.Get("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	ledger := NewLedger(newMemKV())
	for _, address := range []string{"carol", "alice", "bob"} {
		if _, err := ledger.Register(testProfile(t, address)); err != nil {
			t.Fatalf("register %s: %v", address, err)
		}
	}
	profiles, err := ledger.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(profiles) != 3 {
		t.Fatalf("expected 3 profiles, got %d", len(profiles))
	}
	for i, want := range []string{"carol", "alice", "bob"} {
		if profiles[i].Address != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, profiles[i].Address)
		}
	}
}

func TestRegisterReturnsCopy(t *testing.T) {
	ledger := NewLedger(newMemKV())
	stored, err := ledger.Register(testProfile(t, "bob"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	stored.Subjects[0] = "tampered"

	fetched, err := ledger.Get("bob")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Subjects[0] != "mathematics" {
		t.Fatalf("caller mutation leaked into storage: %v", fetched.Subjects)
	}
}
