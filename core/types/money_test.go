package types

import (
	"errors"
	"math/big"
	"testing"
)

func mustLSK(t *testing.T, amount int64) Money {
	t.Helper()
	m, err := NewMoney(big.NewInt(amount), CurrencyLSK)
	if err != nil {
		t.Fatalf("new money: %v", err)
	}
	return m
}

func TestNewMoneyNormalizesCurrency(t *testing.T) {
	m, err := NewMoney(big.NewInt(10), " lsk ")
	if err != nil {
		t.Fatalf("new money: %v", err)
	}
	if m.Currency != CurrencyLSK {
		t.Fatalf("expected canonical currency, got %q", m.Currency)
	}
	if _, err := NewMoney(big.NewInt(10), "DOGE"); err == nil {
		t.Fatalf("expected unsupported currency error")
	}
}

func TestNewMoneyClonesInput(t *testing.T) {
	raw := big.NewInt(100)
	m, err := NewMoney(raw, CurrencyLSK)
	if err != nil {
		t.Fatalf("new money: %v", err)
	}
	raw.SetInt64(999)
	if got := m.Amount.String(); got != "100" {
		t.Fatalf("caller mutation leaked, got %s", got)
	}
}

func TestAddSub(t *testing.T) {
	a := mustLSK(t, 300)
	b := mustLSK(t, 200)

	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := sum.Amount.String(); got != "500" {
		t.Fatalf("expected 500, got %s", got)
	}

	diff, err := a.Sub(b)
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if got := diff.Amount.String(); got != "100" {
		t.Fatalf("expected 100, got %s", got)
	}

	if _, err := b.Sub(a); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected negative amount, got %v", err)
	}
}

func TestCurrencyMismatch(t *testing.T) {
	a := mustLSK(t, 1)
	foreign := Money{Amount: big.NewInt(1), Currency: "USD"}

	if _, err := a.Add(foreign); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := a.Sub(foreign); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := a.Cmp(foreign); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestSplitFeeConserves(t *testing.T) {
	cases := []struct {
		amount int64
		bps    uint32
		net    string
		fee    string
	}{
		{1_000, 250, "975", "25"},
		{1_000, 0, "1000", "0"},
		{1, 250, "1", "0"}, // truncation keeps the remainder with the tutor
		{999, 10_000, "0", "999"},
		{3, 3_333, "3", "0"},
	}
	for _, tc := range cases {
		net, fee, err := mustLSK(t, tc.amount).SplitFee(tc.bps)
		if err != nil {
			t.Fatalf("split %d bps=%d: %v", tc.amount, tc.bps, err)
		}
		if net.Amount.String() != tc.net || fee.Amount.String() != tc.fee {
			t.Fatalf("split %d bps=%d: got net=%s fee=%s", tc.amount, tc.bps, net.Amount, fee.Amount)
		}
		total := new(big.Int).Add(net.Amount, fee.Amount)
		if total.String() != big.NewInt(tc.amount).String() {
			t.Fatalf("split %d bps=%d does not conserve: %s", tc.amount, tc.bps, total)
		}
	}

	if _, _, err := mustLSK(t, 100).SplitFee(10_001); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := mustLSK(t, 42)
	clone := a.Clone()
	clone.Amount.SetInt64(7)
	if got := a.Amount.String(); got != "42" {
		t.Fatalf("clone aliased original, got %s", got)
	}
}

func TestZeroValueHelpers(t *testing.T) {
	var m Money
	if m.Sign() != 0 || m.IsPositive() {
		t.Fatalf("zero-value Money should read as zero")
	}
	if got := Zero(CurrencyLSK).String(); got != "0 LSK" {
		t.Fatalf("unexpected render %q", got)
	}
}
