package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// CurrencyLSK is the marketplace settlement token. Amounts are expressed in
// minor units (beddows, 10^-8 LSK).
const CurrencyLSK = "LSK"

var (
	// ErrCurrencyMismatch is returned when arithmetic mixes currencies.
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	// ErrNegativeAmount is returned when an operation would produce a
	// negative balance.
	ErrNegativeAmount = errors.New("money: negative amount")
)

// Money is an exact fixed-point amount: integer minor units plus a currency
// code. The zero value is not valid; construct values via NewMoney or Zero.
type Money struct {
	Amount   *big.Int `json:"amount"`
	Currency string   `json:"currency"`
}

// NewMoney builds a Money value from minor units. The amount is cloned so the
// caller retains ownership of the input.
func NewMoney(amount *big.Int, currency string) (Money, error) {
	normalized, err := NormalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	return Money{Amount: new(big.Int).Set(amount), Currency: normalized}, nil
}

// Zero returns the zero amount in the given currency. The currency is assumed
// to be canonical already.
func Zero(currency string) Money {
	return Money{Amount: big.NewInt(0), Currency: currency}
}

// NormalizeCurrency validates the currency code and returns its canonical
// uppercase form.
func NormalizeCurrency(code string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	switch trimmed {
	case CurrencyLSK:
		return trimmed, nil
	default:
		return "", fmt.Errorf("money: unsupported currency %q", code)
	}
}

func (m Money) amountOrZero() *big.Int {
	if m.Amount == nil {
		return big.NewInt(0)
	}
	return m.Amount
}

// Clone returns a deep copy of the amount.
func (m Money) Clone() Money {
	return Money{Amount: new(big.Int).Set(m.amountOrZero()), Currency: m.Currency}
}

// Sign reports -1, 0 or +1 depending on the sign of the amount.
func (m Money) Sign() int { return m.amountOrZero().Sign() }

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.Sign() > 0 }

// Cmp compares two amounts of the same currency.
func (m Money) Cmp(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, ErrCurrencyMismatch
	}
	return m.amountOrZero().Cmp(other.amountOrZero()), nil
}

// Add returns m + other. Both operands must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	sum := new(big.Int).Add(m.amountOrZero(), other.amountOrZero())
	return Money{Amount: sum, Currency: m.Currency}, nil
}

// Sub returns m - other. The result must not be negative; balances never go
// below zero outside the reserved accounting bucket.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	diff := new(big.Int).Sub(m.amountOrZero(), other.amountOrZero())
	if diff.Sign() < 0 {
		return Money{}, ErrNegativeAmount
	}
	return Money{Amount: diff, Currency: m.Currency}, nil
}

// SplitFee carves a basis-point fee out of the amount, returning (net, fee).
// Division truncates toward zero so net+fee always equals the original amount.
func (m Money) SplitFee(feeBps uint32) (Money, Money, error) {
	if feeBps > 10_000 {
		return Money{}, Money{}, fmt.Errorf("money: fee bps out of range: %d", feeBps)
	}
	total := m.amountOrZero()
	fee := new(big.Int).Mul(total, new(big.Int).SetUint64(uint64(feeBps)))
	fee.Div(fee, big.NewInt(10_000))
	net := new(big.Int).Sub(total, fee)
	return Money{Amount: net, Currency: m.Currency},
		Money{Amount: fee, Currency: m.Currency}, nil
}

// String renders the amount as "<minor units> <currency>".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amountOrZero().String(), m.Currency)
}
