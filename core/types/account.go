package types

// Balances tracks the two accounting buckets kept per marketplace party. The
// available bucket is spendable; the reserved bucket holds funds earmarked for
// active or disputed sessions and is only movable by the escrow engine.
type Balances struct {
	Available Money `json:"available"`
	Reserved  Money `json:"reserved"`
}

// NewBalances returns an empty balance pair in the given canonical currency.
func NewBalances(currency string) *Balances {
	return &Balances{Available: Zero(currency), Reserved: Zero(currency)}
}

// Clone returns a deep copy so callers can mutate the result freely.
func (b *Balances) Clone() *Balances {
	if b == nil {
		return nil
	}
	return &Balances{Available: b.Available.Clone(), Reserved: b.Reserved.Clone()}
}
