package gateway

import (
	"fmt"
	"regexp"
	"strings"
)

// Wallet addresses arrive in two shapes: legacy Lisk numeric addresses with a
// trailing L, and 0x-prefixed hex account addresses. The ledger itself treats
// party ids as opaque strings; the gateway canonicalises the caller-facing
// form so the same wallet always maps to the same party.
var (
	liskAddressRe = regexp.MustCompile(`^\d{10,21}L$`)
	hexAddressRe  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// TranslateWalletAddress validates a wallet address and returns the canonical
// internal party id.
func TranslateWalletAddress(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	switch {
	case liskAddressRe.MatchString(trimmed):
		return trimmed, nil
	case hexAddressRe.MatchString(trimmed):
		return strings.ToLower(trimmed), nil
	default:
		return "", fmt.Errorf("gateway: unrecognised wallet address %q", address)
	}
}
