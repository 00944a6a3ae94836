package server

import (
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"ammrelay/apierr"
	"ammrelay/ledger"
)

// parseAmount decodes a base-10 atomic-unit amount string from a request
// body, rejecting negative values and anything that overflows uint256.
func parseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, apierr.Newf(apierr.InvalidInput, "amount is required")
	}
	big, ok := new(big.Int).SetString(s, 10)
	if !ok || big.Sign() < 0 {
		return nil, apierr.Newf(apierr.InvalidInput, "invalid amount %q", s)
	}
	v, overflow := uint256.FromBig(big)
	if overflow {
		return nil, apierr.Newf(apierr.InvalidInput, "amount %q overflows uint256", s)
	}
	return v, nil
}

// parseAccount decodes a bech32 account address from a request field.
func parseAccount(s string) (ledger.Account, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ledger.Account{}, apierr.Newf(apierr.InvalidInput, "address is required")
	}
	acct, err := ledger.AccountFromAddress(s)
	if err != nil {
		return ledger.Account{}, apierr.Newf(apierr.InvalidInput, "invalid address %q: %v", s, err)
	}
	return acct, nil
}
