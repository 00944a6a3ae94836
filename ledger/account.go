// Package ledger is the narrow adapter over the external ledger client
// described in spec §4.2/§6.2. It is the only package in this module
// permitted to touch ledger wire types; everything above it works with the
// Account/Client interfaces defined here.
package ledger

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix is the human-readable bech32 prefix for a ledger address.
type AddressPrefix string

const (
	// TokenPrefix identifies a token account address.
	TokenPrefix AddressPrefix = "led"
	// StoragePrefix identifies a storage account address.
	StoragePrefix AddressPrefix = "lst"
)

// Account is a decoded 20-byte ledger address. Two accounts compare equal iff
// their raw bytes are equal, regardless of prefix, matching the ledger's
// account model where a single address may be addressed under more than one
// human-readable prefix.
type Account struct {
	prefix AddressPrefix
	bytes  [20]byte
}

// AccountFromAddress decodes a bech32-encoded ledger address string into an
// Account, per spec §4.2 account_from_address.
func AccountFromAddress(address string) (Account, error) {
	prefix, decoded, err := bech32.Decode(address)
	if err != nil {
		return Account{}, fmt.Errorf("ledger: decode address: %w", err)
	}
	raw, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Account{}, fmt.Errorf("ledger: convert address bits: %w", err)
	}
	if len(raw) != 20 {
		return Account{}, fmt.Errorf("ledger: address must decode to 20 bytes, got %d", len(raw))
	}
	var acct Account
	acct.prefix = AddressPrefix(prefix)
	copy(acct.bytes[:], raw)
	return acct, nil
}

// MustAccountFromAddress decodes an address, panicking on failure. Reserved
// for tests and startup-time constants.
func MustAccountFromAddress(address string) Account {
	acct, err := AccountFromAddress(address)
	if err != nil {
		panic(err)
	}
	return acct
}

// NewAccount constructs an Account from a raw 20-byte address and prefix.
func NewAccount(prefix AddressPrefix, raw [20]byte) Account {
	return Account{prefix: prefix, bytes: raw}
}

// String renders the account back into its bech32 address form.
func (a Account) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the account's raw address bytes.
func (a Account) Bytes() [20]byte {
	return a.bytes
}

// IsZero reports whether the account is the empty/unset value.
func (a Account) IsZero() bool {
	return a.bytes == [20]byte{}
}

// Equal reports whether two accounts share the same raw address.
func (a Account) Equal(other Account) bool {
	return a.bytes == other.bytes
}
