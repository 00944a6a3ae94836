package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"
)

// Errors surfaced by Client implementations, classified per spec §7.
var (
	// ErrTimeout indicates a ledger call exceeded its deadline. Reads may be
	// retried; publish must never be retried automatically (§5).
	ErrTimeout = errors.New("ledger: call timed out")
	// ErrRejected indicates the ledger rejected a published transaction.
	ErrRejected = errors.New("ledger: transaction rejected")
	// ErrAccountNotFound indicates the referenced account does not exist.
	ErrAccountNotFound = errors.New("ledger: account not found")
)

// Balance pairs a token account with an observed amount.
type Balance struct {
	Token  Account
	Amount *big.Int
}

// AccountInfo captures the subset of account metadata the core depends on.
type AccountInfo struct {
	// Metadata is the opaque bytes attached to the account; by convention,
	// for LP tokens this is UTF-8 JSON matching LPTokenMetadata.
	Metadata []byte
	// Supply is populated for token accounts that mint/burn a fungible
	// supply (e.g. LP tokens); nil for plain storage/holding accounts.
	Supply *big.Int
}

// PermissionSet enumerates the access grants a storage account can delegate.
type PermissionSet uint8

const (
	// PermissionSendOnBehalf allows the grantee to originate sends from the
	// subject account in a transaction the grantee itself signs.
	PermissionSendOnBehalf PermissionSet = 1 << iota
)

// Builder accumulates operations for a single atomic ledger transaction.
// Every call either succeeds or the whole transaction is rejected atomically
// at Publish time; there is no partial application.
type Builder interface {
	// Send queues a transfer of amount of token from the builder's signer
	// (or, if onBehalfOf is non-zero, from onBehalfOf using a previously
	// granted PermissionSendOnBehalf) to the recipient.
	Send(to Account, amount *big.Int, token Account, onBehalfOf Account) Builder
	// UpdatePermissions grants or revokes permissionSet on subject for the
	// builder's signer (or onBehalfOf, symmetric to Send).
	UpdatePermissions(subject Account, permissionSet PermissionSet, onBehalfOf Account) Builder
	// SetMetadata attaches opaque bytes to an account, used to encode the
	// LP-token pool/pair mapping.
	SetMetadata(account Account, data []byte) Builder
}

// PublishResult reports the ledger blocks produced by a successful publish.
type PublishResult struct {
	BlockHashes [][]byte
}

// Client is the narrow ledger interface every other package in this module
// depends on. It is the only seam through which the coordinator touches the
// ledger; no other package may import a concrete ledger SDK.
type Client interface {
	AccountFromAddress(address string) (Account, error)
	BalancesOf(ctx context.Context, account Account) ([]Balance, error)
	AccountInfo(ctx context.Context, account Account) (AccountInfo, error)

	NewTransaction(signer Account) Builder
	Publish(ctx context.Context, signer Account, b Builder) (PublishResult, error)

	CreateStorageAccount(ctx context.Context, name, description string, grantSendOnBehalfToOperator bool, owner Account) (Account, error)
	CreateLPToken(ctx context.Context, pool, tokenA, tokenB Account) (Account, error)

	MintSupply(ctx context.Context, token Account, to Account, amount *big.Int) error
	BurnSupply(ctx context.Context, token Account, fromUserClient Account, amount *big.Int) error
}

// WithDeadline applies the standard per-call ledger deadline, returning a
// context and cancel func the caller must defer. A zero deadline disables
// the timeout (used only in tests).
func WithDeadline(ctx context.Context, deadline time.Duration) (context.Context, context.CancelFunc) {
	if deadline <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, deadline)
}

// ClassifyError maps a raw error returned by a Client call into one of the
// sentinel kinds above, so the HTTP surface can render a stable error code
// regardless of which adapter call failed.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
