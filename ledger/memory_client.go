package ledger

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
)

// MemoryClient is an in-process Client implementation used by tests across
// the pool/poolmanager/anchor packages. It models just enough ledger
// semantics to exercise the two-phase swap/liquidity protocol: accounts have
// per-token balances, storage accounts can grant SEND_ON_BEHALF, and tokens
// can have a tracked mintable supply.
type MemoryClient struct {
	mu sync.Mutex

	balances    map[[20]byte]map[[20]byte]*big.Int
	metadata    map[[20]byte][]byte
	supply      map[[20]byte]*big.Int
	permissions map[[20]byte]map[[20]byte]PermissionSet // subject -> grantee -> perms
	nextSuffix  uint64
}

// NewMemoryClient constructs an empty in-memory ledger.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		balances:    make(map[[20]byte]map[[20]byte]*big.Int),
		metadata:    make(map[[20]byte][]byte),
		supply:      make(map[[20]byte]*big.Int),
		permissions: make(map[[20]byte]map[[20]byte]PermissionSet),
	}
}

// Fund credits amount of token to account, for test setup.
func (m *MemoryClient) Fund(account, token Account, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creditLocked(account, token, amount)
}

func (m *MemoryClient) creditLocked(account, token Account, amount *big.Int) {
	bucket, ok := m.balances[account.bytes]
	if !ok {
		bucket = make(map[[20]byte]*big.Int)
		m.balances[account.bytes] = bucket
	}
	current, ok := bucket[token.bytes]
	if !ok {
		current = big.NewInt(0)
	}
	bucket[token.bytes] = new(big.Int).Add(current, amount)
}

func (m *MemoryClient) debitLocked(account, token Account, amount *big.Int) error {
	bucket, ok := m.balances[account.bytes]
	if !ok {
		return fmt.Errorf("%w: account has no balance of token", ErrRejected)
	}
	current, ok := bucket[token.bytes]
	if !ok || current.Cmp(amount) < 0 {
		return fmt.Errorf("%w: insufficient balance", ErrRejected)
	}
	bucket[token.bytes] = new(big.Int).Sub(current, amount)
	return nil
}

// AccountFromAddress parses a bech32 address, identical to the production
// adapter; MemoryClient does not stub address parsing.
func (m *MemoryClient) AccountFromAddress(address string) (Account, error) {
	return AccountFromAddress(address)
}

func (m *MemoryClient) BalancesOf(ctx context.Context, account Account) ([]Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.balances[account.bytes]
	out := make([]Balance, 0, len(bucket))
	for tokenBytes, amount := range bucket {
		if amount.Sign() == 0 {
			continue
		}
		out = append(out, Balance{
			Token:  Account{prefix: TokenPrefix, bytes: tokenBytes},
			Amount: new(big.Int).Set(amount),
		})
	}
	return out, nil
}

func (m *MemoryClient) AccountInfo(ctx context.Context, account Account) (AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := AccountInfo{Metadata: m.metadata[account.bytes]}
	if supply, ok := m.supply[account.bytes]; ok {
		info.Supply = new(big.Int).Set(supply)
	}
	return info, nil
}

// memoryBuilder accumulates ops for Publish to apply atomically.
type memoryBuilder struct {
	signer Account
	ops    []func(*MemoryClient) error
}

func (m *MemoryClient) NewTransaction(signer Account) Builder {
	return &memoryBuilder{signer: signer}
}

func (b *memoryBuilder) Send(to Account, amount *big.Int, token Account, onBehalfOf Account) Builder {
	from := b.signer
	b.ops = append(b.ops, func(m *MemoryClient) error {
		source := from
		if !onBehalfOf.IsZero() {
			if !m.hasPermissionLocked(onBehalfOf, from, PermissionSendOnBehalf) {
				return fmt.Errorf("%w: signer lacks SEND_ON_BEHALF on subject", ErrRejected)
			}
			source = onBehalfOf
		}
		if err := m.debitLocked(source, token, amount); err != nil {
			return err
		}
		m.creditLocked(to, token, amount)
		return nil
	})
	return b
}

func (b *memoryBuilder) UpdatePermissions(subject Account, permissionSet PermissionSet, onBehalfOf Account) Builder {
	grantee := b.signer
	if !onBehalfOf.IsZero() {
		grantee = onBehalfOf
	}
	b.ops = append(b.ops, func(m *MemoryClient) error {
		bucket, ok := m.permissions[subject.bytes]
		if !ok {
			bucket = make(map[[20]byte]PermissionSet)
			m.permissions[subject.bytes] = bucket
		}
		bucket[grantee.bytes] |= permissionSet
		return nil
	})
	return b
}

func (b *memoryBuilder) SetMetadata(account Account, data []byte) Builder {
	b.ops = append(b.ops, func(m *MemoryClient) error {
		m.metadata[account.bytes] = append([]byte(nil), data...)
		return nil
	})
	return b
}

func (m *MemoryClient) hasPermissionLocked(subject, grantee Account, perm PermissionSet) bool {
	bucket, ok := m.permissions[subject.bytes]
	if !ok {
		return false
	}
	return bucket[grantee.bytes]&perm != 0
}

func (m *MemoryClient) Publish(ctx context.Context, signer Account, builder Builder) (PublishResult, error) {
	mb, ok := builder.(*memoryBuilder)
	if !ok {
		return PublishResult{}, fmt.Errorf("ledger: unrecognised builder implementation")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// Snapshot balances so a failing op leaves no partial effect, matching
	// the ledger's atomic-transaction guarantee (spec §4.4.2 TX1).
	snapshot := m.snapshotLocked()
	for _, op := range mb.ops {
		if err := op(m); err != nil {
			m.restoreLocked(snapshot)
			return PublishResult{}, err
		}
	}
	hash := make([]byte, 32)
	_, _ = rand.Read(hash)
	return PublishResult{BlockHashes: [][]byte{hash}}, nil
}

func (m *MemoryClient) snapshotLocked() map[[20]byte]map[[20]byte]*big.Int {
	out := make(map[[20]byte]map[[20]byte]*big.Int, len(m.balances))
	for account, bucket := range m.balances {
		cloned := make(map[[20]byte]*big.Int, len(bucket))
		for token, amount := range bucket {
			cloned[token] = new(big.Int).Set(amount)
		}
		out[account] = cloned
	}
	return out
}

func (m *MemoryClient) restoreLocked(snapshot map[[20]byte]map[[20]byte]*big.Int) {
	m.balances = snapshot
}

func (m *MemoryClient) CreateStorageAccount(ctx context.Context, name, description string, grantSendOnBehalfToOperator bool, owner Account) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account := m.newAccountLocked(StoragePrefix)
	if grantSendOnBehalfToOperator {
		bucket := make(map[[20]byte]PermissionSet)
		bucket[m.operatorLocked().bytes] = PermissionSendOnBehalf
		m.permissions[account.bytes] = bucket
	}
	return account, nil
}

func (m *MemoryClient) CreateLPToken(ctx context.Context, pool, tokenA, tokenB Account) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := m.newAccountLocked(TokenPrefix)
	m.supply[token.bytes] = big.NewInt(0)
	meta, err := EncodeLPTokenMetadata(pool, tokenA, tokenB, 9)
	if err != nil {
		return Account{}, err
	}
	m.metadata[token.bytes] = meta
	return token, nil
}

func (m *MemoryClient) MintSupply(ctx context.Context, token Account, to Account, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	supply, ok := m.supply[token.bytes]
	if !ok {
		supply = big.NewInt(0)
	}
	m.supply[token.bytes] = new(big.Int).Add(supply, amount)
	m.creditLocked(to, token, amount)
	return nil
}

func (m *MemoryClient) BurnSupply(ctx context.Context, token Account, fromUserClient Account, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.debitLocked(fromUserClient, token, amount); err != nil {
		return err
	}
	supply, ok := m.supply[token.bytes]
	if !ok || supply.Cmp(amount) < 0 {
		return fmt.Errorf("%w: burn exceeds supply", ErrRejected)
	}
	m.supply[token.bytes] = new(big.Int).Sub(supply, amount)
	return nil
}

// operatorAccount is a fixed well-known account used as the MemoryClient's
// operator identity for SEND_ON_BEHALF grants.
var operatorAccount = Account{prefix: StoragePrefix, bytes: [20]byte{0xFF}}

func (m *MemoryClient) operatorLocked() Account {
	return operatorAccount
}

// Operator returns the fixed operator account used by this MemoryClient.
func (m *MemoryClient) Operator() Account {
	return operatorAccount
}

func (m *MemoryClient) newAccountLocked(prefix AddressPrefix) Account {
	m.nextSuffix++
	var raw [20]byte
	raw[19] = byte(m.nextSuffix)
	raw[18] = byte(m.nextSuffix >> 8)
	return Account{prefix: prefix, bytes: raw}
}
