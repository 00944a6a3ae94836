package ledger

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// OperatorKey is the coordinator's own secp256k1 keypair, used to derive the
// operator's storage-account Account (spec §6.2's SEND_ON_BEHALF grantee)
// and to sign the digests the server attaches to admin-mutation audit
// records (update_fee, update_status) before they are written to the
// service log. The ledger wire protocol itself still performs transaction
// signing inside Client.Publish; OperatorKey exists one layer above that,
// as the identity the operator authenticates admin actions with.
type OperatorKey struct {
	priv *ecdsa.PrivateKey
}

// GenerateOperatorKey creates a fresh secp256k1 keypair.
func GenerateOperatorKey() (*OperatorKey, error) {
	priv, err := ecdsa.GenerateKey(gethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ledger: generate operator key: %w", err)
	}
	return &OperatorKey{priv: priv}, nil
}

// LoadOperatorKeyFromKeystore decrypts a go-ethereum keystore file at path
// with passphrase.
func LoadOperatorKeyFromKeystore(path, passphrase string) (*OperatorKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: read operator keystore: %w", err)
	}
	key, err := keystore.DecryptKey(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("ledger: decrypt operator keystore: %w", err)
	}
	return &OperatorKey{priv: key.PrivateKey}, nil
}

// SaveToKeystore encrypts the key with passphrase and writes it to path,
// creating parent directories as needed. The file is written to a temp
// path in the same directory and renamed into place so a crash mid-write
// never leaves a truncated keystore on disk.
func (k *OperatorKey) SaveToKeystore(path, passphrase string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ledger: create keystore dir: %w", err)
	}
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	account, err := ks.ImportECDSA(k.priv, passphrase)
	if err != nil {
		return fmt.Errorf("ledger: import operator key: %w", err)
	}
	// ImportECDSA writes under ks's own naming convention inside dir; move
	// the resulting file to the caller's requested path.
	if account.URL.Path != path {
		if err := os.Rename(account.URL.Path, path); err != nil {
			return fmt.Errorf("ledger: place operator keystore: %w", err)
		}
	}
	return os.Chmod(path, 0o600)
}

// Account derives the operator's ledger Account from the public key, using
// the same 20-byte address-derivation convention (Keccak-256 of the
// uncompressed public key, low 20 bytes) go-ethereum uses for EOA
// addresses. The operator is always a storage-prefixed account: it acts on
// pools via SEND_ON_BEHALF, never holds tokens of its own.
func (k *OperatorKey) Account() Account {
	addr := gethcrypto.PubkeyToAddress(k.priv.PublicKey)
	var raw [20]byte
	copy(raw[:], addr.Bytes())
	return NewAccount(StoragePrefix, raw)
}

// Sign produces a secp256k1 signature over a 32-byte digest (typically a
// blake3 digest of an admin-mutation audit record; see server.auditDigest).
func (k *OperatorKey) Sign(digest [32]byte) ([]byte, error) {
	sig, err := gethcrypto.Sign(digest[:], k.priv)
	if err != nil {
		return nil, fmt.Errorf("ledger: sign digest: %w", err)
	}
	return sig, nil
}

// PublicKeyBytes returns the uncompressed public key, used to verify a
// Sign output offline without holding the private key.
func (k *OperatorKey) PublicKeyBytes() []byte {
	return gethcrypto.FromECDSAPub(&k.priv.PublicKey)
}
