// Package credential holds a signing key for the duration of one registry
// operation. Keys are derived from a 25-word account mnemonic and are wiped
// as soon as the operation has signed its transactions.
package credential

import (
	"crypto/ed25519"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/algorand/go-algorand-sdk/v2/types"

	dErrors "algodid/pkg/domain-errors"
)

// Credential signs transactions for one account.
type Credential struct {
	mu      sync.Mutex
	sk      ed25519.PrivateKey
	address types.Address
}

// FromMnemonic derives a credential from an account mnemonic.
func FromMnemonic(phrase string) (*Credential, error) {
	sk, err := mnemonic.ToPrivateKey(phrase)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid mnemonic")
	}
	return FromPrivateKey(sk)
}

// FromPrivateKey wraps an existing key. The credential takes ownership of sk.
func FromPrivateKey(sk ed25519.PrivateKey) (*Credential, error) {
	account, err := crypto.AccountFromPrivateKey(sk)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid private key")
	}
	return &Credential{sk: sk, address: account.Address}, nil
}

// Address returns the account address of the credential.
func (c *Credential) Address() types.Address {
	return c.address
}

// PublicKey returns the raw 32-byte public key.
func (c *Credential) PublicKey() []byte {
	key := make([]byte, len(c.address))
	copy(key, c.address[:])
	return key
}

// SignTransaction signs txn and returns its id and the encoded signed transaction.
func (c *Credential) SignTransaction(txn types.Transaction) (string, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sk == nil {
		return "", nil, dErrors.New(dErrors.CodeSigningFailed, "credential has been wiped")
	}
	if txn.Sender != c.address {
		return "", nil, dErrors.Newf(dErrors.CodeSigningFailed,
			"transaction sender %s does not match credential %s", txn.Sender, c.address)
	}
	txID, blob, err := crypto.SignTransaction(c.sk, txn)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeSigningFailed, "sign transaction")
	}
	return txID, blob, nil
}

// Wipe zeroes the secret key. Further signing attempts fail.
func (c *Credential) Wipe() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.sk {
		c.sk[i] = 0
	}
	c.sk = nil
}

// Wiped reports whether Wipe has been called.
func (c *Credential) Wiped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sk == nil
}
