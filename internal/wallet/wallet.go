// Package wallet provides HD key derivation, address encoding and transaction
// signing for Dash. Network parameters are always passed in explicitly.
package wallet

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/klingon-exchange/dashwallet/internal/chain"
)

// Wallet holds the root node derived from a mnemonic. It is never persisted.
type Wallet struct {
	root   *PrivateNode
	params *chain.Params
	mu     sync.RWMutex

	// Derived nodes keyed by path text
	cache map[string]*PrivateNode
}

// NewFromMnemonic creates a wallet from a BIP39 mnemonic.
// The passphrase is optional (can be empty string).
func NewFromMnemonic(mnemonic, passphrase string, params *chain.Params) (*Wallet, error) {
	seed, err := SeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	return NewFromSeed(seed, params)
}

// NewFromSeed creates a wallet from a raw BIP39 seed.
func NewFromSeed(seed []byte, params *chain.Params) (*Wallet, error) {
	root, err := NewMasterNode(seed, params)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		root:   root,
		params: params,
		cache:  make(map[string]*PrivateNode),
	}, nil
}

// Params returns the wallet's network parameters.
func (w *Wallet) Params() *chain.Params {
	return w.params
}

// Root returns the master node.
func (w *Wallet) Root() *PrivateNode {
	return w.root
}

// DeriveNode derives the node at path from the root.
func (w *Wallet) DeriveNode(path KeyPath) (*PrivateNode, error) {
	key := path.String()

	w.mu.RLock()
	node, ok := w.cache[key]
	w.mu.RUnlock()
	if ok {
		return node, nil
	}

	node, err := w.root.DerivePath(path)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.cache[key] = node
	w.mu.Unlock()

	return node, nil
}

// DeriveAddress derives the P2PKH address at path.
func (w *Wallet) DeriveAddress(path KeyPath) (string, error) {
	node, err := w.DeriveNode(path)
	if err != nil {
		return "", err
	}
	return PubKeyAddress(node.PublicKey(), w.params)
}

// DerivePrivateKey derives the private key at path.
func (w *Wallet) DerivePrivateKey(path KeyPath) (*btcec.PrivateKey, error) {
	node, err := w.DeriveNode(path)
	if err != nil {
		return nil, err
	}
	return node.PrivateKey(), nil
}

// AccountXPub returns the watch-only extended public key at path. An empty
// path returns the root xpub.
func (w *Wallet) AccountXPub(path KeyPath) (string, error) {
	if len(path) == 0 {
		return w.root.Neuter().String(), nil
	}

	node, err := w.DeriveNode(path)
	if err != nil {
		return "", err
	}
	return node.Neuter().String(), nil
}

// BIP44Path returns m/44'/coin'/account'/change/index for the wallet's network.
func (w *Wallet) BIP44Path(account, change, index uint32) KeyPath {
	return KeyPath(w.params.DerivationPath(account, change, index))
}

// DeriveChildAddress derives the P2PKH address at path below an xpub. It needs
// no private key, so path must be non-hardened.
func DeriveChildAddress(xpub string, path KeyPath, params *chain.Params) (string, error) {
	node, err := ParsePublicNode(xpub, params)
	if err != nil {
		return "", err
	}

	child, err := node.DerivePath(path)
	if err != nil {
		return "", fmt.Errorf("failed to derive %s: %w", path, err)
	}

	return PubKeyAddress(child.PublicKey(), params)
}
