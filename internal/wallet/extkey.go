package wallet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/klingon-exchange/dashwallet/internal/chain"
)

// HardenedKeyStart is the index of the first hardened child.
const HardenedKeyStart = hdkeychain.HardenedKeyStart

// PrivateNode is a BIP32 extended key node that holds a private key.
// Nodes are immutable and safe to share between goroutines.
type PrivateNode struct {
	key    *hdkeychain.ExtendedKey
	params *chain.Params
}

// PublicNode is a watch-only BIP32 extended key node. It can only derive
// non-hardened children.
type PublicNode struct {
	key    *hdkeychain.ExtendedKey
	params *chain.Params
}

// NewMasterNode creates the root node from a BIP39 seed.
func NewMasterNode(seed []byte, params *chain.Params) (*PrivateNode, error) {
	key, err := hdkeychain.NewMaster(seed, params.ChainCfg())
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	return &PrivateNode{key: key, params: params}, nil
}

// ParsePrivateNode parses an xprv/tprv string serialized for params.
func ParsePrivateNode(text string, params *chain.Params) (*PrivateNode, error) {
	key, err := parseExtendedKey(text, params.HDPrivateKeyID, params.HDPublicKeyID)
	if err != nil {
		return nil, err
	}
	if !key.IsPrivate() {
		return nil, fmt.Errorf("%w: not a private key", ErrInvalidExtendedKey)
	}
	return &PrivateNode{key: key, params: params}, nil
}

// ParsePublicNode parses an xpub/tpub string serialized for params.
// A private key string is rejected rather than silently neutered.
func ParsePublicNode(text string, params *chain.Params) (*PublicNode, error) {
	key, err := parseExtendedKey(text, params.HDPublicKeyID, params.HDPrivateKeyID)
	if err != nil {
		return nil, err
	}
	if key.IsPrivate() {
		return nil, fmt.Errorf("%w: expected a public key", ErrInvalidExtendedKey)
	}

	pub, err := key.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExtendedKey, err)
	}
	if _, err := secp256k1.ParsePubKey(pub.SerializeCompressed()); err != nil {
		return nil, fmt.Errorf("%w: public key not on curve: %v", ErrInvalidExtendedKey, err)
	}

	return &PublicNode{key: key, params: params}, nil
}

// parseExtendedKey decodes text and checks that its version bytes are want.
// other is the opposite kind of the same network, reported as a kind mismatch
// rather than a network mismatch.
func parseExtendedKey(text string, want, other [4]byte) (*hdkeychain.ExtendedKey, error) {
	key, err := hdkeychain.NewKeyFromString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExtendedKey, err)
	}

	version := key.Version()
	switch {
	case bytes.Equal(version, want[:]):
		return key, nil
	case bytes.Equal(version, other[:]):
		return nil, fmt.Errorf("%w: wrong key kind", ErrInvalidExtendedKey)
	default:
		return nil, fmt.Errorf("%w: version %x", ErrWrongNetwork, version)
	}
}

// Derive returns the child at index i. Indices at or above HardenedKeyStart
// produce hardened children.
func (n *PrivateNode) Derive(i uint32) (*PrivateNode, error) {
	child, err := n.key.Derive(i)
	if err != nil {
		return nil, fmt.Errorf("failed to derive child %d: %w", i, err)
	}
	return &PrivateNode{key: child, params: n.params}, nil
}

// Neuter returns the public-only counterpart of the node. Chain code, depth,
// parent fingerprint and child index are preserved.
func (n *PrivateNode) Neuter() *PublicNode {
	// hdkeychain's own Neuter looks the version up in the chaincfg registry,
	// which Dash params are never added to.
	pub, _ := n.key.ECPubKey()

	var parentFP [4]byte
	binary.BigEndian.PutUint32(parentFP[:], n.key.ParentFingerprint())

	key := hdkeychain.NewExtendedKey(
		n.params.HDPublicKeyID[:],
		pub.SerializeCompressed(),
		n.key.ChainCode(),
		parentFP[:],
		n.key.Depth(),
		n.key.ChildIndex(),
		false,
	)
	return &PublicNode{key: key, params: n.params}
}

// PrivateKey returns the node's secp256k1 private key.
func (n *PrivateNode) PrivateKey() *btcec.PrivateKey {
	priv, _ := n.key.ECPrivKey()
	return priv
}

// PublicKey returns the node's secp256k1 public key.
func (n *PrivateNode) PublicKey() *btcec.PublicKey {
	pub, _ := n.key.ECPubKey()
	return pub
}

// Fingerprint returns the first four bytes of HASH160 of the public key.
func (n *PrivateNode) Fingerprint() uint32 {
	return fingerprint(n.PublicKey())
}

// Depth returns the number of derivation steps from the master node.
func (n *PrivateNode) Depth() uint8 { return n.key.Depth() }

// ChildIndex returns the index this node was derived at.
func (n *PrivateNode) ChildIndex() uint32 { return n.key.ChildIndex() }

// ParentFingerprint returns the fingerprint of the parent node (0 for master).
func (n *PrivateNode) ParentFingerprint() uint32 { return n.key.ParentFingerprint() }

// ChainCode returns a copy of the 32-byte chain code.
func (n *PrivateNode) ChainCode() []byte { return append([]byte(nil), n.key.ChainCode()...) }

// Params returns the network the node is serialized for.
func (n *PrivateNode) Params() *chain.Params { return n.params }

// String returns the xprv/tprv serialization.
func (n *PrivateNode) String() string { return n.key.String() }

// Derive returns the non-hardened child at index i.
func (n *PublicNode) Derive(i uint32) (*PublicNode, error) {
	if i >= HardenedKeyStart {
		return nil, fmt.Errorf("%w: index %d", ErrHardenedFromPublic, i)
	}

	child, err := n.key.Derive(i)
	if err != nil {
		if errors.Is(err, hdkeychain.ErrDeriveHardFromPublic) {
			return nil, ErrHardenedFromPublic
		}
		return nil, fmt.Errorf("failed to derive child %d: %w", i, err)
	}
	return &PublicNode{key: child, params: n.params}, nil
}

// PublicKey returns the node's secp256k1 public key.
func (n *PublicNode) PublicKey() *btcec.PublicKey {
	pub, _ := n.key.ECPubKey()
	return pub
}

// Fingerprint returns the first four bytes of HASH160 of the public key.
func (n *PublicNode) Fingerprint() uint32 {
	return fingerprint(n.PublicKey())
}

func (n *PublicNode) Depth() uint8              { return n.key.Depth() }
func (n *PublicNode) ChildIndex() uint32        { return n.key.ChildIndex() }
func (n *PublicNode) ParentFingerprint() uint32 { return n.key.ParentFingerprint() }
func (n *PublicNode) ChainCode() []byte         { return append([]byte(nil), n.key.ChainCode()...) }
func (n *PublicNode) Params() *chain.Params     { return n.params }

// String returns the xpub/tpub serialization.
func (n *PublicNode) String() string { return n.key.String() }

func fingerprint(pub *btcec.PublicKey) uint32 {
	return binary.BigEndian.Uint32(btcutil.Hash160(pub.SerializeCompressed())[:4])
}
