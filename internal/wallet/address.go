package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/txscript"
	"github.com/klingon-exchange/dashwallet/internal/chain"
)

// DecodedAddress is the result of a successful DecodeAddress.
type DecodedAddress struct {
	Kind    chain.AddressType
	Hash    [20]byte
	Address btcutil.Address
}

// EncodeAddress encodes a 20-byte pubkey hash or script hash for params.
func EncodeAddress(hash []byte, kind chain.AddressType, params *chain.Params) (string, error) {
	addr, err := newAddress(hash, kind, params)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func newAddress(hash []byte, kind chain.AddressType, params *chain.Params) (btcutil.Address, error) {
	if len(hash) != 20 {
		return nil, fmt.Errorf("%w: hash must be 20 bytes, got %d", ErrInvalidAddress, len(hash))
	}

	netParams := params.ChainCfg()
	switch kind {
	case chain.AddressP2PKH:
		return btcutil.NewAddressPubKeyHash(hash, netParams)
	case chain.AddressP2SH:
		return btcutil.NewAddressScriptHashFromHash(hash, netParams)
	default:
		return nil, fmt.Errorf("%w: unsupported address type %q", ErrInvalidAddress, kind)
	}
}

// DecodeAddress decodes a base58check address and verifies that its version
// byte belongs to params. btcutil.DecodeAddress is not used because it
// resolves version bytes through the chaincfg registry.
func DecodeAddress(text string, params *chain.Params) (*DecodedAddress, error) {
	payload, version, err := base58.CheckDecode(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(payload) != 20 {
		return nil, fmt.Errorf("%w: payload is %d bytes", ErrInvalidAddress, len(payload))
	}

	var kind chain.AddressType
	switch version {
	case params.PubKeyHashAddrID:
		kind = chain.AddressP2PKH
	case params.ScriptHashAddrID:
		kind = chain.AddressP2SH
	default:
		return nil, fmt.Errorf("%w: version byte %d is not valid on %s", ErrInvalidAddress, version, params.Name)
	}

	addr, err := newAddress(payload, kind, params)
	if err != nil {
		return nil, err
	}

	decoded := &DecodedAddress{Kind: kind, Address: addr}
	copy(decoded.Hash[:], payload)
	return decoded, nil
}

// ValidateAddress reports whether text is a valid address on params.
func ValidateAddress(text string, params *chain.Params) bool {
	_, err := DecodeAddress(text, params)
	return err == nil
}

// PubKeyAddress returns the P2PKH address of a compressed public key.
func PubKeyAddress(pub *btcec.PublicKey, params *chain.Params) (string, error) {
	return EncodeAddress(btcutil.Hash160(pub.SerializeCompressed()), chain.AddressP2PKH, params)
}

// AddressScript returns the output script paying to text.
func AddressScript(text string, params *chain.Params) ([]byte, error) {
	decoded, err := DecodeAddress(text, params)
	if err != nil {
		return nil, err
	}

	script, err := txscript.PayToAddrScript(decoded.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to build output script: %w", err)
	}
	return script, nil
}

// EncodeWIF encodes a private key in Wallet Import Format for params.
// The compressed-pubkey flag is always set.
func EncodeWIF(priv *btcec.PrivateKey, params *chain.Params) (string, error) {
	wif, err := btcutil.NewWIF(priv, params.ChainCfg(), true)
	if err != nil {
		return "", fmt.Errorf("failed to create WIF: %w", err)
	}
	return wif.String(), nil
}

// DecodeWIF decodes a WIF private key and checks that it belongs to params.
func DecodeWIF(text string, params *chain.Params) (*btcec.PrivateKey, error) {
	wif, err := btcutil.DecodeWIF(text)
	if err != nil {
		return nil, fmt.Errorf("invalid WIF: %w", err)
	}
	if !wif.IsForNet(params.ChainCfg()) {
		return nil, fmt.Errorf("%w: WIF is not for %s", ErrWrongNetwork, params.Name)
	}
	return wif.PrivKey, nil
}
