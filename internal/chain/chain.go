// Package chain defines the Dash network parameters.
// Parameters are plain values: callers obtain them from DashMainnet, DashTestnet
// or ForNetwork and pass them explicitly to everything that needs them.
package chain

import (
	"errors"
	"fmt"
	"math/big"
	"net/netip"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ErrUnknownNetwork is returned when a network name cannot be resolved.
var ErrUnknownNetwork = errors.New("unknown network")

// Network represents mainnet or testnet.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// AddressType represents the address encoding format.
type AddressType string

const (
	AddressP2PKH AddressType = "p2pkh" // X... on mainnet, y... on testnet
	AddressP2SH  AddressType = "p2sh"  // 7... on mainnet, 8... or 9... on testnet
)

// DNSSeed is a DNS seeder operated by a third party.
type DNSSeed struct {
	Name string
	Host string
}

// Consensus holds the consensus constants of a network. None of them are
// used by this module itself; they are carried for the hosting node library.
type Consensus struct {
	SubsidyHalvingInterval        int32
	MajorityEnforceBlockUpgrade   int
	MajorityRejectBlockOutdated   int
	MajorityWindow                int
	BIP34Hash                     chainhash.Hash
	PowLimit                      *big.Int
	PowTargetTimespan             time.Duration
	PowTargetSpacing              time.Duration
	PowAllowMinDifficultyBlocks   bool
	PowNoRetargeting              bool
	RuleChangeActivationThreshold uint32
	MinerConfirmationWindow       uint32
	CoinbaseMaturity              uint16
	LitecoinWorkCalculation       bool
}

// DifficultyAdjustmentInterval returns the number of blocks between retargets.
func (c *Consensus) DifficultyAdjustmentInterval() int64 {
	return int64(c.PowTargetTimespan / c.PowTargetSpacing)
}

// Params contains all parameters for a Dash network.
type Params struct {
	// Identity
	Name     string   // dash-main, dash-test
	Aliases  []string // dash-mainnet, dash-testnet
	Network  Network
	Symbol   string
	Decimals uint8

	// BIP44 derivation
	CoinType       uint32
	DefaultPurpose uint32

	// Base58 prefixes
	PubKeyHashAddrID byte
	ScriptHashAddrID byte
	PrivateKeyID     byte // WIF
	Bech32HRP        string

	// BIP32 HD key magic bytes (for xpub/xprv serialization)
	HDPrivateKeyID [4]byte
	HDPublicKeyID  [4]byte

	// Peer-to-peer and RPC
	DefaultPort uint16
	RPCPort     uint16
	DNSSeeds    []DNSSeed
	FixedSeeds  []netip.AddrPort

	// Genesis
	GenesisHex  string
	GenesisHash chainhash.Hash

	Consensus Consensus

	DefaultAddressType AddressType
}

// ForNetwork returns a fresh copy of the parameters for the given network.
func ForNetwork(network Network) (*Params, error) {
	switch network {
	case Mainnet:
		return DashMainnet(), nil
	case Testnet:
		return DashTestnet(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
	}
}

// ParseNetwork resolves a network from its name or one of its aliases.
func ParseNetwork(name string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet", "main", "dash-main", "dash-mainnet":
		return Mainnet, nil
	case "testnet", "test", "dash-test", "dash-testnet":
		return Testnet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
}

// IsTestnet returns true for test networks.
func (p *Params) IsTestnet() bool {
	return p.Network == Testnet
}

// DerivationPath returns the BIP44 derivation path for this chain.
// Format: m/purpose'/coin'/account'/change/index
func (p *Params) DerivationPath(account, change, index uint32) []uint32 {
	return []uint32{
		p.DefaultPurpose + 0x80000000, // purpose' (hardened)
		p.CoinType + 0x80000000,       // coin_type' (hardened)
		account + 0x80000000,          // account' (hardened)
		change,                        // change (0=external, 1=internal)
		index,                         // address_index
	}
}

// DerivationPathString returns the derivation path as a string.
func (p *Params) DerivationPathString(account, change, index uint32) string {
	return fmt.Sprintf("m/%d'/%d'/%d'/%d/%d", p.DefaultPurpose, p.CoinType, account, change, index)
}

// ChainCfg converts the parameters to btcd's chaincfg.Params so they can be
// handed to btcutil and hdkeychain. The result is never registered with
// chaincfg.Register.
func (p *Params) ChainCfg() *chaincfg.Params {
	seeds := make([]chaincfg.DNSSeed, len(p.DNSSeeds))
	for i, s := range p.DNSSeeds {
		seeds[i] = chaincfg.DNSSeed{Host: s.Host}
	}

	genesisHash := p.GenesisHash

	return &chaincfg.Params{
		Name:        p.Name,
		DefaultPort: fmt.Sprintf("%d", p.DefaultPort),
		DNSSeeds:    seeds,
		GenesisHash: &genesisHash,

		PowLimit:                      p.Consensus.PowLimit,
		CoinbaseMaturity:              p.Consensus.CoinbaseMaturity,
		SubsidyReductionInterval:      p.Consensus.SubsidyHalvingInterval,
		TargetTimespan:                p.Consensus.PowTargetTimespan,
		TargetTimePerBlock:            p.Consensus.PowTargetSpacing,
		ReduceMinDifficulty:           p.Consensus.PowAllowMinDifficultyBlocks,
		RuleChangeActivationThreshold: p.Consensus.RuleChangeActivationThreshold,
		MinerConfirmationWindow:       p.Consensus.MinerConfirmationWindow,

		Bech32HRPSegwit:  p.Bech32HRP,
		PubKeyHashAddrID: p.PubKeyHashAddrID,
		ScriptHashAddrID: p.ScriptHashAddrID,
		PrivateKeyID:     p.PrivateKeyID,

		HDPrivateKeyID: p.HDPrivateKeyID,
		HDPublicKeyID:  p.HDPublicKeyID,
		HDCoinType:     p.CoinType,
	}
}

func mustHash(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(fmt.Sprintf("chain: invalid hash %q: %v", s, err))
	}
	return *h
}

func mustBigHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic(fmt.Sprintf("chain: invalid hex number %q", s))
	}
	return n
}
