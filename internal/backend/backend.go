// Package backend provides the Dash Core JSON-RPC client used to query coins,
// import watch-only addresses and broadcast transactions.
// This package is read-only for private keys - all signing happens in the wallet package.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/klingon-exchange/dashwallet/internal/chain"
)

// Common errors
var (
	// ErrTransport covers timeouts, connection failures and non-JSON HTTP
	// replies. A broadcast that fails this way may or may not have reached
	// the node.
	ErrTransport = errors.New("node transport failure")

	// ErrRPC is returned when the node answers with an error object. The
	// wrapped *btcjson.RPCError carries the node's code and message.
	ErrRPC = errors.New("node returned an error")

	ErrBroadcastFailed = errors.New("broadcast failed")
	ErrWrongChain      = errors.New("node is on a different chain")
	ErrNotConnected    = errors.New("backend not connected")
)

// Coin is an unspent output reported by the node.
type Coin struct {
	TxID          string         `json:"txid"`
	Vout          uint32         `json:"vout"`
	Address       string         `json:"address"`
	Amount        btcutil.Amount `json:"amount"`       // duffs
	ScriptPubKey  string         `json:"scriptpubkey"` // hex encoded
	Confirmations int64          `json:"confirmations"`
	Spendable     bool           `json:"spendable"`
}

// Outpoint returns "txid:vout".
func (c Coin) Outpoint() string {
	return fmt.Sprintf("%s:%d", c.TxID, c.Vout)
}

// TotalAmount sums the value of coins.
func TotalAmount(coins []Coin) btcutil.Amount {
	var total btcutil.Amount
	for _, c := range coins {
		total += c.Amount
	}
	return total
}

// BlockchainInfo is the subset of getblockchaininfo the client relies on.
type BlockchainInfo struct {
	Chain                string  `json:"chain"`
	Blocks               int64   `json:"blocks"`
	Headers              int64   `json:"headers"`
	BestBlockHash        string  `json:"bestblockhash"`
	Difficulty           float64 `json:"difficulty"`
	MedianTime           int64   `json:"mediantime"`
	VerificationProgress float64 `json:"verificationprogress"`
	InitialBlockDownload bool    `json:"initialblockdownload"`
	Pruned               bool    `json:"pruned"`
}

// Node is the set of node RPC calls the wallet service consumes.
type Node interface {
	ListUnspent(ctx context.Context, minConf, maxConf int, addresses []string) ([]Coin, error)
	ImportAddress(ctx context.Context, address, label string, rescan bool) error
	SendRawTransaction(ctx context.Context, txHex string) (string, error)
}

// Config contains node connection settings.
type Config struct {
	URL  string `yaml:"url"`
	User string `yaml:"user,omitempty"`
	Pass string `yaml:"pass,omitempty"`

	// Timeout bounds every call, in seconds. Default 30.
	Timeout int `yaml:"timeout,omitempty"`

	// RateLimit caps outgoing calls per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	RateBurst int     `yaml:"rate_burst,omitempty"`
}

// DefaultConfig returns settings for a local node on the network's RPC port.
func DefaultConfig(params *chain.Params) *Config {
	return &Config{
		URL:     fmt.Sprintf("http://127.0.0.1:%d", params.RPCPort),
		Timeout: 30,
	}
}

// expectedChain maps a network to the chain name getblockchaininfo reports.
func expectedChain(params *chain.Params) string {
	if params.IsTestnet() {
		return "test"
	}
	return "main"
}
