package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/klingon-exchange/dashwallet/internal/backend"
	"github.com/klingon-exchange/dashwallet/internal/storage"
	"github.com/klingon-exchange/dashwallet/internal/wallet"
	"github.com/klingon-exchange/dashwallet/pkg/helpers"
)

// Version of the service
const Version = "0.1.0-dev"

// ========================================
// Service handlers
// ========================================

// ServiceStatusResult is the response for service_status.
type ServiceStatusResult struct {
	Version   string `json:"version"`
	Network   string `json:"network"`
	Unlocked  bool   `json:"unlocked"`
	Uptime    string `json:"uptime"`
	WSClients int    `json:"ws_clients"`
}

func (s *Server) serviceStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return &ServiceStatusResult{
		Version:   Version,
		Network:   string(s.params.Network),
		Unlocked:  s.wallet.IsUnlocked(),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		WSClients: s.wsHub.ClientCount(),
	}, nil
}

// ChainParamsResult is the response for chain_params.
type ChainParamsResult struct {
	Name             string   `json:"name"`
	Network          string   `json:"network"`
	Symbol           string   `json:"symbol"`
	CoinType         uint32   `json:"coin_type"`
	PubKeyHashAddrID byte     `json:"pubkey_hash_addr_id"`
	ScriptHashAddrID byte     `json:"script_hash_addr_id"`
	PrivateKeyID     byte     `json:"private_key_id"`
	HDPrivateKeyID   string   `json:"hd_private_key_id"`
	HDPublicKeyID    string   `json:"hd_public_key_id"`
	DefaultPort      uint16   `json:"default_port"`
	RPCPort          uint16   `json:"rpc_port"`
	DNSSeeds         []string `json:"dns_seeds"`
	GenesisHash      string   `json:"genesis_hash"`
}

func (s *Server) chainParams(ctx context.Context, params json.RawMessage) (interface{}, error) {
	p := s.params
	return &ChainParamsResult{
		Name:             p.Name,
		Network:          string(p.Network),
		Symbol:           p.Symbol,
		CoinType:         p.CoinType,
		PubKeyHashAddrID: p.PubKeyHashAddrID,
		ScriptHashAddrID: p.ScriptHashAddrID,
		PrivateKeyID:     p.PrivateKeyID,
		HDPrivateKeyID:   hex.EncodeToString(p.HDPrivateKeyID[:]),
		HDPublicKeyID:    hex.EncodeToString(p.HDPublicKeyID[:]),
		DefaultPort:      p.DefaultPort,
		RPCPort:          p.RPCPort,
		DNSSeeds:         p.DNSSeedHosts(),
		GenesisHash:      p.GenesisHash.String(),
	}, nil
}

// ========================================
// Key and address handlers
// ========================================

// GenerateMnemonicParams is the parameters for wallet_generateMnemonic.
type GenerateMnemonicParams struct {
	Words int `json:"words,omitempty"` // 12 (default) to 24
}

// GenerateMnemonicResult is the response for wallet_generateMnemonic.
type GenerateMnemonicResult struct {
	Mnemonic string `json:"mnemonic"`
}

func (s *Server) walletGenerateMnemonic(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p GenerateMnemonicParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	mnemonic, err := s.wallet.GenerateMnemonic(p.Words)
	if err != nil {
		return nil, err
	}

	return &GenerateMnemonicResult{Mnemonic: mnemonic}, nil
}

// MnemonicParams carries a mnemonic and its optional BIP39 passphrase.
type MnemonicParams struct {
	Mnemonic   string `json:"mnemonic"`
	Passphrase string `json:"passphrase,omitempty"`
}

func (s *Server) walletValidateMnemonic(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p MnemonicParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	return map[string]bool{"valid": s.wallet.ValidateMnemonic(p.Mnemonic)}, nil
}

func (s *Server) walletUnlock(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p MnemonicParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Mnemonic == "" {
		return nil, fmt.Errorf("%w: mnemonic is required", errInvalidParams)
	}

	if err := s.wallet.Unlock(p.Mnemonic, p.Passphrase); err != nil {
		return nil, err
	}

	return map[string]bool{"unlocked": true}, nil
}

func (s *Server) walletLock(ctx context.Context, params json.RawMessage) (interface{}, error) {
	s.wallet.Lock()
	return map[string]bool{"unlocked": false}, nil
}

// PathParams names a key path, and optionally an xpub it is relative to.
type PathParams struct {
	Path string `json:"path"`
	XPub string `json:"xpub,omitempty"`
}

// parsePath parses an optional path; empty means the root.
func parsePath(text string) (wallet.KeyPath, error) {
	if text == "" || text == "m" {
		return nil, nil
	}
	return wallet.ParseKeyPath(text)
}

func (s *Server) walletAccountXPub(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p PathParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	path, err := parsePath(p.Path)
	if err != nil {
		return nil, err
	}

	xpub, err := s.wallet.AccountXPub(path)
	if err != nil {
		return nil, err
	}

	return map[string]string{"path": path.String(), "xpub": xpub}, nil
}

// DeriveAddressResult is the response for wallet_deriveAddress.
type DeriveAddressResult struct {
	Address string `json:"address"`
	Path    string `json:"path"`
}

// walletDeriveAddress derives below the unlocked root, or below xpub when
// one is given. The xpub form works while the wallet is locked.
func (s *Server) walletDeriveAddress(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p PathParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	path, err := wallet.ParseKeyPath(p.Path)
	if err != nil {
		return nil, err
	}

	var address string
	if p.XPub != "" {
		address, err = wallet.DeriveChildAddress(p.XPub, path, s.params)
	} else {
		address, err = s.wallet.DeriveAddress(path)
	}
	if err != nil {
		return nil, err
	}

	return &DeriveAddressResult{Address: address, Path: path.String()}, nil
}

// ValidateAddressResult is the response for wallet_validateAddress.
type ValidateAddressResult struct {
	Valid bool   `json:"valid"`
	Kind  string `json:"kind,omitempty"`
	Hash  string `json:"hash,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) walletValidateAddress(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Address string `json:"address"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	decoded, err := wallet.DecodeAddress(p.Address, s.params)
	if err != nil {
		return &ValidateAddressResult{Valid: false, Error: err.Error()}, nil
	}

	return &ValidateAddressResult{
		Valid: true,
		Kind:  string(decoded.Kind),
		Hash:  hex.EncodeToString(decoded.Hash[:]),
	}, nil
}

// ========================================
// Node-backed handlers
// ========================================

// WatchAddressParams is the parameters for wallet_watchAddress.
type WatchAddressParams struct {
	XPub   string `json:"xpub"`
	Path   string `json:"path"`
	Label  string `json:"label,omitempty"`
	Rescan bool   `json:"rescan,omitempty"`
}

func (s *Server) walletWatchAddress(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p WatchAddressParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.XPub == "" {
		return nil, fmt.Errorf("%w: xpub is required", errInvalidParams)
	}

	path, err := wallet.ParseKeyPath(p.Path)
	if err != nil {
		return nil, err
	}

	record, err := s.wallet.WatchAddress(ctx, p.XPub, path, p.Label, p.Rescan)
	if err != nil {
		return nil, err
	}

	s.wsHub.Broadcast(EventAddressWatched, record)
	return record, nil
}

// ListCoinsParams is the parameters for wallet_listCoins.
type ListCoinsParams struct {
	Address string `json:"address"`
	MinConf *int   `json:"min_conf,omitempty"`
}

// ListCoinsResult is the response for wallet_listCoins.
type ListCoinsResult struct {
	Address   string         `json:"address"`
	Coins     []backend.Coin `json:"coins"`
	Total     btcutil.Amount `json:"total"` // duffs
	TotalDash string         `json:"total_dash"`
}

func (s *Server) walletListCoins(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ListCoinsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	minConf := s.minConf
	if p.MinConf != nil {
		minConf = *p.MinConf
	}

	coins, err := s.wallet.ListCoins(ctx, p.Address, minConf)
	if err != nil {
		return nil, err
	}
	if coins == nil {
		coins = []backend.Coin{}
	}

	total := backend.TotalAmount(coins)
	return &ListCoinsResult{
		Address:   p.Address,
		Coins:     coins,
		Total:     total,
		TotalDash: helpers.FormatDash(total),
	}, nil
}

// SendParams is the parameters for wallet_buildAndSign and wallet_send.
// Amounts are DASH decimal strings.
type SendParams struct {
	Path        string `json:"path"`
	Destination string `json:"destination"`
	Amount      string `json:"amount,omitempty"`
	Sweep       bool   `json:"sweep,omitempty"`
	Fee         string `json:"fee,omitempty"`
	MinConf     *int   `json:"min_conf,omitempty"`
}

func (s *Server) sendRequest(params json.RawMessage) (*wallet.SendRequest, error) {
	var p SendParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	path, err := wallet.ParseKeyPath(p.Path)
	if err != nil {
		return nil, err
	}

	req := &wallet.SendRequest{
		Path:        path,
		Destination: p.Destination,
		Sweep:       p.Sweep,
		Fee:         s.sweepFee,
		MinConf:     s.minConf,
	}
	if p.MinConf != nil {
		req.MinConf = *p.MinConf
	}

	if p.Sweep {
		if p.Fee != "" {
			if req.Fee, err = helpers.ParseDash(p.Fee); err != nil {
				return nil, fmt.Errorf("%w: fee: %w", errInvalidParams, err)
			}
		}
	} else {
		if p.Amount == "" {
			return nil, fmt.Errorf("%w: amount or sweep is required", errInvalidParams)
		}
		if req.Amount, err = helpers.ParseDash(p.Amount); err != nil {
			return nil, fmt.Errorf("%w: amount: %w", errInvalidParams, err)
		}
	}

	return req, nil
}

func (s *Server) walletBuildAndSign(ctx context.Context, params json.RawMessage) (interface{}, error) {
	req, err := s.sendRequest(params)
	if err != nil {
		return nil, err
	}

	signed, err := s.wallet.BuildAndSign(ctx, req)
	if err != nil {
		return nil, err
	}

	s.wsHub.Broadcast(EventTxSigned, map[string]interface{}{
		"txid":        signed.TxID,
		"source":      signed.Source,
		"destination": signed.Destination,
		"amount":      signed.Amount,
		"fee":         signed.Fee,
	})
	return signed, nil
}

func (s *Server) walletSend(ctx context.Context, params json.RawMessage) (interface{}, error) {
	req, err := s.sendRequest(params)
	if err != nil {
		return nil, err
	}

	result, err := s.wallet.Send(ctx, req)
	if err != nil {
		if result != nil {
			s.wsHub.Broadcast(EventTxFailed, map[string]interface{}{
				"txid":         result.TxID,
				"broadcast_id": result.BroadcastID,
				"status":       result.Status,
				"error":        err.Error(),
			})
		}
		return nil, err
	}

	s.wsHub.Broadcast(EventTxBroadcast, result)
	return result, nil
}

// ========================================
// Ledger handlers
// ========================================

// ListParams pages ledger queries.
type ListParams struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (s *Server) walletListWatched(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ListParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	list, err := s.wallet.ListWatched(p.Limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*storage.WatchAddress{}
	}
	return list, nil
}

func (s *Server) walletListBroadcasts(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ListParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	switch storage.BroadcastStatus(p.Status) {
	case "", storage.BroadcastPending, storage.BroadcastAccepted, storage.BroadcastRejected, storage.BroadcastUnknown:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", errInvalidParams, p.Status)
	}

	list, err := s.wallet.ListBroadcasts(storage.BroadcastStatus(p.Status), p.Limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*storage.Broadcast{}
	}
	return list, nil
}

// GetBroadcastParams names a recorded broadcast attempt.
type GetBroadcastParams struct {
	ID string `json:"id"`
}

func (s *Server) walletGetBroadcast(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p GetBroadcastParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: id is required", errInvalidParams)
	}

	b, err := s.wallet.GetBroadcast(p.ID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: unknown broadcast %s", errInvalidParams, p.ID)
	}
	return b, nil
}
