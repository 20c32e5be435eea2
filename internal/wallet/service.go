package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/klingon-exchange/dashwallet/internal/backend"
	"github.com/klingon-exchange/dashwallet/internal/chain"
	"github.com/klingon-exchange/dashwallet/internal/storage"
	"github.com/klingon-exchange/dashwallet/pkg/logging"
)

// ErrNoNode is returned by operations that need a node when none is configured.
var ErrNoNode = errors.New("no node configured")

// maxConf is the upper confirmation bound passed to listunspent.
const maxConf = 9999999

// Service ties the in-memory wallet to a node and the local ledger.
type Service struct {
	wallet *Wallet
	params *chain.Params

	node  backend.Node
	store *storage.Storage
	log   *logging.Logger

	mu sync.RWMutex
}

// ServiceConfig holds configuration for the wallet service.
type ServiceConfig struct {
	Params *chain.Params
	Node   backend.Node     // optional; required for watch, coins and send
	Store  *storage.Storage // optional; attempts are not recorded without it
	Logger *logging.Logger
}

// NewService creates a new wallet service.
func NewService(cfg *ServiceConfig) *Service {
	if cfg == nil {
		cfg = &ServiceConfig{}
	}

	params := cfg.Params
	if params == nil {
		params = chain.DashMainnet()
	}

	log := cfg.Logger
	if log == nil {
		log = logging.GetDefault().Component("wallet")
	}

	return &Service{
		params: params,
		node:   cfg.Node,
		store:  cfg.Store,
		log:    log,
	}
}

// Params returns the service's network parameters.
func (s *Service) Params() *chain.Params {
	return s.params
}

// GenerateMnemonic generates a new mnemonic; words 0 means 12.
func (s *Service) GenerateMnemonic(words int) (string, error) {
	if words == 0 {
		words = DefaultMnemonicWords
	}
	return GenerateMnemonicWords(words)
}

// ValidateMnemonic checks if a mnemonic is valid.
func (s *Service) ValidateMnemonic(mnemonic string) bool {
	return ValidateMnemonic(mnemonic)
}

// Unlock derives the wallet from a mnemonic and keeps it in memory.
func (s *Service) Unlock(mnemonic, passphrase string) error {
	w, err := NewFromMnemonic(mnemonic, passphrase, s.params)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.wallet = w
	s.mu.Unlock()

	s.log.Info("Wallet unlocked", "network", s.params.Name, "fingerprint", fmt.Sprintf("%08x", w.Root().Fingerprint()))
	return nil
}

// Lock drops the in-memory wallet.
func (s *Service) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallet = nil
}

// IsUnlocked returns true if a wallet is loaded.
func (s *Service) IsUnlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallet != nil
}

func (s *Service) getWallet() (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.wallet == nil {
		return nil, ErrWalletLocked
	}
	return s.wallet, nil
}

// AccountXPub returns the xpub at path from the root.
func (s *Service) AccountXPub(path KeyPath) (string, error) {
	w, err := s.getWallet()
	if err != nil {
		return "", err
	}
	return w.AccountXPub(path)
}

// DeriveAddress returns the address at path from the root.
func (s *Service) DeriveAddress(path KeyPath) (string, error) {
	w, err := s.getWallet()
	if err != nil {
		return "", err
	}
	return w.DeriveAddress(path)
}

// WatchAddress derives the address at path below xpub, records it and imports
// it into the node as watch-only.
func (s *Service) WatchAddress(ctx context.Context, xpub string, path KeyPath, label string, rescan bool) (*storage.WatchAddress, error) {
	if s.node == nil {
		return nil, ErrNoNode
	}

	parent, err := ParsePublicNode(xpub, s.params)
	if err != nil {
		return nil, err
	}
	child, err := parent.DerivePath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to derive %s: %w", path, err)
	}
	address, err := PubKeyAddress(child.PublicKey(), s.params)
	if err != nil {
		return nil, err
	}

	record := &storage.WatchAddress{
		Address:         address,
		Network:         string(s.params.Network),
		XPubFingerprint: fmt.Sprintf("%08x", parent.Fingerprint()),
		Path:            path.String(),
		Label:           label,
	}

	if s.store != nil {
		if err := s.store.SaveWatchAddress(record); err != nil {
			return nil, err
		}
	}

	if err := s.node.ImportAddress(ctx, address, label, rescan); err != nil {
		return nil, fmt.Errorf("importaddress %s: %w", address, err)
	}

	record.Imported = true
	record.Rescan = rescan
	if s.store != nil {
		if err := s.store.MarkWatchAddressImported(address, rescan); err != nil {
			s.log.Warn("Failed to record import", "address", address, "error", err)
		}
	}

	s.log.Info("Watching address", "address", address, "path", record.Path, "label", label, "rescan", rescan)
	return record, nil
}

// ListCoins returns the unspent outputs of address with at least minConf
// confirmations.
func (s *Service) ListCoins(ctx context.Context, address string, minConf int) ([]backend.Coin, error) {
	if s.node == nil {
		return nil, ErrNoNode
	}
	if _, err := DecodeAddress(address, s.params); err != nil {
		return nil, err
	}

	coins, err := s.node.ListUnspent(ctx, minConf, maxConf, []string{address})
	if err != nil {
		return nil, fmt.Errorf("listunspent %s: %w", address, err)
	}
	return coins, nil
}

// ListWatched returns recorded watch addresses for the service's network.
func (s *Service) ListWatched(limit int) ([]*storage.WatchAddress, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListWatchAddresses(string(s.params.Network), limit)
}

// ListBroadcasts returns recorded broadcast attempts.
func (s *Service) ListBroadcasts(status storage.BroadcastStatus, limit int) ([]*storage.Broadcast, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListBroadcasts(status, limit)
}

// GetBroadcast returns the attempt recorded under id, or nil when there is none.
func (s *Service) GetBroadcast(id string) (*storage.Broadcast, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.GetBroadcast(id)
}

// SendRequest describes a spend of every coin held by the address at Path.
type SendRequest struct {
	// Path from the root to the key holding the coins, e.g. "1234567/0".
	Path        KeyPath
	Destination string
	Amount      btcutil.Amount

	// Sweep sends the whole balance minus Fee and ignores Amount.
	Sweep bool
	Fee   btcutil.Amount

	// MinConf filters coins by confirmations; 0 includes unconfirmed coins.
	MinConf int
}

// SendResult is a signed transaction and the outcome of broadcasting it.
type SendResult struct {
	*SignedTx
	BroadcastID string                  `json:"broadcast_id,omitempty"`
	Status      storage.BroadcastStatus `json:"status"`
	NodeTxID    string                  `json:"node_txid,omitempty"`
}

// BuildAndSign collects the coins of the address at req.Path and signs a
// transaction paying req.Destination. Nothing is broadcast.
func (s *Service) BuildAndSign(ctx context.Context, req *SendRequest) (*SignedTx, error) {
	w, err := s.getWallet()
	if err != nil {
		return nil, err
	}

	node, err := w.DeriveNode(req.Path)
	if err != nil {
		return nil, err
	}
	source, err := PubKeyAddress(node.PublicKey(), s.params)
	if err != nil {
		return nil, err
	}

	coins, err := s.ListCoins(ctx, source, req.MinConf)
	if err != nil {
		return nil, err
	}

	amount := req.Amount
	if req.Sweep {
		if req.Fee < 0 {
			return nil, fmt.Errorf("%w: negative fee", ErrInvalidAmount)
		}
		amount = sourceTotal(coins, source) - req.Fee
	}

	signed, err := BuildAndSign(coins, source, req.Destination, amount, node.PrivateKey(), s.params)
	if err != nil {
		return nil, err
	}

	s.log.Debug("Signed transaction", "txid", signed.TxID, "inputs", signed.Inputs, "amount", int64(signed.Amount), "fee", int64(signed.Fee))
	return signed, nil
}

// Send signs and broadcasts exactly once. The attempt is recorded before the
// node is called and updated with its outcome. A transport failure leaves the
// outcome unknown and is returned without retrying.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	signed, err := s.BuildAndSign(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &SendResult{SignedTx: signed, Status: storage.BroadcastPending}

	if s.store != nil {
		record := &storage.Broadcast{
			Network:     string(s.params.Network),
			TxID:        signed.TxID,
			RawTx:       signed.Hex,
			Source:      signed.Source,
			Destination: signed.Destination,
			Amount:      int64(signed.Amount),
			Fee:         int64(signed.Fee),
			Inputs:      signed.Inputs,
		}
		if err := s.store.CreateBroadcast(record); err != nil {
			return nil, fmt.Errorf("failed to record broadcast: %w", err)
		}
		result.BroadcastID = record.ID
	}

	nodeTxID, sendErr := s.node.SendRawTransaction(ctx, signed.Hex)

	errMsg := ""
	switch {
	case sendErr == nil:
		result.Status = storage.BroadcastAccepted
		result.NodeTxID = nodeTxID
		if nodeTxID != signed.TxID {
			s.log.Warn("Node reported a different txid", "local", signed.TxID, "node", nodeTxID)
		}
	case errors.Is(sendErr, backend.ErrBroadcastFailed):
		result.Status = storage.BroadcastRejected
		errMsg = sendErr.Error()
	default:
		result.Status = storage.BroadcastUnknown
		errMsg = sendErr.Error()
	}

	if s.store != nil {
		if err := s.store.UpdateBroadcastStatus(result.BroadcastID, result.Status, nodeTxID, errMsg); err != nil {
			s.log.Error("Failed to record broadcast outcome", "id", result.BroadcastID, "error", err)
		}
	}

	if sendErr != nil {
		s.log.Error("Broadcast failed", "txid", signed.TxID, "status", result.Status, "error", sendErr)
		return result, fmt.Errorf("sendrawtransaction %s: %w", signed.TxID, sendErr)
	}

	s.log.Info("Transaction broadcast", "txid", nodeTxID, "amount", int64(signed.Amount), "destination", signed.Destination)
	return result, nil
}

func sourceTotal(coins []backend.Coin, source string) btcutil.Amount {
	var total btcutil.Amount
	for _, c := range coins {
		if c.Address == source {
			total += c.Amount
		}
	}
	return total
}
