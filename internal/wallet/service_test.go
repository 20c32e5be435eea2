package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/klingon-exchange/dashwallet/internal/backend"
	"github.com/klingon-exchange/dashwallet/internal/chain"
	"github.com/klingon-exchange/dashwallet/internal/storage"
	"github.com/klingon-exchange/dashwallet/pkg/logging"
)

// fakeNode is an in-memory backend.Node.
type fakeNode struct {
	mu sync.Mutex

	coins   []backend.Coin
	sendErr error
	sendID  string // txid to report; empty echoes the local txid

	imported    []string
	importErr   error
	listCalls   int
	lastMinConf int
	sendCalls   int
	sentHex     string
}

func (f *fakeNode) ListUnspent(ctx context.Context, minConf, maxConf int, addresses []string) ([]backend.Coin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.lastMinConf = minConf

	var out []backend.Coin
	for _, c := range f.coins {
		for _, a := range addresses {
			if c.Address == a && c.Confirmations >= int64(minConf) {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeNode) ImportAddress(ctx context.Context, address, label string, rescan bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.importErr != nil {
		return f.importErr
	}
	f.imported = append(f.imported, address)
	return nil
}

func (f *fakeNode) SendRawTransaction(ctx context.Context, txHex string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	f.sentHex = txHex
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return f.sendID, nil
}

func newTestService(t *testing.T, node backend.Node) (*Service, *storage.Storage) {
	t.Helper()

	store, err := storage.New(&storage.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := NewService(&ServiceConfig{
		Params: chain.DashTestnet(),
		Node:   node,
		Store:  store,
		Logger: logging.Nop(),
	})
	return svc, store
}

func unlockedService(t *testing.T, node backend.Node) (*Service, *storage.Storage) {
	t.Helper()
	svc, store := newTestService(t, node)
	if err := svc.Unlock(testMnemonic, ""); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	return svc, store
}

func TestNewServiceDefaults(t *testing.T) {
	svc := NewService(nil)

	if svc.Params().Network != chain.Mainnet {
		t.Errorf("default network = %s, want mainnet", svc.Params().Network)
	}
	if svc.IsUnlocked() {
		t.Error("new service should be locked")
	}
	if _, err := svc.ListCoins(context.Background(), testMainAddress, 0); !errors.Is(err, ErrNoNode) {
		t.Errorf("ListCoins() without node error = %v, want ErrNoNode", err)
	}
	if list, err := svc.ListWatched(10); err != nil || list != nil {
		t.Errorf("ListWatched() without store = %v, %v", list, err)
	}
}

func TestServiceGenerateMnemonic(t *testing.T) {
	svc := NewService(nil)

	mnemonic, err := svc.GenerateMnemonic(0)
	if err != nil {
		t.Fatalf("GenerateMnemonic() error = %v", err)
	}
	if len(strings.Fields(mnemonic)) != 12 {
		t.Errorf("expected 12 words, got %d", len(strings.Fields(mnemonic)))
	}
	if !svc.ValidateMnemonic(mnemonic) {
		t.Error("generated mnemonic should be valid")
	}

	mnemonic, _ = svc.GenerateMnemonic(24)
	if len(strings.Fields(mnemonic)) != 24 {
		t.Errorf("expected 24 words, got %d", len(strings.Fields(mnemonic)))
	}
}

func TestServiceLockUnlock(t *testing.T) {
	svc, _ := newTestService(t, &fakeNode{})
	path := mustPath(t, "1234567/0")

	if _, err := svc.DeriveAddress(path); !errors.Is(err, ErrWalletLocked) {
		t.Errorf("DeriveAddress() while locked error = %v, want ErrWalletLocked", err)
	}
	if _, err := svc.AccountXPub(nil); !errors.Is(err, ErrWalletLocked) {
		t.Errorf("AccountXPub() while locked error = %v, want ErrWalletLocked", err)
	}
	if _, err := svc.Send(context.Background(), &SendRequest{Path: path}); !errors.Is(err, ErrWalletLocked) {
		t.Errorf("Send() while locked error = %v, want ErrWalletLocked", err)
	}

	if err := svc.Unlock("invalid mnemonic", ""); !errors.Is(err, ErrInvalidMnemonic) {
		t.Errorf("Unlock(invalid) error = %v, want ErrInvalidMnemonic", err)
	}
	if svc.IsUnlocked() {
		t.Error("failed unlock should leave the wallet locked")
	}

	if err := svc.Unlock(testMnemonic, ""); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	addr, err := svc.DeriveAddress(path)
	if err != nil {
		t.Fatalf("DeriveAddress() error = %v", err)
	}
	if addr != testTestAddress {
		t.Errorf("DeriveAddress() = %s, want %s", addr, testTestAddress)
	}
	xpub, _ := svc.AccountXPub(nil)
	if xpub != testRootTPub {
		t.Errorf("AccountXPub() = %s, want %s", xpub, testRootTPub)
	}

	svc.Lock()
	if svc.IsUnlocked() {
		t.Error("Lock() should drop the wallet")
	}
}

func TestServiceWatchAddress(t *testing.T) {
	node := &fakeNode{}
	svc, store := newTestService(t, node)
	ctx := context.Background()

	record, err := svc.WatchAddress(ctx, testRootTPub, mustPath(t, "1234567/0"), "customer-1234567", true)
	if err != nil {
		t.Fatalf("WatchAddress() error = %v", err)
	}

	if record.Address != testTestAddress {
		t.Errorf("Address = %s, want %s", record.Address, testTestAddress)
	}
	if record.XPubFingerprint != "73c5da0a" {
		t.Errorf("XPubFingerprint = %s, want 73c5da0a", record.XPubFingerprint)
	}
	if !record.Imported || !record.Rescan {
		t.Errorf("record not marked imported: %+v", record)
	}
	if len(node.imported) != 1 || node.imported[0] != testTestAddress {
		t.Errorf("node imported %v", node.imported)
	}

	stored, err := store.GetWatchAddress(testTestAddress)
	if err != nil || stored == nil {
		t.Fatalf("GetWatchAddress() = %v, %v", stored, err)
	}
	if !stored.Imported || stored.Path != "1234567/0" || stored.Network != "testnet" {
		t.Errorf("stored record = %+v", stored)
	}

	list, err := svc.ListWatched(0)
	if err != nil {
		t.Fatalf("ListWatched() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListWatched() returned %d records, want 1", len(list))
	}
}

func TestServiceWatchAddressErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("hardened path", func(t *testing.T) {
		node := &fakeNode{}
		svc, store := newTestService(t, node)

		_, err := svc.WatchAddress(ctx, testRootTPub, mustPath(t, "1234567'/0"), "", false)
		if !errors.Is(err, ErrHardenedFromPublic) {
			t.Errorf("error = %v, want ErrHardenedFromPublic", err)
		}
		if len(node.imported) != 0 {
			t.Error("nothing should be imported")
		}
		if list, _ := store.ListWatchAddresses("testnet", 0); len(list) != 0 {
			t.Error("nothing should be recorded")
		}
	})

	t.Run("wrong network", func(t *testing.T) {
		svc, _ := newTestService(t, &fakeNode{})
		_, err := svc.WatchAddress(ctx, testRootXPub, mustPath(t, "0"), "", false)
		if !errors.Is(err, ErrWrongNetwork) {
			t.Errorf("error = %v, want ErrWrongNetwork", err)
		}
	})

	t.Run("import fails", func(t *testing.T) {
		node := &fakeNode{importErr: fmt.Errorf("%w: connection refused", backend.ErrTransport)}
		svc, store := newTestService(t, node)

		_, err := svc.WatchAddress(ctx, testRootTPub, mustPath(t, "1234567/0"), "", false)
		if !errors.Is(err, backend.ErrTransport) {
			t.Errorf("error = %v, want ErrTransport", err)
		}

		stored, _ := store.GetWatchAddress(testTestAddress)
		if stored == nil || stored.Imported {
			t.Errorf("record should exist and not be imported: %+v", stored)
		}
	})

	t.Run("no node", func(t *testing.T) {
		svc := NewService(&ServiceConfig{Params: chain.DashTestnet(), Logger: logging.Nop()})
		if _, err := svc.WatchAddress(ctx, testRootTPub, mustPath(t, "0"), "", false); !errors.Is(err, ErrNoNode) {
			t.Errorf("error = %v, want ErrNoNode", err)
		}
	})
}

func TestServiceListCoins(t *testing.T) {
	node := &fakeNode{coins: []backend.Coin{
		testCoin(testFundingTxID, 0, 1000),
		{TxID: testFundingTxID2, Address: testDestAddress, Amount: 5, ScriptPubKey: testPKScript, Confirmations: 1},
	}}
	svc, _ := newTestService(t, node)

	coins, err := svc.ListCoins(context.Background(), testTestAddress, 1)
	if err != nil {
		t.Fatalf("ListCoins() error = %v", err)
	}
	if len(coins) != 1 || coins[0].Amount != 1000 {
		t.Errorf("ListCoins() = %+v", coins)
	}
	if node.lastMinConf != 1 {
		t.Errorf("minConf = %d, want 1", node.lastMinConf)
	}

	if _, err := svc.ListCoins(context.Background(), testMainAddress, 0); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("ListCoins(mainnet address) error = %v, want ErrInvalidAddress", err)
	}
}

func TestServiceSendAccepted(t *testing.T) {
	node := &fakeNode{coins: []backend.Coin{testCoin(testFundingTxID, 0, 29000000)}}
	svc, store := unlockedService(t, node)

	// The node echoes the txid it computed
	signed, err := svc.BuildAndSign(context.Background(), &SendRequest{
		Path:        mustPath(t, "1234567/0"),
		Destination: testDestAddress,
		Amount:      28999000,
	})
	if err != nil {
		t.Fatalf("BuildAndSign() error = %v", err)
	}
	node.sendID = signed.TxID

	result, err := svc.Send(context.Background(), &SendRequest{
		Path:        mustPath(t, "1234567/0"),
		Destination: testDestAddress,
		Amount:      28999000,
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if node.sendCalls != 1 {
		t.Errorf("SendRawTransaction called %d times, want 1", node.sendCalls)
	}
	if node.sentHex != result.Hex {
		t.Error("node received different bytes than were returned")
	}
	if result.Status != storage.BroadcastAccepted || result.NodeTxID != signed.TxID {
		t.Errorf("result = %+v", result)
	}
	if result.Fee != 1000 || result.Source != testTestAddress {
		t.Errorf("Fee = %d Source = %s", result.Fee, result.Source)
	}

	record, err := store.GetBroadcast(result.BroadcastID)
	if err != nil || record == nil {
		t.Fatalf("GetBroadcast() = %v, %v", record, err)
	}
	if record.Status != storage.BroadcastAccepted || record.TxID != result.TxID || record.RawTx != result.Hex {
		t.Errorf("stored broadcast = %+v", record)
	}
}

func TestServiceSendRejected(t *testing.T) {
	rpcErr := &btcjson.RPCError{Code: btcjson.ErrRPCVerifyRejected, Message: "bad-txns-inputs-missingorspent"}
	node := &fakeNode{
		coins:   []backend.Coin{testCoin(testFundingTxID, 0, 29000000)},
		sendErr: fmt.Errorf("%w: %w: %w", backend.ErrBroadcastFailed, backend.ErrRPC, rpcErr),
	}
	svc, store := unlockedService(t, node)

	result, err := svc.Send(context.Background(), &SendRequest{
		Path:        mustPath(t, "1234567/0"),
		Destination: testDestAddress,
		Amount:      28999000,
	})
	if !errors.Is(err, backend.ErrBroadcastFailed) {
		t.Fatalf("Send() error = %v, want ErrBroadcastFailed", err)
	}

	var target *btcjson.RPCError
	if !errors.As(err, &target) || target.Code != btcjson.ErrRPCVerifyRejected {
		t.Errorf("node error not preserved: %v", err)
	}
	if node.sendCalls != 1 {
		t.Errorf("SendRawTransaction called %d times, want 1", node.sendCalls)
	}
	if result == nil || result.Status != storage.BroadcastRejected {
		t.Fatalf("result = %+v", result)
	}

	record, _ := store.GetBroadcast(result.BroadcastID)
	if record == nil || record.Status != storage.BroadcastRejected || !strings.Contains(record.Error, "missingorspent") {
		t.Errorf("stored broadcast = %+v", record)
	}
}

func TestServiceSendUnknownOutcome(t *testing.T) {
	node := &fakeNode{
		coins:   []backend.Coin{testCoin(testFundingTxID, 0, 29000000)},
		sendErr: fmt.Errorf("%w: context deadline exceeded", backend.ErrTransport),
	}
	svc, store := unlockedService(t, node)

	result, err := svc.Send(context.Background(), &SendRequest{
		Path:        mustPath(t, "1234567/0"),
		Destination: testDestAddress,
		Amount:      28999000,
	})
	if !errors.Is(err, backend.ErrTransport) {
		t.Fatalf("Send() error = %v, want ErrTransport", err)
	}
	if errors.Is(err, backend.ErrBroadcastFailed) {
		t.Error("a transport failure is not a rejection")
	}
	if node.sendCalls != 1 {
		t.Errorf("SendRawTransaction called %d times, want 1", node.sendCalls)
	}
	if result.Status != storage.BroadcastUnknown {
		t.Errorf("Status = %s, want unknown", result.Status)
	}

	pending, _ := store.ListBroadcasts(storage.BroadcastUnknown, 0)
	if len(pending) != 1 {
		t.Errorf("expected 1 unknown broadcast, got %d", len(pending))
	}
}

func TestServiceSendSweep(t *testing.T) {
	node := &fakeNode{coins: []backend.Coin{
		testCoin(testFundingTxID, 0, 20000000),
		testCoin(testFundingTxID, 1, 9000000),
	}}
	node.sendID = "ignored"
	svc, _ := unlockedService(t, node)

	result, err := svc.Send(context.Background(), &SendRequest{
		Path:        mustPath(t, "1234567/0"),
		Destination: testDestAddress,
		Sweep:       true,
		Fee:         1000,
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.Amount != 28999000 || result.Fee != 1000 || result.Inputs != 2 {
		t.Errorf("Amount = %d Fee = %d Inputs = %d", result.Amount, result.Fee, result.Inputs)
	}
}

func TestServiceSendNoCoins(t *testing.T) {
	node := &fakeNode{}
	svc, store := unlockedService(t, node)

	_, err := svc.Send(context.Background(), &SendRequest{
		Path:        mustPath(t, "1234567/0"),
		Destination: testDestAddress,
		Amount:      1000,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("Send() error = %v, want ErrInsufficientFunds", err)
	}
	if node.sendCalls != 0 {
		t.Error("nothing should be broadcast")
	}
	if list, _ := store.ListBroadcasts("", 0); len(list) != 0 {
		t.Error("nothing should be recorded")
	}
}
