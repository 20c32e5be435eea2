package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/klingon-exchange/dashwallet/internal/chain"
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// fakeNode answers JSON-RPC calls the way Dash Core does: errors come back
// with HTTP 500 and a JSON error object.
type fakeNode struct {
	t        *testing.T
	user     string
	pass     string
	handlers map[string]func(params []json.RawMessage) (interface{}, *btcjson.RPCError)
	calls    atomic.Int32
	last     atomic.Value // rpcRequest
}

func newFakeNode(t *testing.T) *fakeNode {
	return &fakeNode{
		t:        t,
		handlers: make(map[string]func([]json.RawMessage) (interface{}, *btcjson.RPCError)),
	}
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)

	if f.user != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != f.user || pass != f.pass {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.t.Errorf("bad request body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.last.Store(req)

	handler, ok := f.handlers[req.Method]
	if !ok {
		writeRPC(w, http.StatusNotFound, req.ID, nil, btcjson.NewRPCError(btcjson.ErrRPCMethodNotFound.Code, "Method not found"))
		return
	}

	result, rpcErr := handler(req.Params)
	if rpcErr != nil {
		writeRPC(w, http.StatusInternalServerError, req.ID, nil, rpcErr)
		return
	}
	writeRPC(w, http.StatusOK, req.ID, result, nil)
}

func (f *fakeNode) lastRequest() rpcRequest {
	req, _ := f.last.Load().(rpcRequest)
	return req
}

func writeRPC(w http.ResponseWriter, status int, id json.RawMessage, result interface{}, rpcErr *btcjson.RPCError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"result": result,
		"error":  rpcErr,
		"id":     id,
	})
}

func newTestClient(t *testing.T, node *fakeNode, params *chain.Params) *NodeClient {
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig(params)
	cfg.URL = srv.URL
	cfg.User = node.user
	cfg.Pass = node.pass
	return NewNodeClient(cfg, params)
}

func TestDefaultConfig(t *testing.T) {
	tests := []struct {
		params *chain.Params
		want   string
	}{
		{chain.DashMainnet(), "http://127.0.0.1:9998"},
		{chain.DashTestnet(), "http://127.0.0.1:19998"},
	}

	for _, tc := range tests {
		cfg := DefaultConfig(tc.params)
		if cfg.URL != tc.want {
			t.Errorf("%s: URL = %s, want %s", tc.params.Name, cfg.URL, tc.want)
		}
		if cfg.Timeout != 30 {
			t.Errorf("%s: Timeout = %d, want 30", tc.params.Name, cfg.Timeout)
		}
	}
}

func TestConnect(t *testing.T) {
	node := newFakeNode(t)
	node.user, node.pass = "rpcuser", "rpcpass"
	node.handlers["getblockchaininfo"] = func([]json.RawMessage) (interface{}, *btcjson.RPCError) {
		return map[string]interface{}{"chain": "test", "blocks": 1200, "headers": 1200}, nil
	}

	client := newTestClient(t, node, chain.DashTestnet())

	if client.IsConnected() {
		t.Error("should not be connected initially")
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("should be connected after Connect()")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("should not be connected after Close()")
	}
}

func TestConnectWrongChain(t *testing.T) {
	node := newFakeNode(t)
	node.handlers["getblockchaininfo"] = func([]json.RawMessage) (interface{}, *btcjson.RPCError) {
		return map[string]interface{}{"chain": "main"}, nil
	}

	client := newTestClient(t, node, chain.DashTestnet())

	err := client.Connect(context.Background())
	if !errors.Is(err, ErrWrongChain) {
		t.Errorf("expected ErrWrongChain, got %v", err)
	}
	if client.IsConnected() {
		t.Error("should not be connected to the wrong chain")
	}
}

func TestUnauthorized(t *testing.T) {
	node := newFakeNode(t)
	node.user, node.pass = "rpcuser", "rpcpass"

	srv := httptest.NewServer(node)
	defer srv.Close()

	client := NewNodeClient(&Config{URL: srv.URL, User: "rpcuser", Pass: "wrong"}, chain.DashTestnet())

	_, err := client.GetBlockchainInfo(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestListUnspent(t *testing.T) {
	node := newFakeNode(t)
	node.handlers["listunspent"] = func(params []json.RawMessage) (interface{}, *btcjson.RPCError) {
		return []map[string]interface{}{
			{
				"txid":          "f3b2c5a1e0d4c3b2a1f0e9d8c7b6a5f4e3d2c1b0a9f8e7d6c5b4a3f2e1d0c9b8",
				"vout":          1,
				"address":       "yaoSYog4hioq515fFKQtLfL3tF1HfHWFv6",
				"scriptPubKey":  "76a9149edd2852a7fc6b6c67c00200c0d3f9a977fb867d88ac",
				"amount":        0.29,
				"confirmations": 6,
				"spendable":     false,
			},
		}, nil
	}

	client := newTestClient(t, node, chain.DashTestnet())

	coins, err := client.ListUnspent(context.Background(), 1, 9999999, []string{"yaoSYog4hioq515fFKQtLfL3tF1HfHWFv6"})
	if err != nil {
		t.Fatalf("ListUnspent() error = %v", err)
	}

	if len(coins) != 1 {
		t.Fatalf("expected 1 coin, got %d", len(coins))
	}

	c := coins[0]
	// 0.29 is not exact in binary; conversion must round, not truncate
	if c.Amount != btcutil.Amount(29000000) {
		t.Errorf("Amount = %d, want 29000000", c.Amount)
	}
	if c.Vout != 1 {
		t.Errorf("Vout = %d, want 1", c.Vout)
	}
	if c.ScriptPubKey != "76a9149edd2852a7fc6b6c67c00200c0d3f9a977fb867d88ac" {
		t.Errorf("ScriptPubKey = %s", c.ScriptPubKey)
	}
	if c.Confirmations != 6 {
		t.Errorf("Confirmations = %d, want 6", c.Confirmations)
	}
	if c.Outpoint() != "f3b2c5a1e0d4c3b2a1f0e9d8c7b6a5f4e3d2c1b0a9f8e7d6c5b4a3f2e1d0c9b8:1" {
		t.Errorf("Outpoint() = %s", c.Outpoint())
	}

	req := node.lastRequest()
	if req.Method != "listunspent" {
		t.Errorf("method = %s, want listunspent", req.Method)
	}
	if len(req.Params) != 3 {
		t.Fatalf("expected 3 params, got %d", len(req.Params))
	}
	var addrs []string
	if err := json.Unmarshal(req.Params[2], &addrs); err != nil || len(addrs) != 1 {
		t.Errorf("addresses param = %s", req.Params[2])
	}
}

func TestListUnspentAllAddresses(t *testing.T) {
	node := newFakeNode(t)
	node.handlers["listunspent"] = func(params []json.RawMessage) (interface{}, *btcjson.RPCError) {
		return []interface{}{}, nil
	}

	client := newTestClient(t, node, chain.DashTestnet())

	coins, err := client.ListUnspent(context.Background(), 0, 10, nil)
	if err != nil {
		t.Fatalf("ListUnspent() error = %v", err)
	}
	if len(coins) != 0 {
		t.Errorf("expected no coins, got %d", len(coins))
	}

	// Trailing nil optional params are omitted
	if n := len(node.lastRequest().Params); n != 2 {
		t.Errorf("expected 2 params, got %d", n)
	}
}

func TestImportAddress(t *testing.T) {
	node := newFakeNode(t)
	node.handlers["importaddress"] = func(params []json.RawMessage) (interface{}, *btcjson.RPCError) {
		return nil, nil
	}

	client := newTestClient(t, node, chain.DashTestnet())

	err := client.ImportAddress(context.Background(), "yaoSYog4hioq515fFKQtLfL3tF1HfHWFv6", "customer-1234567", false)
	if err != nil {
		t.Fatalf("ImportAddress() error = %v", err)
	}

	req := node.lastRequest()
	if len(req.Params) != 3 {
		t.Fatalf("expected 3 params, got %d", len(req.Params))
	}

	var label string
	var rescan bool
	json.Unmarshal(req.Params[1], &label)
	json.Unmarshal(req.Params[2], &rescan)
	if label != "customer-1234567" {
		t.Errorf("label = %s", label)
	}
	if rescan {
		t.Error("rescan should be false")
	}
}

func TestSendRawTransaction(t *testing.T) {
	const txID = "c7a3c1e2d5b4f6a8e9d0c1b2a3f4e5d6c7b8a9f0e1d2c3b4a5f6e7d8c9b0a1f2"

	node := newFakeNode(t)
	node.handlers["sendrawtransaction"] = func(params []json.RawMessage) (interface{}, *btcjson.RPCError) {
		var raw string
		json.Unmarshal(params[0], &raw)
		if raw != "0100" {
			return nil, btcjson.NewRPCError(-22, "TX decode failed")
		}
		return txID, nil
	}

	client := newTestClient(t, node, chain.DashTestnet())

	got, err := client.SendRawTransaction(context.Background(), "0100")
	if err != nil {
		t.Fatalf("SendRawTransaction() error = %v", err)
	}
	if got != txID {
		t.Errorf("txid = %s, want %s", got, txID)
	}

	if n := len(node.lastRequest().Params); n != 1 {
		t.Errorf("expected 1 param, got %d", n)
	}
}

func TestSendRawTransactionRejected(t *testing.T) {
	node := newFakeNode(t)
	node.handlers["sendrawtransaction"] = func(params []json.RawMessage) (interface{}, *btcjson.RPCError) {
		return nil, btcjson.NewRPCError(-26, "16: mandatory-script-verify-flag-failed")
	}

	client := newTestClient(t, node, chain.DashTestnet())

	_, err := client.SendRawTransaction(context.Background(), "0100")
	if !errors.Is(err, ErrBroadcastFailed) {
		t.Errorf("expected ErrBroadcastFailed, got %v", err)
	}
	if !errors.Is(err, ErrRPC) {
		t.Errorf("expected ErrRPC, got %v", err)
	}

	var rpcErr *btcjson.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *btcjson.RPCError in chain, got %v", err)
	}
	if rpcErr.Code != -26 {
		t.Errorf("Code = %d, want -26", rpcErr.Code)
	}

	// Never retried
	if n := node.calls.Load(); n != 1 {
		t.Errorf("node saw %d calls, want 1", n)
	}
}

func TestMethodNotFound(t *testing.T) {
	node := newFakeNode(t)
	client := newTestClient(t, node, chain.DashTestnet())

	err := client.ImportAddress(context.Background(), "yaoSYog4hioq515fFKQtLfL3tF1HfHWFv6", "", false)
	if !errors.Is(err, ErrRPC) {
		t.Errorf("expected ErrRPC, got %v", err)
	}
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	var calls atomic.Int32
	client := NewNodeClient(&Config{URL: srv.URL}, chain.DashTestnet())
	client.httpClient.Timeout = 50 * time.Millisecond
	client.httpClient.Transport = countingTransport{next: http.DefaultTransport, calls: &calls}

	_, err := client.SendRawTransaction(context.Background(), "0100")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
	if errors.Is(err, ErrBroadcastFailed) {
		t.Error("a transport failure is not a node rejection")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("transport saw %d requests, want 1", n)
	}
}

type countingTransport struct {
	next  http.RoundTripper
	calls *atomic.Int32
}

func (c countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return c.next.RoundTrip(r)
}

func TestContextCanceled(t *testing.T) {
	node := newFakeNode(t)
	client := newTestClient(t, node, chain.DashTestnet())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetBlockchainInfo(ctx)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestNonJSONReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	client := NewNodeClient(&Config{URL: srv.URL}, chain.DashTestnet())

	_, err := client.ListUnspent(context.Background(), 1, 10, nil)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	node := newFakeNode(t)
	node.handlers["getblockchaininfo"] = func([]json.RawMessage) (interface{}, *btcjson.RPCError) {
		return map[string]interface{}{"chain": "test"}, nil
	}

	srv := httptest.NewServer(node)
	defer srv.Close()

	client := NewNodeClient(&Config{URL: srv.URL, RateLimit: 1, RateBurst: 1}, chain.DashTestnet())

	if _, err := client.GetBlockchainInfo(context.Background()); err != nil {
		t.Fatalf("first call error = %v", err)
	}

	// The bucket is empty and the next token is a second away.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetBlockchainInfo(ctx)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport from limiter, got %v", err)
	}
	if n := node.calls.Load(); n != 1 {
		t.Errorf("node saw %d calls, want 1", n)
	}
}

func TestTotalAmount(t *testing.T) {
	coins := []Coin{{Amount: 100}, {Amount: 250}, {Amount: 1}}
	if got := TotalAmount(coins); got != 351 {
		t.Errorf("TotalAmount = %d, want 351", got)
	}
	if got := TotalAmount(nil); got != 0 {
		t.Errorf("TotalAmount(nil) = %d, want 0", got)
	}
}
