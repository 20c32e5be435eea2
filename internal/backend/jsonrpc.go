package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/klingon-exchange/dashwallet/internal/chain"
	"golang.org/x/time/rate"
)

// NodeClient talks to a Dash Core node over JSON-RPC with HTTP basic auth.
// It is safe for concurrent use. No call is ever retried: a failed
// sendrawtransaction is reported to the caller, who decides what to do.
type NodeClient struct {
	rpcURL     string
	rpcUser    string
	rpcPass    string
	params     *chain.Params
	httpClient *http.Client
	limiter    *rate.Limiter
	mu         sync.RWMutex
	connected  bool
	requestID  atomic.Uint64
}

// NewNodeClient creates a client for the node described by cfg.
func NewNodeClient(cfg *Config, params *chain.Params) *NodeClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &NodeClient{
		rpcURL:  cfg.URL,
		rpcUser: cfg.User,
		rpcPass: cfg.Pass,
		params:  params,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return c
}

// Connect checks that the node answers and is on the expected chain.
func (c *NodeClient) Connect(ctx context.Context) error {
	info, err := c.GetBlockchainInfo(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	if want := expectedChain(c.params); info.Chain != want {
		return fmt.Errorf("%w: node reports %q, want %q", ErrWrongChain, info.Chain, want)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

// Close marks the client disconnected.
func (c *NodeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

// IsConnected returns true after a successful Connect.
func (c *NodeClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// GetBlockchainInfo calls getblockchaininfo.
func (c *NodeClient) GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	result, err := c.call(ctx, btcjson.NewGetBlockChainInfoCmd())
	if err != nil {
		return nil, err
	}

	var info BlockchainInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("%w: failed to parse getblockchaininfo: %v", ErrTransport, err)
	}
	return &info, nil
}

// ListUnspent calls listunspent. An empty addresses slice lists every coin
// the node's wallet tracks.
func (c *NodeClient) ListUnspent(ctx context.Context, minConf, maxConf int, addresses []string) ([]Coin, error) {
	cmd := &btcjson.ListUnspentCmd{MinConf: &minConf, MaxConf: &maxConf}
	if len(addresses) > 0 {
		cmd.Addresses = &addresses
	}

	result, err := c.call(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var unspent []btcjson.ListUnspentResult
	if err := json.Unmarshal(result, &unspent); err != nil {
		return nil, fmt.Errorf("%w: failed to parse listunspent: %v", ErrTransport, err)
	}

	coins := make([]Coin, 0, len(unspent))
	for _, u := range unspent {
		amount, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount for %s:%d: %w", u.TxID, u.Vout, err)
		}
		coins = append(coins, Coin{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Address:       u.Address,
			Amount:        amount,
			ScriptPubKey:  u.ScriptPubKey,
			Confirmations: u.Confirmations,
			Spendable:     u.Spendable,
		})
	}

	return coins, nil
}

// ImportAddress calls importaddress so the node's wallet watches address.
// With rescan the node scans the whole chain before answering, which can
// outlast the client timeout.
func (c *NodeClient) ImportAddress(ctx context.Context, address, label string, rescan bool) error {
	_, err := c.call(ctx, btcjson.NewImportAddressCmd(address, label, &rescan))
	return err
}

// SendRawTransaction calls sendrawtransaction once and returns the txid the
// node reports.
func (c *NodeClient) SendRawTransaction(ctx context.Context, txHex string) (string, error) {
	result, err := c.call(ctx, &btcjson.SendRawTransactionCmd{HexTx: txHex})
	if err != nil {
		if errors.Is(err, ErrRPC) {
			return "", fmt.Errorf("%w: %w", ErrBroadcastFailed, err)
		}
		return "", err
	}

	var txID string
	if err := json.Unmarshal(result, &txID); err != nil {
		return "", fmt.Errorf("%w: failed to parse txid: %v", ErrTransport, err)
	}
	return txID, nil
}

func (c *NodeClient) call(ctx context.Context, cmd interface{}) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}

	id := c.requestID.Add(1)

	data, err := btcjson.MarshalCmd(btcjson.RpcVersion1, id, cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.rpcUser != "" {
		req.SetBasicAuth(c.rpcUser, c.rpcPass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: HTTP %d: check rpc credentials", ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	// Dash Core answers RPC errors with HTTP 500 and a JSON body, so the
	// status code alone does not decide success.
	var response btcjson.Response
	if err := json.Unmarshal(body, &response); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: HTTP %d", ErrTransport, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrTransport, err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("%w: %w", ErrRPC, response.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrTransport, resp.StatusCode)
	}

	return response.Result, nil
}

const maxResponseSize = 32 << 20

// Ensure NodeClient implements Node
var _ Node = (*NodeClient)(nil)
