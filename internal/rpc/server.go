// Package rpc provides a JSON-RPC 2.0 server for the dashwallet service.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/klingon-exchange/dashwallet/internal/backend"
	"github.com/klingon-exchange/dashwallet/internal/chain"
	"github.com/klingon-exchange/dashwallet/internal/wallet"
	"github.com/klingon-exchange/dashwallet/pkg/logging"
)

// maxRequestSize bounds a JSON-RPC request body.
const maxRequestSize = 1 << 20

// Server is a JSON-RPC 2.0 server.
type Server struct {
	wallet *wallet.Service
	params *chain.Params
	log    *logging.Logger
	wsHub  *WSHub

	allowedOrigins map[string]bool
	sweepFee       btcutil.Amount
	minConf        int
	startedAt      time.Time

	server   *http.Server
	listener net.Listener

	handlers map[string]Handler
	mu       sync.RWMutex
}

// ServerConfig holds the dependencies of a Server.
type ServerConfig struct {
	Wallet *wallet.Service

	// AllowedOrigins lists browser origins allowed to call the service.
	// "*" allows any origin.
	AllowedOrigins []string

	// SweepFee is used by sweeps that do not name a fee.
	SweepFee btcutil.Amount

	// MinConf is used by calls that do not name a confirmation floor.
	MinConf int

	Logger *logging.Logger
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Application error codes.
const (
	WalletLocked      = -32001
	InsufficientFunds = -32002
	BroadcastRejected = -32003
	NodeUnavailable   = -32004
)

// errInvalidParams marks errors caused by the caller's params.
var errInvalidParams = errors.New("invalid params")

// NewServer creates a new JSON-RPC server.
func NewServer(cfg *ServerConfig) *Server {
	log := cfg.Logger
	if log == nil {
		log = logging.GetDefault().Component("rpc")
	}

	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[strings.TrimRight(o, "/")] = true
	}

	s := &Server{
		wallet:         cfg.Wallet,
		params:         cfg.Wallet.Params(),
		log:            log,
		wsHub:          NewWSHub(log.Component("ws")),
		allowedOrigins: origins,
		sweepFee:       cfg.SweepFee,
		minConf:        cfg.MinConf,
		startedAt:      time.Now(),
		handlers:       make(map[string]Handler),
	}

	s.registerHandlers()

	return s
}

// registerHandlers registers all JSON-RPC method handlers.
func (s *Server) registerHandlers() {
	s.handlers["service_status"] = s.serviceStatus
	s.handlers["chain_params"] = s.chainParams

	// Keys and addresses
	s.handlers["wallet_generateMnemonic"] = s.walletGenerateMnemonic
	s.handlers["wallet_validateMnemonic"] = s.walletValidateMnemonic
	s.handlers["wallet_unlock"] = s.walletUnlock
	s.handlers["wallet_lock"] = s.walletLock
	s.handlers["wallet_accountXPub"] = s.walletAccountXPub
	s.handlers["wallet_deriveAddress"] = s.walletDeriveAddress
	s.handlers["wallet_validateAddress"] = s.walletValidateAddress

	// Node-backed methods
	s.handlers["wallet_watchAddress"] = s.walletWatchAddress
	s.handlers["wallet_listCoins"] = s.walletListCoins
	s.handlers["wallet_buildAndSign"] = s.walletBuildAndSign
	s.handlers["wallet_send"] = s.walletSend

	// Ledger
	s.handlers["wallet_listWatched"] = s.walletListWatched
	s.handlers["wallet_listBroadcasts"] = s.walletListBroadcasts
	s.handlers["wallet_getBroadcast"] = s.walletGetBroadcast
}

// Handler returns the HTTP handler serving JSON-RPC on / and events on /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("POST /{$}", s.handleRPC)
	mux.HandleFunc("OPTIONS /", s.handleCORS)
	mux.HandleFunc("OPTIONS /{$}", s.handleCORS)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /ws/", s.handleWS)

	return s.corsMiddleware(mux)
}

// Start starts the RPC server.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	go s.wsHub.Run()

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // sends wait on the node
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", listener.Addr().String(), "ws", "ws://"+listener.Addr().String()+"/ws")
	return nil
}

// Addr returns the address the server listens on, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop stops the RPC server.
func (s *Server) Stop() error {
	s.wsHub.Stop()
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// handleRPC handles incoming JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize)).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeError(w, req.ID, InvalidRequest, "Invalid Request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		s.writeError(w, req.ID, MethodNotFound, "Method not found", req.Method)
		return
	}

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		s.log.Debug("RPC call failed", "method", req.Method, "error", err)
		s.writeError(w, req.ID, errorCode(err), err.Error(), nil)
		return
	}

	s.writeResult(w, req.ID, result)
}

// errorCode maps domain errors to JSON-RPC error codes.
func errorCode(err error) int {
	switch {
	case errors.Is(err, errInvalidParams),
		errors.Is(err, wallet.ErrInvalidPath),
		errors.Is(err, wallet.ErrInvalidAddress),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInvalidMnemonic),
		errors.Is(err, wallet.ErrInvalidExtendedKey),
		errors.Is(err, wallet.ErrWrongNetwork),
		errors.Is(err, wallet.ErrHardenedFromPublic):
		return InvalidParams
	case errors.Is(err, wallet.ErrWalletLocked):
		return WalletLocked
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return InsufficientFunds
	case errors.Is(err, backend.ErrBroadcastFailed):
		return BroadcastRejected
	case errors.Is(err, backend.ErrTransport), errors.Is(err, wallet.ErrNoNode):
		return NodeUnavailable
	default:
		return InternalError
	}
}

// writeResult writes a successful response.
func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleCORS handles CORS preflight requests.
func (s *Server) handleCORS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// originAllowed reports whether a browser origin may use the service.
// Requests without an Origin header come from non-browser clients.
func (s *Server) originAllowed(origin string) bool {
	if origin == "" || s.allowedOrigins["*"] {
		return true
	}
	return s.allowedOrigins[strings.TrimRight(origin, "/")]
}

// corsMiddleware adds CORS headers for allowed origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && !s.originAllowed(origin) {
			http.Error(w, "Origin not allowed", http.StatusForbidden)
			return
		}

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // Cache preflight for 24 hours
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// decodeParams unmarshals params into v. Missing params leave v untouched.
func decodeParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}
