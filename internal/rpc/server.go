// Package rpc provides the JSON-RPC 2.0 server of the crosslock relayer.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Klingon-tech/crosslock/internal/auction"
	"github.com/Klingon-tech/crosslock/internal/chain"
	"github.com/Klingon-tech/crosslock/internal/metrics"
	"github.com/Klingon-tech/crosslock/internal/node"
	"github.com/Klingon-tech/crosslock/internal/swap"
	"github.com/Klingon-tech/crosslock/pkg/logging"
)

// Server is a JSON-RPC 2.0 server.
type Server struct {
	node        *node.Node
	chains      *chain.Set
	auctions    *auction.Registry
	coordinator *swap.Coordinator
	metrics     *metrics.RelayerMetrics
	log         *logging.Logger
	wsHub       *WSHub

	server   *http.Server
	listener net.Listener

	handlers map[string]Handler
	mu       sync.RWMutex
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

// NewServer creates a new JSON-RPC server over n. Coordinator events are
// forwarded to WebSocket clients.
func NewServer(n *node.Node) *Server {
	s := &Server{
		node:        n,
		chains:      n.Chains(),
		auctions:    n.Auctions(),
		coordinator: n.Coordinator(),
		metrics:     n.Metrics(),
		log:         logging.GetDefault().Component("rpc"),
		wsHub:       NewWSHub(n.Metrics()),
		handlers:    make(map[string]Handler),
	}

	s.registerHandlers()
	s.coordinator.OnEvent(s.forwardEvent)
	go s.wsHub.Run()

	return s
}

// registerHandlers registers all JSON-RPC method handlers.
func (s *Server) registerHandlers() {
	// Relayer and chain methods
	s.handlers["relayer_info"] = s.relayerInfo
	s.handlers["chain_list"] = s.chainList
	s.handlers["chain_time"] = s.chainTime

	// Local ledger methods
	s.handlers["ledger_fund"] = s.ledgerFund
	s.handlers["ledger_balance"] = s.ledgerBalance

	// Escrow methods
	s.handlers["escrow_create"] = s.escrowCreate
	s.handlers["escrow_get"] = s.escrowGet
	s.handlers["escrow_list"] = s.escrowList
	s.handlers["escrow_withdraw"] = s.escrowWithdraw
	s.handlers["escrow_cancel"] = s.escrowCancel
	s.handlers["escrow_assignTaker"] = s.escrowAssignTaker

	// Auction methods
	s.handlers["auction_create"] = s.auctionCreate
	s.handlers["auction_get"] = s.auctionGet
	s.handlers["auction_price"] = s.auctionPrice
	s.handlers["auction_bid"] = s.auctionBid
	s.handlers["whitelist_add"] = s.whitelistAdd
	s.handlers["whitelist_remove"] = s.whitelistRemove
	s.handlers["whitelist_list"] = s.whitelistList

	// Swap methods
	s.handlers["swap_open"] = s.swapOpen
	s.handlers["swap_registerCounterLeg"] = s.swapRegisterCounterLeg
	s.handlers["swap_revealSecret"] = s.swapRevealSecret
	s.handlers["swap_get"] = s.swapGet
	s.handlers["swap_list"] = s.swapList
	s.handlers["swap_events"] = s.swapEvents
}

// Handler returns the HTTP handler serving RPC, WebSocket and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("POST /{$}", s.handleRPC)
	mux.HandleFunc("OPTIONS /", s.handleCORS)
	mux.HandleFunc("OPTIONS /{$}", s.handleCORS)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /ws/", s.handleWS)
	if s.node.Config().API.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	return corsMiddleware(mux)
}

// Start starts the RPC server.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", addr, "ws", "ws://"+addr+"/ws")
	return nil
}

// Addr returns the address the server listens on.
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

// forwardEvent relays a coordinator event to WebSocket clients.
func (s *Server) forwardEvent(event swap.SwapEvent) {
	s.wsHub.Broadcast(EventType(event.EventType), event)
}

// handleRPC handles incoming JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" {
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

	start := time.Now()
	result, err := handler(r.Context(), req.Params)
	s.metrics.RPCRequest(req.Method, err != nil, time.Since(start))
	if err != nil {
		code := errorCode(err)
		if code == InternalError {
			s.log.Warn("RPC method failed", "method", req.Method, "error", err)
		}
		s.writeError(w, req.ID, code, err.Error(), nil)
		return
	}

	s.writeResult(w, req.ID, result)
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

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// handleCORS handles CORS preflight requests.
func (s *Server) handleCORS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// corsMiddleware adds CORS headers to all responses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// decodeParams unmarshals params into v. Missing params decode as {}.
func decodeParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &paramsError{err: err}
	}
	return nil
}
