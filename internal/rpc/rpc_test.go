package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"

	"github.com/Klingon-tech/crosslock/internal/auction"
	"github.com/Klingon-tech/crosslock/internal/chain"
	"github.com/Klingon-tech/crosslock/internal/escrow"
	"github.com/Klingon-tech/crosslock/internal/hashlock"
	"github.com/Klingon-tech/crosslock/internal/node"
	"github.com/Klingon-tech/crosslock/internal/storage"
	"github.com/Klingon-tech/crosslock/internal/swap"
	"github.com/Klingon-tech/crosslock/internal/wallet"
	"github.com/Klingon-tech/crosslock/pkg/logging"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

type testEnv struct {
	t      *testing.T
	node   *node.Node
	server *Server
	http   *httptest.Server
	wallet *wallet.Wallet
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logging.SetDefault(logging.Discard())

	tmpDir, err := os.MkdirTemp("", "crosslock-rpc-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	cfg := node.DefaultConfig()
	cfg.Storage.DataDir = tmpDir

	w, err := wallet.NewFromMnemonic(testMnemonic, "", cfg.NetworkType)
	if err != nil {
		t.Fatalf("NewFromMnemonic() error = %v", err)
	}
	n, err := node.New(context.Background(), cfg, w)
	if err != nil {
		t.Fatalf("node.New() error = %v", err)
	}

	s := NewServer(n)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
		n.Stop()
	})

	return &testEnv{t: t, node: n, server: s, http: ts, wallet: w}
}

// call performs a JSON-RPC call and returns the raw response.
func (e *testEnv) call(method string, params interface{}) *Response {
	e.t.Helper()
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	}
	if params != nil {
		body["params"] = params
	}
	data, err := json.Marshal(body)
	if err != nil {
		e.t.Fatal(err)
	}
	resp, err := http.Post(e.http.URL, "application/json", bytes.NewReader(data))
	if err != nil {
		e.t.Fatalf("POST %s error = %v", method, err)
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		e.t.Fatalf("decode %s response: %v", method, err)
	}
	return &out
}

// mustCall performs a call that must succeed and decodes its result into v.
func (e *testEnv) mustCall(method string, params interface{}, v interface{}) {
	e.t.Helper()
	resp := e.call(method, params)
	if resp.Error != nil {
		e.t.Fatalf("%s error = %d %s", method, resp.Error.Code, resp.Error.Message)
	}
	if v == nil {
		return
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		e.t.Fatal(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		e.t.Fatalf("decode %s result: %v", method, err)
	}
}

// wantError performs a call that must fail with code.
func (e *testEnv) wantError(method string, params interface{}, code int) {
	e.t.Helper()
	resp := e.call(method, params)
	if resp.Error == nil {
		e.t.Fatalf("%s succeeded, want error %d", method, code)
	}
	if resp.Error.Code != code {
		e.t.Errorf("%s Error.Code = %d (%s), want %d", method, resp.Error.Code, resp.Error.Message, code)
	}
}

func (e *testEnv) drainWorkers() {
	e.t.Helper()
	for _, w := range e.node.Workers() {
		if _, err := w.ProcessPending(context.Background()); err != nil {
			e.t.Fatalf("ProcessPending(%s) error = %v", w.Chain(), err)
		}
	}
}

// escrowView is the JSON shape of an escrow result.
type escrowView struct {
	ID         uint64 `json:"id"`
	RescueTime int64  `json:"rescue_time"`
	Amount     uint64 `json:"amount"`
	Creator    string `json:"creator"`
	Taker      string `json:"taker"`
	State      string `json:"state"`
	Secret     string `json:"secret"`
}

func TestErrorCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"params", invalidParams("x is required"), InvalidParams},
		{"invalid secret", fmt.Errorf("withdraw: %w", escrow.ErrInvalidSecret), CodeInvalidSecret},
		{"window expired", escrow.ErrWindowExpired, CodeWindowExpired},
		{"too early", escrow.ErrTooEarly, CodeTooEarly},
		{"escrow unauthorized", escrow.ErrUnauthorized, CodeUnauthorized},
		{"not whitelisted", auction.ErrNotWhitelisted, CodeUnauthorized},
		{"no signer", chain.ErrNoSigner, CodeUnauthorized},
		{"escrow not found", escrow.ErrNotFound, CodeNotFound},
		{"swap not found", swap.ErrSwapNotFound, CodeNotFound},
		{"unknown chain", fmt.Errorf("%w: nowhere", chain.ErrUnknownChain), CodeNotFound},
		{"already closed", escrow.ErrAlreadyClosed, CodeAlreadyClosed},
		{"already sold", auction.ErrAlreadySold, CodeAlreadyClosed},
		{"taker pending", escrow.ErrTakerPending, CodeInvalidParameter},
		{"unsafe timelocks", swap.ErrUnsafeTimelocks, CodeInvalidParameter},
		{"auction parameter", auction.ErrInvalidParameter, CodeInvalidParameter},
		{"unknown", errors.New("boom"), InternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorCode(tt.err); got != tt.code {
				t.Errorf("errorCode(%v) = %d, want %d", tt.err, got, tt.code)
			}
		})
	}
}

func TestDecodeParams(t *testing.T) {
	var p ChainParams
	for _, raw := range []string{"", "null", "{}"} {
		if err := decodeParams(json.RawMessage(raw), &p); err != nil {
			t.Errorf("decodeParams(%q) error = %v", raw, err)
		}
	}

	err := decodeParams(json.RawMessage(`{"chain": 5}`), &p)
	var pe *paramsError
	if !errors.As(err, &pe) {
		t.Errorf("decodeParams(bad) error = %v, want paramsError", err)
	}
}

func TestProtocolErrors(t *testing.T) {
	env := newTestEnv(t)

	post := func(body string) *Response {
		resp, err := http.Post(env.http.URL, "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var out Response
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		return &out
	}

	tests := []struct {
		name string
		body string
		code int
	}{
		{"parse error", `{invalid json`, ParseError},
		{"wrong version", `{"jsonrpc":"1.0","method":"relayer_info","id":1}`, InvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","method":"swap_cancel","id":1}`, MethodNotFound},
		{"bad params", `{"jsonrpc":"2.0","method":"chain_time","params":{"chain":7},"id":1}`, InvalidParams},
		{"missing chain", `{"jsonrpc":"2.0","method":"chain_time","params":{},"id":1}`, InvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(tt.body)
			if resp.Error == nil {
				t.Fatalf("expected error %d", tt.code)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("Error.Code = %d, want %d", resp.Error.Code, tt.code)
			}
		})
	}
}

func TestHTTPMethodCheck(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.http.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET / status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}

	req, _ := http.NewRequest(http.MethodOptions, env.http.URL+"/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("OPTIONS / status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRelayerInfoAndChains(t *testing.T) {
	env := newTestEnv(t)

	var info RelayerInfoResult
	env.mustCall("relayer_info", nil, &info)
	if info.Relayer != env.node.Relayer().String() {
		t.Errorf("Relayer = %s, want %s", info.Relayer, env.node.Relayer())
	}
	if info.Version != Version {
		t.Errorf("Version = %s, want %s", info.Version, Version)
	}
	if len(info.Chains) != 2 {
		t.Errorf("Chains = %v, want 2 chains", info.Chains)
	}
	if info.Timelocks.Maker <= info.Timelocks.Resolver {
		t.Errorf("Timelocks = %+v, maker must exceed resolver", info.Timelocks)
	}

	var chains []ChainInfo
	env.mustCall("chain_list", nil, &chains)
	if len(chains) != 2 {
		t.Fatalf("len(chain_list) = %d, want 2", len(chains))
	}
	for _, c := range chains {
		if c.Registry == "" {
			t.Errorf("chain %s has no registry address", c.Name)
		}
	}

	var now ChainTimeResult
	env.mustCall("chain_time", map[string]interface{}{"chain": "local"}, &now)
	if now.Time <= 0 {
		t.Errorf("chain_time = %d, want positive", now.Time)
	}
	env.wantError("chain_time", map[string]interface{}{"chain": "nowhere"}, CodeNotFound)
}

func TestLedgerHandlers(t *testing.T) {
	env := newTestEnv(t)
	maker := "0x1111111111111111111111111111111111111111"

	var bal BalanceResult
	env.mustCall("ledger_fund", map[string]interface{}{"chain": "local", "identity": maker, "amount": 500}, &bal)
	if bal.Balance != "500" {
		t.Errorf("balance after fund = %s, want 500", bal.Balance)
	}
	env.mustCall("ledger_fund", map[string]interface{}{"chain": "local", "identity": maker, "amount": 250}, &bal)
	env.mustCall("ledger_balance", map[string]interface{}{"chain": "local", "identity": maker}, &bal)
	if bal.Balance != "750" {
		t.Errorf("ledger_balance = %s, want 750", bal.Balance)
	}

	if bal.Formatted != "0.00075" || bal.Symbol != "ALGO" {
		t.Errorf("formatted = %s %s, want 0.00075 ALGO", bal.Formatted, bal.Symbol)
	}

	other := "0x5555555555555555555555555555555555555555"
	env.mustCall("ledger_fund", map[string]interface{}{"chain": "local-b", "identity": other, "value": "1.5"}, &bal)
	if bal.Balance != "1500000" || bal.Formatted != "1.5" {
		t.Errorf("fund by value = %s (%s), want 1500000 (1.5)", bal.Balance, bal.Formatted)
	}
	env.wantError("ledger_fund", map[string]interface{}{"chain": "local-b", "identity": other, "value": "0.0000001"}, InvalidParams)

	env.wantError("ledger_fund", map[string]interface{}{"chain": "local", "identity": "maker", "amount": 1}, InvalidParams)
	env.wantError("ledger_fund", map[string]interface{}{"chain": "local", "identity": maker, "amount": 0}, InvalidParams)
}

func TestEscrowHandlers(t *testing.T) {
	env := newTestEnv(t)
	creator := "0x1111111111111111111111111111111111111111"
	taker := "0x2222222222222222222222222222222222222222"

	env.mustCall("ledger_fund", map[string]interface{}{"chain": "local", "identity": creator, "amount": 1000}, nil)

	secret, hash, err := hashlock.GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}

	var esc escrowView
	env.mustCall("escrow_create", map[string]interface{}{
		"chain":       "local",
		"creator":     creator,
		"timelock":    3600,
		"secret_hash": hash.Hex(),
		"taker":       taker,
		"amount":      400,
	}, &esc)
	if esc.State != "open" || esc.Amount != 400 {
		t.Fatalf("escrow_create = %+v", esc)
	}

	// Wrong secret
	wrong := make([]byte, 32)
	env.wantError("escrow_withdraw", map[string]interface{}{
		"chain": "local", "id": esc.ID, "secret": hexutil.Encode(wrong),
	}, CodeInvalidSecret)

	// Cancel before the rescue time
	env.wantError("escrow_cancel", map[string]interface{}{"chain": "local", "id": esc.ID}, CodeTooEarly)

	var done escrowView
	env.mustCall("escrow_withdraw", map[string]interface{}{
		"chain": "local", "id": esc.ID, "secret": secret.Hex(),
	}, &done)
	if done.State != "withdrawn" {
		t.Errorf("state after withdraw = %s, want withdrawn", done.State)
	}
	if done.Secret != secret.Hex() {
		t.Errorf("published secret = %s, want %s", done.Secret, secret.Hex())
	}

	var bal BalanceResult
	env.mustCall("ledger_balance", map[string]interface{}{"chain": "local", "identity": taker}, &bal)
	if bal.Balance != "400" {
		t.Errorf("taker balance = %s, want 400", bal.Balance)
	}

	env.wantError("escrow_withdraw", map[string]interface{}{
		"chain": "local", "id": esc.ID, "secret": secret.Hex(),
	}, CodeAlreadyClosed)
	env.wantError("escrow_get", map[string]interface{}{"chain": "local", "id": 99}, CodeNotFound)

	var list []escrowView
	env.mustCall("escrow_list", map[string]interface{}{"chain": "local"}, &list)
	if len(list) != 1 || list[0].ID != esc.ID {
		t.Errorf("escrow_list = %+v, want the single escrow", list)
	}

	// A pending escrow that backs no swap can be assigned by the relayer.
	var pending escrowView
	env.mustCall("escrow_create", map[string]interface{}{
		"chain":       "local",
		"creator":     creator,
		"timelock":    3600,
		"secret_hash": hash.Hex(),
		"amount":      100,
	}, &pending)
	var assigned escrowView
	env.mustCall("escrow_assignTaker", map[string]interface{}{
		"chain": "local", "id": pending.ID, "taker": taker,
	}, &assigned)
	if !strings.EqualFold(assigned.Taker, taker) {
		t.Errorf("taker after escrow_assignTaker = %s, want %s", assigned.Taker, taker)
	}
	env.wantError("escrow_assignTaker", map[string]interface{}{
		"chain": "local", "id": pending.ID, "taker": creator,
	}, CodeInvalidParameter)
}

func TestWhitelistHandlers(t *testing.T) {
	env := newTestEnv(t)
	bidder := "0x3333333333333333333333333333333333333333"

	var wl WhitelistResult
	env.mustCall("whitelist_add", map[string]interface{}{"identity": bidder}, &wl)
	if len(wl.Members) != 1 || !strings.EqualFold(wl.Members[0].String(), bidder) {
		t.Errorf("whitelist after add = %v", wl.Members)
	}
	env.mustCall("whitelist_remove", map[string]interface{}{"identity": bidder}, &wl)
	env.mustCall("whitelist_list", nil, &wl)
	if len(wl.Members) != 0 {
		t.Errorf("whitelist after remove = %v, want empty", wl.Members)
	}
}

func TestAuctionHandlers(t *testing.T) {
	env := newTestEnv(t)

	var inst AuctionResult
	env.mustCall("auction_create", map[string]interface{}{
		"escrow_id":     7,
		"escrow_app_id": "local",
		"start_price":   2000,
		"min_price":     1000,
		"duration":      600,
		"curve":         "linear",
	}, &inst)
	if inst.Instance == nil || inst.StartPrice != 2000 || inst.Curve != auction.CurveLinear {
		t.Fatalf("auction_create = %+v", inst.Instance)
	}

	var price AuctionPriceResult
	env.mustCall("auction_price", map[string]interface{}{"id": inst.ID}, &price)
	if price.Price < 1000 || price.Price > 2000 {
		t.Errorf("auction_price = %d, want within [1000, 2000]", price.Price)
	}

	env.wantError("auction_create", map[string]interface{}{
		"start_price": 1000, "min_price": 1000, "duration": 600,
	}, CodeInvalidParameter)
	env.wantError("auction_bid", map[string]interface{}{"auction_id": inst.ID}, InvalidParams)

	key, err := env.wallet.EVMKey(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := wallet.SignBid(key, inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	var sold AuctionResult
	env.mustCall("auction_bid", map[string]interface{}{
		"auction_id": inst.ID,
		"signature":  hexutil.Encode(sig),
	}, &sold)
	if !sold.Sold {
		t.Error("auction not sold after bid")
	}
	want, _ := env.wallet.EVMIdentity(1, 0)
	if sold.Taker != want {
		t.Errorf("taker = %s, want %s", sold.Taker, want)
	}

	env.wantError("auction_bid", map[string]interface{}{
		"auction_id": inst.ID,
		"signature":  hexutil.Encode(sig),
	}, CodeAlreadyClosed)
}

func TestSwapOverRPC(t *testing.T) {
	env := newTestEnv(t)

	maker, err := env.wallet.EVMIdentity(2, 0)
	if err != nil {
		t.Fatal(err)
	}
	resolverKey, err := env.wallet.EVMKey(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	resolver, _ := env.wallet.EVMIdentity(1, 0)

	env.mustCall("ledger_fund", map[string]interface{}{"chain": "local", "identity": maker.String(), "amount": 5000}, nil)
	env.mustCall("ledger_fund", map[string]interface{}{"chain": "local-b", "identity": resolver.String(), "amount": 5000}, nil)

	secret, hash, err := hashlock.GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}

	var makerEscrow escrowView
	env.mustCall("escrow_create", map[string]interface{}{
		"chain":       "local",
		"creator":     maker.String(),
		"timelock":    7200,
		"secret_hash": hash.Hex(),
		"amount":      1000,
	}, &makerEscrow)
	if makerEscrow.Taker != "" {
		t.Fatalf("maker escrow taker = %q, want pending", makerEscrow.Taker)
	}

	var opened struct {
		Swap storage.SwapRecord `json:"swap"`
	}
	env.mustCall("swap_open", map[string]interface{}{
		"maker_chain":   "local",
		"escrow_id":     makerEscrow.ID,
		"secret_hash":   hash.Hex(),
		"counter_chain": "local-b",
		"start_price":   2000,
		"min_price":     1000,
		"duration":      600,
	}, &opened)
	swapID := opened.Swap.ID
	if swapID == "" || opened.Swap.State != storage.SwapStateAuctionOpen {
		t.Fatalf("swap_open = %+v", opened.Swap)
	}

	// The maker leg only ever pays the auction winner.
	env.wantError("escrow_assignTaker", map[string]interface{}{
		"chain": "local", "id": makerEscrow.ID, "taker": "0x4444444444444444444444444444444444444444",
	}, CodeInvalidParameter)

	sig, err := wallet.SignBid(resolverKey, opened.Swap.AuctionID)
	if err != nil {
		t.Fatal(err)
	}
	var sold AuctionResult
	env.mustCall("auction_bid", map[string]interface{}{
		"auction_id": opened.Swap.AuctionID,
		"signature":  hexutil.Encode(sig),
	}, &sold)
	if sold.SwapID != swapID {
		t.Errorf("auction_bid swap_id = %s, want %s", sold.SwapID, swapID)
	}

	env.drainWorkers()
	var assigned escrowView
	env.mustCall("escrow_get", map[string]interface{}{"chain": "local", "id": makerEscrow.ID}, &assigned)
	if assigned.Taker != resolver.String() {
		t.Fatalf("maker escrow taker = %s, want %s", assigned.Taker, resolver)
	}

	var counter escrowView
	env.mustCall("escrow_create", map[string]interface{}{
		"chain":       "local-b",
		"creator":     resolver.String(),
		"timelock":    3600,
		"secret_hash": hash.Hex(),
		"taker":       maker.String(),
		"amount":      sold.SoldPrice,
	}, &counter)
	env.mustCall("swap_registerCounterLeg", map[string]interface{}{
		"swap_id":   swapID,
		"chain":     "local-b",
		"escrow_id": counter.ID,
	}, nil)

	env.wantError("swap_revealSecret", map[string]interface{}{
		"swap_id": swapID,
		"secret":  hexutil.Encode(make([]byte, 32)),
	}, CodeInvalidSecret)
	env.mustCall("swap_revealSecret", map[string]interface{}{
		"swap_id": swapID,
		"secret":  secret.Hex(),
	}, nil)
	env.drainWorkers()

	var got struct {
		Swap storage.SwapRecord `json:"swap"`
	}
	env.mustCall("swap_get", map[string]interface{}{"swap_id": swapID}, &got)
	if got.Swap.State != storage.SwapStateCompleted {
		t.Fatalf("swap state = %s, want completed", got.Swap.State)
	}

	var bal BalanceResult
	env.mustCall("ledger_balance", map[string]interface{}{"chain": "local-b", "identity": maker.String()}, &bal)
	if bal.Balance != fmt.Sprint(sold.SoldPrice) {
		t.Errorf("maker balance on local-b = %s, want %d", bal.Balance, sold.SoldPrice)
	}

	var list SwapListResult
	env.mustCall("swap_list", map[string]interface{}{"include_completed": true}, &list)
	if list.Count != 1 {
		t.Errorf("swap_list count = %d, want 1", list.Count)
	}
	env.mustCall("swap_list", nil, &list)
	if list.Count != 0 {
		t.Errorf("swap_list without completed = %d, want 0", list.Count)
	}

	var events []storage.SwapEvent
	env.mustCall("swap_events", map[string]interface{}{"swap_id": swapID}, &events)
	if len(events) == 0 {
		t.Error("swap_events returned no events")
	}

	env.wantError("swap_get", map[string]interface{}{"swap_id": "missing"}, CodeNotFound)
	env.wantError("swap_get", nil, InvalidParams)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.mustCall("relayer_info", nil, nil)

	resp, err := http.Get(env.http.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `crosslock_rpc_requests_total{method="relayer_info"`) {
		t.Error("/metrics does not expose crosslock_rpc_requests_total for relayer_info")
	}
}

func TestWebSocketEvents(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	sub, _ := json.Marshal(WSSubscription{Action: "subscribe", Events: []string{string(EventSwapOpened)}})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.server.WSHub().ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	maker := "0x4444444444444444444444444444444444444444"
	env.mustCall("ledger_fund", map[string]interface{}{"chain": "local", "identity": maker, "amount": 1000}, nil)
	_, hash, err := hashlock.GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	var esc escrowView
	env.mustCall("escrow_create", map[string]interface{}{
		"chain": "local", "creator": maker, "timelock": 7200, "secret_hash": hash.Hex(), "amount": 1000,
	}, &esc)
	env.mustCall("swap_open", map[string]interface{}{
		"maker_chain": "local", "escrow_id": esc.ID, "secret_hash": hash.Hex(), "counter_chain": "local-b",
	}, nil)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		var event WSEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("bad event %s: %v", msg, err)
		}
		if event.Type == EventSwapOpened {
			return
		}
	}
}

func TestWSHubStop(t *testing.T) {
	hub := NewWSHub(nil)
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	hub.Broadcast(EventSwapOpened, map[string]string{"id": "x"})
	hub.Stop()
	hub.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop()")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}
