package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Klingon-tech/crosslock/internal/chain"
	"github.com/Klingon-tech/crosslock/internal/config"
	"github.com/Klingon-tech/crosslock/internal/escrow"
	"github.com/Klingon-tech/crosslock/internal/ledger"
	"github.com/Klingon-tech/crosslock/pkg/helpers"
)

// Version of the relayer
const Version = "0.1.0-dev"

// ========================================
// Relayer handlers
// ========================================

// RelayerInfoResult is the response for relayer_info.
type RelayerInfoResult struct {
	Relayer     string                `json:"relayer"`
	Resolver    string                `json:"resolver,omitempty"`
	Network     config.NetworkType    `json:"network"`
	Chains      []string              `json:"chains"`
	Timelocks   config.TimelockConfig `json:"timelocks"`
	Auction     config.AuctionConfig  `json:"auction"`
	ActiveSwaps int                   `json:"active_swaps"`
	Auctions    uint64                `json:"auctions"`
	WSClients   int                   `json:"ws_clients"`
	Uptime      string                `json:"uptime"`
	Version     string                `json:"version"`
	DataDir     string                `json:"data_dir"`
}

func (s *Server) relayerInfo(ctx context.Context, params json.RawMessage) (interface{}, error) {
	cfg := s.node.Config()
	protocol := s.node.Protocol()

	return &RelayerInfoResult{
		Relayer:     s.node.Relayer().String(),
		Resolver:    s.node.Resolver().String(),
		Network:     protocol.Network,
		Chains:      s.chains.List(),
		Timelocks:   protocol.Timelocks,
		Auction:     protocol.Auction,
		ActiveSwaps: len(s.coordinator.ActiveSwapIDs()),
		Auctions:    s.auctions.Count(),
		WSClients:   s.wsHub.ClientCount(),
		Uptime:      s.node.Uptime().Round(time.Second).String(),
		Version:     Version,
		DataDir:     cfg.Storage.DataDir,
	}, nil
}

// ========================================
// Chain handlers
// ========================================

// ChainInfo describes one enabled chain.
type ChainInfo struct {
	Name     string           `json:"name"`
	Kind     config.ChainKind `json:"kind"`
	Registry string           `json:"registry"`
	Symbol   string           `json:"symbol,omitempty"`
	Decimals uint8            `json:"decimals"`
	ChainID  uint64           `json:"chain_id,omitempty"`
}

func (s *Server) chainList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	names := s.chains.List()
	out := make([]ChainInfo, 0, len(names))
	for _, name := range names {
		ch, err := s.chains.Get(name)
		if err != nil {
			continue
		}
		info := ChainInfo{
			Name:     name,
			Kind:     ch.Kind(),
			Registry: ch.Address().String(),
		}
		if def, ok := config.GetChain(s.node.Protocol().Network, name); ok {
			info.Symbol = def.Symbol
			info.Decimals = def.Decimals
			info.ChainID = def.ChainID
		}
		out = append(out, info)
	}
	return out, nil
}

// ChainParams selects a chain.
type ChainParams struct {
	Chain string `json:"chain"`
}

// ChainTimeResult is the response for chain_time.
type ChainTimeResult struct {
	Chain string `json:"chain"`
	Time  int64  `json:"time"`
}

func (s *Server) chainTime(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ChainParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	ch, err := s.getChain(p.Chain)
	if err != nil {
		return nil, err
	}
	now, err := ch.Now(ctx)
	if err != nil {
		return nil, err
	}
	return &ChainTimeResult{Chain: p.Chain, Time: now}, nil
}

// getChain returns the named chain.
func (s *Server) getChain(name string) (chain.Chain, error) {
	if name == "" {
		return nil, invalidParams("chain is required")
	}
	ch, err := s.chains.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, name)
	}
	return ch, nil
}

// getLocal returns the named chain if it is an in-process ledger.
func (s *Server) getLocal(name string) (*chain.Local, error) {
	ch, err := s.getChain(name)
	if err != nil {
		return nil, err
	}
	local, ok := ch.(*chain.Local)
	if !ok {
		return nil, fmt.Errorf("%w: chain %s is not a local ledger", escrow.ErrInvalidParameter, name)
	}
	return local, nil
}

// parseIdentity parses a required identity parameter.
func parseIdentity(field, s string) (ledger.Identity, error) {
	if s == "" {
		return "", invalidParams("%s is required", field)
	}
	id, err := ledger.ParseIdentity(s)
	if err != nil {
		return "", invalidParams("%s: %v", field, err)
	}
	return id, nil
}

// ========================================
// Local ledger handlers
// ========================================

// LedgerFundParams credits an account on a local ledger. Amount is in base
// units; Value is a decimal amount in whole units and is used when Amount is 0.
type LedgerFundParams struct {
	Chain    string `json:"chain"`
	Identity string `json:"identity"`
	Amount   uint64 `json:"amount"`
	Value    string `json:"value,omitempty"`
}

// BalanceResult is the response for ledger_fund and ledger_balance.
type BalanceResult struct {
	Chain     string `json:"chain"`
	Identity  string `json:"identity"`
	Balance   string `json:"balance"`
	Formatted string `json:"formatted"`
	Symbol    string `json:"symbol,omitempty"`
}

func (s *Server) ledgerFund(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p LedgerFundParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	local, err := s.getLocal(p.Chain)
	if err != nil {
		return nil, err
	}
	id, err := parseIdentity("identity", p.Identity)
	if err != nil {
		return nil, err
	}
	amount := p.Amount
	if amount == 0 && p.Value != "" {
		def := s.chainDef(p.Chain)
		if amount, err = helpers.ParseAmount(p.Value, def.Decimals); err != nil {
			return nil, invalidParams("value: %v", err)
		}
	}
	if amount == 0 {
		return nil, invalidParams("amount must be positive")
	}
	if err := local.Bank().Credit(id, amount); err != nil {
		return nil, err
	}
	s.log.Info("Ledger account funded", "chain", p.Chain, "identity", id.Short(), "amount", amount)
	return s.balanceResult(p.Chain, local, id), nil
}

// LedgerBalanceParams selects an account on a local ledger.
type LedgerBalanceParams struct {
	Chain    string `json:"chain"`
	Identity string `json:"identity"`
}

func (s *Server) ledgerBalance(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p LedgerBalanceParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	local, err := s.getLocal(p.Chain)
	if err != nil {
		return nil, err
	}
	id, err := parseIdentity("identity", p.Identity)
	if err != nil {
		return nil, err
	}
	return s.balanceResult(p.Chain, local, id), nil
}

func (s *Server) balanceResult(name string, local *chain.Local, id ledger.Identity) *BalanceResult {
	balance := local.Bank().Balance(id)
	def := s.chainDef(name)
	return &BalanceResult{
		Chain:     name,
		Identity:  id.String(),
		Balance:   balance.Dec(),
		Formatted: helpers.FormatBigAmount(balance.ToBig(), def.Decimals),
		Symbol:    def.Symbol,
	}
}

// chainDef returns the static definition of a chain. Unknown chains get a
// zero definition, which formats amounts in base units.
func (s *Server) chainDef(name string) config.Chain {
	def, _ := config.GetChain(s.node.Protocol().Network, name)
	return def
}
