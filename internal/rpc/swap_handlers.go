package rpc

import (
	"context"
	"encoding/json"

	"github.com/Klingon-tech/crosslock/internal/hashlock"
	"github.com/Klingon-tech/crosslock/internal/storage"
	"github.com/Klingon-tech/crosslock/internal/swap"
)

// ========================================
// Swap handlers
// ========================================

func (s *Server) swapOpen(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p swap.OpenRequest
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.MakerChain == "" || p.CounterChain == "" {
		return nil, invalidParams("maker_chain and counter_chain are required")
	}
	if p.SecretHash.IsZero() {
		return nil, invalidParams("secret_hash is required")
	}
	return s.coordinator.OpenSwap(ctx, p)
}

// SwapParams selects a swap.
type SwapParams struct {
	SwapID string `json:"swap_id"`
}

func (p *SwapParams) validate() error {
	if p.SwapID == "" {
		return invalidParams("swap_id is required")
	}
	return nil
}

// SwapCounterLegParams registers the resolver's escrow for a swap.
type SwapCounterLegParams struct {
	SwapID   string `json:"swap_id"`
	Chain    string `json:"chain"`
	EscrowID uint64 `json:"escrow_id"`
}

func (s *Server) swapRegisterCounterLeg(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p SwapCounterLegParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SwapID == "" || p.Chain == "" {
		return nil, invalidParams("swap_id and chain are required")
	}
	return s.coordinator.RegisterCounterLeg(ctx, p.SwapID, p.Chain, p.EscrowID)
}

// SwapRevealParams hands the maker's secret to the relayer.
type SwapRevealParams struct {
	SwapID string          `json:"swap_id"`
	Secret hashlock.Secret `json:"secret"`
}

func (s *Server) swapRevealSecret(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p SwapRevealParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SwapID == "" {
		return nil, invalidParams("swap_id is required")
	}
	if len(p.Secret) == 0 {
		return nil, invalidParams("secret is required")
	}
	return s.coordinator.RevealSecret(ctx, p.SwapID, p.Secret)
}

func (s *Server) swapGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p SwapParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return s.coordinator.GetSwap(p.SwapID)
}

// SwapListParams pages through stored swaps.
type SwapListParams struct {
	Limit            int  `json:"limit"`
	IncludeCompleted bool `json:"include_completed"`
}

// SwapListResult is the response for swap_list.
type SwapListResult struct {
	Swaps []*storage.SwapRecord `json:"swaps"`
	Count int                   `json:"count"`
}

func (s *Server) swapList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p SwapListParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Limit <= 0 || p.Limit > 500 {
		p.Limit = 100
	}
	swaps, err := s.coordinator.ListSwaps(p.Limit, p.IncludeCompleted)
	if err != nil {
		return nil, err
	}
	if swaps == nil {
		swaps = []*storage.SwapRecord{}
	}
	return &SwapListResult{Swaps: swaps, Count: len(swaps)}, nil
}

func (s *Server) swapEvents(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p SwapParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	events, err := s.coordinator.SwapEvents(p.SwapID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*storage.SwapEvent{}
	}
	return events, nil
}
