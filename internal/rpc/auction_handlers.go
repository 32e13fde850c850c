package rpc

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Klingon-tech/crosslock/internal/auction"
	"github.com/Klingon-tech/crosslock/internal/ledger"
	"github.com/Klingon-tech/crosslock/internal/wallet"
)

// ========================================
// Auction handlers
// ========================================

// auctionCreate creates a standalone auction as the relayer. Auctions that
// back a swap are created by swap_open.
func (s *Server) auctionCreate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p auction.Params
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	id, err := s.auctions.CreateAuction(s.node.Relayer(), p)
	if err != nil {
		return nil, err
	}
	s.log.Info("Auction created",
		"auction_id", id,
		"escrow_app_id", p.EscrowAppID,
		"escrow_id", p.EscrowID,
		"start_price", p.StartPrice,
		"min_price", p.MinPrice,
	)
	return s.auctions.Get(id)
}

// AuctionParams selects an auction.
type AuctionParams struct {
	ID uint64 `json:"id"`
}

// AuctionResult is an auction plus the swap it backs, if any.
type AuctionResult struct {
	*auction.Instance
	SwapID string `json:"swap_id,omitempty"`
}

func (s *Server) auctionGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p AuctionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	inst, err := s.auctions.Get(p.ID)
	if err != nil {
		return nil, err
	}
	swapID, _ := s.coordinator.SwapForAuction(p.ID)
	return &AuctionResult{Instance: inst, SwapID: swapID}, nil
}

// AuctionPriceResult is the response for auction_price.
type AuctionPriceResult struct {
	ID    uint64 `json:"id"`
	Price uint64 `json:"price"`
	Time  int64  `json:"time"`
	Sold  bool   `json:"sold"`
}

func (s *Server) auctionPrice(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p AuctionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	inst, err := s.auctions.Get(p.ID)
	if err != nil {
		return nil, err
	}
	price, err := s.auctions.CurrentPrice(p.ID)
	if err != nil {
		return nil, err
	}
	return &AuctionPriceResult{
		ID:    p.ID,
		Price: price,
		Time:  s.auctions.Now(),
		Sold:  inst.Sold,
	}, nil
}

// AuctionBidParams carries a bid signed with the bidder's EVM key over
// the bid message of the auction.
type AuctionBidParams struct {
	AuctionID uint64        `json:"auction_id"`
	Signature hexutil.Bytes `json:"signature"`
}

func (s *Server) auctionBid(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p AuctionBidParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p.Signature) == 0 {
		return nil, invalidParams("signature is required")
	}
	bidder, err := wallet.RecoverBidder(p.AuctionID, p.Signature)
	if err != nil {
		return nil, invalidParams("signature: %v", err)
	}

	inst, err := s.coordinator.BidAuction(ctx, p.AuctionID, bidder)
	if err != nil {
		return nil, err
	}
	s.log.Info("Bid accepted",
		"auction_id", p.AuctionID,
		"bidder", bidder.Short(),
		"price", inst.SoldPrice,
	)
	swapID, _ := s.coordinator.SwapForAuction(p.AuctionID)
	return &AuctionResult{Instance: inst, SwapID: swapID}, nil
}

// ========================================
// Whitelist handlers
// ========================================

// WhitelistParams names a bidder.
type WhitelistParams struct {
	Identity string `json:"identity"`
}

// WhitelistResult is the response for the whitelist methods.
type WhitelistResult struct {
	Enabled bool              `json:"enabled"`
	Members []ledger.Identity `json:"members"`
}

func (s *Server) whitelistAdd(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p WhitelistParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	id, err := parseIdentity("identity", p.Identity)
	if err != nil {
		return nil, err
	}
	if err := s.auctions.Whitelist().Add(s.node.Relayer(), id); err != nil {
		return nil, err
	}
	s.log.Info("Bidder whitelisted", "identity", id.Short())
	return s.whitelistResult(), nil
}

func (s *Server) whitelistRemove(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p WhitelistParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	id, err := parseIdentity("identity", p.Identity)
	if err != nil {
		return nil, err
	}
	if err := s.auctions.Whitelist().Remove(s.node.Relayer(), id); err != nil {
		return nil, err
	}
	s.log.Info("Bidder removed from whitelist", "identity", id.Short())
	return s.whitelistResult(), nil
}

func (s *Server) whitelistList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.whitelistResult(), nil
}

func (s *Server) whitelistResult() *WhitelistResult {
	wl := s.auctions.Whitelist()
	members := wl.List()
	if members == nil {
		members = []ledger.Identity{}
	}
	return &WhitelistResult{Enabled: wl.Enabled(), Members: members}
}
