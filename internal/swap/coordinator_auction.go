package swap

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/crosslock/internal/auction"
	"github.com/Klingon-tech/crosslock/internal/ledger"
	"github.com/Klingon-tech/crosslock/internal/storage"
)

// PlaceBid bids on the auction of a swap on behalf of bidder. The first bid
// wins; the relayer then assigns the winner as taker of the maker leg.
func (c *Coordinator) PlaceBid(ctx context.Context, swapID string, bidder ledger.Identity) (*auction.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	active, err := c.activeLocked(swapID)
	if err != nil {
		return nil, err
	}
	if active.Record.State != storage.SwapStateAuctionOpen {
		return nil, fmt.Errorf("%w: swap is %s", ErrInvalidState, active.Record.State)
	}
	return c.bidLocked(ctx, active, bidder)
}

// BidAuction bids on an auction by id. Auctions that back a swap advance
// that swap exactly like PlaceBid.
func (c *Coordinator) BidAuction(ctx context.Context, auctionID uint64, bidder ledger.Identity) (*auction.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, active := range c.swaps {
		if active.Record.AuctionID == auctionID && active.Record.State == storage.SwapStateAuctionOpen {
			return c.bidLocked(ctx, active, bidder)
		}
	}

	inst, err := c.auctions.Bid(bidder, auctionID)
	c.observeBid(inst, err)
	return inst, err
}

// SwapForAuction returns the id of the live swap backed by auctionID.
func (c *Coordinator) SwapForAuction(auctionID uint64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, active := range c.swaps {
		if active.Record.AuctionID == auctionID {
			return id, true
		}
	}
	return "", false
}

// bidLocked places the bid and applies the sale. Caller must hold c.mu.
func (c *Coordinator) bidLocked(ctx context.Context, active *ActiveSwap, bidder ledger.Identity) (*auction.Instance, error) {
	inst, err := c.auctions.Bid(bidder, active.Record.AuctionID)
	c.observeBid(inst, err)
	if errors.Is(err, auction.ErrAlreadySold) {
		if _, rerr := c.reconcileSoldLocked(ctx, active); rerr != nil {
			c.log.Warn("Failed to apply earlier sale", "swap_id", active.Record.ID, "error", rerr)
		}
	}
	if err != nil {
		return nil, err
	}
	if err := c.handleSoldLocked(ctx, active, inst); err != nil {
		return inst, err
	}
	return inst, nil
}

// handleSoldLocked records the auction outcome and queues the taker
// assignment of the maker leg. Caller must hold c.mu.
func (c *Coordinator) handleSoldLocked(ctx context.Context, active *ActiveSwap, inst *auction.Instance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := active.Record
	rec.Winner = inst.Taker.String()
	rec.SoldPrice = inst.SoldPrice
	if err := c.transitionLocked(active, storage.SwapStateSold); err != nil {
		return err
	}

	if err := c.enqueueLocked(active, storage.LegRoleMaker, storage.ActionAssignTaker,
		&storage.SubmissionPayload{Taker: rec.Winner}, active.MakerLeg.RescueTime); err != nil {
		return err
	}

	c.log.Info("Auction sold",
		"swap_id", rec.ID,
		"auction_id", inst.ID,
		"winner", inst.Taker.Short(),
		"price", inst.SoldPrice,
	)
	c.recordEventLocked(rec.ID, EventAuctionSold, map[string]interface{}{
		"auction_id": inst.ID,
		"winner":     rec.Winner,
		"sold_price": inst.SoldPrice,
		"sold_at":    inst.SoldAt,
	})
	return nil
}

// reconcileSoldLocked applies a sale the swap checkpoint missed: the
// auction is sold while the swap is still auction_open. Caller must hold
// c.mu.
func (c *Coordinator) reconcileSoldLocked(ctx context.Context, active *ActiveSwap) (bool, error) {
	if active.Record.State != storage.SwapStateAuctionOpen {
		return false, nil
	}
	inst, err := c.auctions.Get(active.Record.AuctionID)
	if err != nil {
		return false, err
	}
	if !inst.Sold {
		return false, nil
	}
	c.log.Info("Applying auction sale missing from checkpoint", "swap_id", active.Record.ID, "auction_id", inst.ID)
	if err := c.handleSoldLocked(ctx, active, inst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Coordinator) observeBid(inst *auction.Instance, err error) {
	switch {
	case err == nil:
		c.metrics.Bid("won", inst.SoldPrice, inst.StartPrice)
	case errors.Is(err, auction.ErrAlreadySold):
		c.metrics.Bid("sold", 0, 0)
	case errors.Is(err, auction.ErrNotWhitelisted):
		c.metrics.Bid("not_whitelisted", 0, 0)
	default:
		c.metrics.Bid("rejected", 0, 0)
	}
}

// enqueueLocked queues a chain operation on the leg with role unless one is
// already pending or done. Caller must hold c.mu.
func (c *Coordinator) enqueueLocked(active *ActiveSwap, role storage.LegRole, action storage.SubmissionAction, payload *storage.SubmissionPayload, deadline int64) error {
	leg := active.Leg(role)
	if leg == nil {
		return fmt.Errorf("%w: no %s leg", ErrLegsNotFunded, role)
	}
	exists, err := c.store.HasActiveSubmission(active.Record.ID, role, action)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	sub := &storage.Submission{
		SwapID:   active.Record.ID,
		Chain:    leg.Chain,
		Action:   action,
		LegRole:  role,
		EscrowID: leg.EscrowID,
		Deadline: deadline,
	}
	if err := c.store.EnqueueSubmission(sub, payload); err != nil {
		return err
	}
	c.log.Debug("Submission queued",
		"swap_id", active.Record.ID,
		"chain", leg.Chain,
		"action", action,
		"escrow_id", leg.EscrowID,
		"deadline", deadline,
	)
	return nil
}
