package swap

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Klingon-tech/crosslock/internal/auction"
	"github.com/Klingon-tech/crosslock/internal/chain"
	"github.com/Klingon-tech/crosslock/internal/config"
	"github.com/Klingon-tech/crosslock/internal/escrow"
	"github.com/Klingon-tech/crosslock/internal/ledger"
	"github.com/Klingon-tech/crosslock/internal/storage"
)

// auctionParams merges the request overrides with the configured defaults.
func (c *Coordinator) auctionParams(req *OpenRequest) (auction.Params, error) {
	def := c.protocol.Auction
	p := auction.Params{
		StartPrice: def.StartPrice,
		MinPrice:   def.MinPrice,
		Duration:   def.Duration,
	}
	if req.StartPrice > 0 {
		p.StartPrice = req.StartPrice
	}
	if req.MinPrice > 0 {
		p.MinPrice = req.MinPrice
	}
	if req.Duration > 0 {
		p.Duration = req.Duration
	}
	curveName := def.Curve
	if req.Curve != "" {
		curveName = req.Curve
	}
	curve, err := auction.ParseCurve(curveName)
	if err != nil {
		return p, err
	}
	p.Curve = curve
	return p, p.Validate()
}

// OpenSwap starts a swap over a maker escrow that is already funded on the
// maker chain with a pending taker. The relayer creates the auction that
// selects the resolver and checkpoints the swap.
func (c *Coordinator) OpenSwap(ctx context.Context, req OpenRequest) (*ActiveSwap, error) {
	if req.SecretHash.IsZero() {
		return nil, fmt.Errorf("%w: secret hash is required", escrow.ErrInvalidParameter)
	}
	if req.MakerChain == req.CounterChain {
		return nil, ErrSameChain
	}
	if _, err := c.chains.Get(req.CounterChain); err != nil {
		return nil, fmt.Errorf("%w: %s", err, req.CounterChain)
	}
	params, err := c.auctionParams(&req)
	if err != nil {
		return nil, err
	}

	makerChain, now, err := c.chainNow(ctx, req.MakerChain)
	if err != nil {
		return nil, err
	}
	esc, err := makerChain.Escrow(ctx, req.EscrowID)
	if err != nil {
		return nil, err
	}
	switch {
	case esc.State != escrow.StateOpen:
		return nil, fmt.Errorf("%w: maker escrow %d is %s", escrow.ErrAlreadyClosed, esc.ID, esc.State)
	case !esc.TakerPending():
		return nil, fmt.Errorf("%w: maker escrow %d", escrow.ErrTakerAssigned, esc.ID)
	case esc.SecretHash != req.SecretHash:
		return nil, fmt.Errorf("%w: secret hash differs from maker escrow", ErrLegMismatch)
	}

	// The resolver leg is created after the auction and must rescue a
	// safety margin before the maker leg.
	tl := c.protocol.Timelocks
	if !config.IsSafeToComplete(now, esc.RescueTime, params.Duration+tl.Resolver+tl.SafetyMargin) {
		return nil, fmt.Errorf("%w: maker escrow rescues at %d, too soon for a %ds auction and %ds resolver leg",
			ErrUnsafeTimelocks, esc.RescueTime, params.Duration, tl.Resolver)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.escrowUnusedLocked(req.MakerChain, req.EscrowID); err != nil {
		return nil, err
	}

	rec := &storage.SwapRecord{
		ID:            uuid.New().String(),
		State:         storage.SwapStatePending,
		Maker:         esc.Creator.String(),
		SecretHash:    req.SecretHash.Hex(),
		MakerChain:    req.MakerChain,
		MakerEscrowID: req.EscrowID,
		CounterChain:  req.CounterChain,
	}
	if err := c.store.SaveSwap(rec); err != nil {
		return nil, fmt.Errorf("failed to save swap: %w", err)
	}

	params.EscrowID = esc.ID
	params.EscrowAppID = makerChain.Address().String()
	auctionID, err := c.auctions.CreateAuction(c.Relayer(), params)
	if err != nil {
		rec.FailureReason = err.Error()
		rec.State = storage.SwapStateFailed
		if serr := c.store.SaveSwap(rec); serr != nil {
			c.log.Warn("Failed to record auction failure", "swap_id", rec.ID, "error", serr)
		}
		return nil, err
	}
	rec.AuctionID = auctionID

	makerLeg := &storage.SwapLeg{
		SwapID:     rec.ID,
		Role:       storage.LegRoleMaker,
		Chain:      req.MakerChain,
		EscrowID:   esc.ID,
		Amount:     esc.Amount,
		Creator:    esc.Creator.String(),
		RescueTime: esc.RescueTime,
		State:      storage.LegStateFunded,
	}
	if err := c.store.CreateSwapLeg(makerLeg); err != nil {
		return nil, fmt.Errorf("failed to save maker leg: %w", err)
	}
	if err := c.store.CreateSecret(&storage.Secret{
		SwapID:     rec.ID,
		SecretHash: req.SecretHash.Hex(),
	}); err != nil {
		return nil, fmt.Errorf("failed to save secret hash: %w", err)
	}

	active := &ActiveSwap{
		Record:     rec,
		MakerLeg:   makerLeg,
		SecretHash: req.SecretHash,
	}
	if err := c.transitionLocked(active, storage.SwapStateAuctionOpen); err != nil {
		return nil, err
	}
	c.swaps[rec.ID] = active

	c.log.Info("Swap opened",
		"swap_id", rec.ID,
		"maker", esc.Creator.Short(),
		"maker_chain", req.MakerChain,
		"escrow_id", esc.ID,
		"counter_chain", req.CounterChain,
		"auction_id", auctionID,
	)
	c.recordEventLocked(rec.ID, EventSwapOpened, map[string]interface{}{
		"auction_id":    auctionID,
		"maker_chain":   req.MakerChain,
		"escrow_id":     esc.ID,
		"counter_chain": req.CounterChain,
		"amount":        esc.Amount,
		"start_price":   params.StartPrice,
		"min_price":     params.MinPrice,
		"duration":      params.Duration,
	})

	return active.clone(), nil
}

// AssignTaker sets the taker of an escrow that backs no swap. The maker leg
// of a swap only ever pays its auction winner, assigned by the coordinator.
func (c *Coordinator) AssignTaker(ctx context.Context, chainName string, escrowID uint64, taker ledger.Identity) (*chain.Escrow, error) {
	ch, err := c.chains.Get(chainName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, chainName)
	}

	key := escrowKey(chainName, escrowID)
	c.mu.Lock()
	if err := c.escrowUnusedLocked(chainName, escrowID); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.assigning[key] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.assigning, key)
		c.mu.Unlock()
	}()

	if err := ch.AssignTaker(ctx, escrowID, taker); err != nil {
		return nil, err
	}
	c.log.Info("Taker assigned manually", "chain", chainName, "escrow_id", escrowID, "taker", taker.Short())
	return ch.Escrow(ctx, escrowID)
}

// escrowUnusedLocked fails when an escrow backs a swap or has a manual taker
// assignment in flight. Caller must hold c.mu.
func (c *Coordinator) escrowUnusedLocked(chainName string, escrowID uint64) error {
	if _, busy := c.assigning[escrowKey(chainName, escrowID)]; busy {
		return fmt.Errorf("%w: escrow %d on %s has a taker assignment in flight", escrow.ErrTakerAssigned, escrowID, chainName)
	}
	existing, err := c.store.GetSwapByMakerEscrow(chainName, escrowID)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrSwapExists, existing.ID)
	}
	if !errors.Is(err, storage.ErrSwapNotFound) {
		return err
	}
	return nil
}

func escrowKey(chainName string, escrowID uint64) string {
	return fmt.Sprintf("%s/%d", chainName, escrowID)
}
