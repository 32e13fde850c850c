package swap

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/crosslock/internal/chain"
	"github.com/Klingon-tech/crosslock/internal/config"
	"github.com/Klingon-tech/crosslock/internal/escrow"
	"github.com/Klingon-tech/crosslock/internal/ledger"
	"github.com/Klingon-tech/crosslock/internal/storage"
)

// RegisterCounterLeg attaches the escrow the auction winner funded on the
// counter chain. The escrow must pay the maker under the same hash lock, at
// least the sold price, and rescue a safety margin before the maker leg. The
// maker leg must still be open and pay the winner, or have no taker yet.
func (c *Coordinator) RegisterCounterLeg(ctx context.Context, swapID, chainName string, escrowID uint64) (*ActiveSwap, error) {
	snapshot, err := c.GetSwap(swapID)
	if err != nil {
		return nil, err
	}
	makerChain, err := c.chains.Get(snapshot.MakerLeg.Chain)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, snapshot.MakerLeg.Chain)
	}
	makerEsc, err := makerChain.Escrow(ctx, snapshot.MakerLeg.EscrowID)
	if err != nil {
		return nil, err
	}

	ch, now, err := c.chainNow(ctx, chainName)
	if err != nil {
		return nil, err
	}
	esc, err := ch.Escrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	active, err := c.activeLocked(swapID)
	if err != nil {
		return nil, err
	}
	rec := active.Record
	if rec.State != storage.SwapStateSold {
		return nil, fmt.Errorf("%w: swap is %s", ErrInvalidState, rec.State)
	}
	if chainName != rec.CounterChain {
		return nil, fmt.Errorf("%w: counter leg must be on %s, not %s", ErrLegMismatch, rec.CounterChain, chainName)
	}
	if err := checkMakerTaker(rec, makerEsc); err != nil {
		return nil, err
	}
	if err := c.checkCounterEscrow(active, esc, now); err != nil {
		return nil, err
	}

	leg := &storage.SwapLeg{
		SwapID:     rec.ID,
		Role:       storage.LegRoleResolver,
		Chain:      chainName,
		EscrowID:   esc.ID,
		Amount:     esc.Amount,
		Creator:    esc.Creator.String(),
		Taker:      esc.Taker.String(),
		RescueTime: esc.RescueTime,
		State:      storage.LegStateFunded,
	}
	if err := c.store.CreateSwapLeg(leg); err != nil {
		return nil, fmt.Errorf("failed to save resolver leg: %w", err)
	}
	active.ResolverLeg = leg
	if err := c.transitionLocked(active, storage.SwapStateCounterFunded); err != nil {
		return nil, err
	}

	c.log.Info("Counter leg funded",
		"swap_id", rec.ID,
		"chain", chainName,
		"escrow_id", esc.ID,
		"amount", esc.Amount,
		"rescue_time", esc.RescueTime,
	)
	c.recordEventLocked(rec.ID, EventLegFunded, map[string]interface{}{
		"role":        storage.LegRoleResolver,
		"chain":       chainName,
		"escrow_id":   esc.ID,
		"amount":      esc.Amount,
		"rescue_time": esc.RescueTime,
	})
	return active.clone(), nil
}

// checkCounterEscrow validates the resolver escrow against the swap.
func (c *Coordinator) checkCounterEscrow(active *ActiveSwap, esc *chain.Escrow, now int64) error {
	rec := active.Record
	switch {
	case esc.State != escrow.StateOpen:
		return fmt.Errorf("%w: counter escrow %d is %s", escrow.ErrAlreadyClosed, esc.ID, esc.State)
	case esc.SecretHash != active.SecretHash:
		return fmt.Errorf("%w: secret hash differs", ErrLegMismatch)
	case esc.Taker != ledger.Identity(rec.Maker):
		return fmt.Errorf("%w: counter escrow must pay the maker %s", ErrLegMismatch, rec.Maker)
	case esc.Creator != ledger.Identity(rec.Winner):
		return fmt.Errorf("%w: counter escrow must be funded by the auction winner %s", ErrLegMismatch, rec.Winner)
	case esc.Amount < rec.SoldPrice:
		return fmt.Errorf("%w: counter amount %d below sold price %d", ErrLegMismatch, esc.Amount, rec.SoldPrice)
	}

	tl := c.protocol.Timelocks
	if !config.SafeRescueOrder(active.MakerLeg.RescueTime, esc.RescueTime, tl.SafetyMargin) {
		return fmt.Errorf("%w: maker rescues at %d, resolver at %d, margin %d",
			ErrUnsafeTimelocks, active.MakerLeg.RescueTime, esc.RescueTime, tl.SafetyMargin)
	}
	if !config.IsSafeToComplete(now, esc.RescueTime, tl.WithdrawBuffer) {
		return fmt.Errorf("%w: counter escrow rescues at %d, within %ds of now", ErrUnsafeTimelocks, esc.RescueTime, tl.WithdrawBuffer)
	}
	return nil
}

// checkMakerTaker validates the maker escrow of a sold swap: it must be open
// and either still waiting for the taker assignment or paying the winner.
func checkMakerTaker(rec *storage.SwapRecord, makerEsc *chain.Escrow) error {
	if makerEsc.State != escrow.StateOpen {
		return fmt.Errorf("%w: maker escrow %d is %s", escrow.ErrAlreadyClosed, makerEsc.ID, makerEsc.State)
	}
	if !makerEsc.TakerPending() && makerEsc.Taker != ledger.Identity(rec.Winner) {
		return fmt.Errorf("%w: maker escrow pays %s, not the auction winner %s", ErrLegMismatch, makerEsc.Taker, rec.Winner)
	}
	return nil
}
