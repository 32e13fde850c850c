package swap

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/crosslock/internal/escrow"
	"github.com/Klingon-tech/crosslock/internal/hashlock"
	"github.com/Klingon-tech/crosslock/internal/storage"
)

// RevealSecret accepts the maker's preimage once both legs are funded and
// the maker leg has its taker. It queues the withdraw of both legs: the
// resolver leg pays the maker, the maker leg pays the resolver.
func (c *Coordinator) RevealSecret(ctx context.Context, swapID string, secret []byte) (*ActiveSwap, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	active, err := c.activeLocked(swapID)
	if err != nil {
		return nil, err
	}
	if err := c.revealLocked(ctx, active, secret, storage.SecretSourceMaker); err != nil {
		return nil, err
	}
	return active.clone(), nil
}

// revealFromChain is called when the preimage shows up on a ledger.
func (c *Coordinator) revealFromChain(ctx context.Context, swapID string, secret []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	active, err := c.activeLocked(swapID)
	if err != nil {
		return err
	}
	if active.Record.State == storage.SwapStateSecretRevealed {
		return nil
	}
	return c.revealLocked(ctx, active, secret, storage.SecretSourceChain)
}

// revealLocked stores the secret and queues both withdraws. Caller must
// hold c.mu.
func (c *Coordinator) revealLocked(ctx context.Context, active *ActiveSwap, secret []byte, source storage.SecretSource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := active.Record
	switch rec.State {
	case storage.SwapStateCounterFunded, storage.SwapStateSecretRevealed:
	case storage.SwapStateAuctionOpen, storage.SwapStateSold:
		return fmt.Errorf("%w: swap is %s", ErrLegsNotFunded, rec.State)
	default:
		return fmt.Errorf("%w: swap is %s", ErrInvalidState, rec.State)
	}
	if !legFunded(active.MakerLeg) || !legFunded(active.ResolverLeg) {
		return ErrLegsNotFunded
	}
	// A preimage already public on chain is acted on regardless; the
	// maker leg withdraw retries until the taker assignment lands.
	if source == storage.SecretSourceMaker && active.MakerLeg.Taker == "" {
		return fmt.Errorf("%w: maker leg taker not yet assigned", ErrLegsNotFunded)
	}
	if source == storage.SecretSourceMaker {
		if err := hashlock.CheckSecret(secret); err != nil {
			return fmt.Errorf("%w: %v", escrow.ErrInvalidSecret, err)
		}
	}
	if !hashlock.Verify(secret, active.SecretHash) {
		return escrow.ErrInvalidSecret
	}

	secretHex := hashlock.Secret(secret).Hex()
	if err := c.store.RevealSecret(rec.ID, secretHex, source); err != nil {
		return fmt.Errorf("failed to store secret: %w", err)
	}

	buffer := c.protocol.Timelocks.WithdrawBuffer
	payload := &storage.SubmissionPayload{Secret: secretHex}
	for _, leg := range []*storage.SwapLeg{active.ResolverLeg, active.MakerLeg} {
		if leg.State != storage.LegStateFunded {
			continue
		}
		if err := c.enqueueLocked(active, leg.Role, storage.ActionWithdraw, payload, leg.RescueTime-buffer); err != nil {
			return err
		}
		if err := c.setLegStateLocked(leg, storage.LegStateWithdrawing); err != nil {
			return err
		}
	}

	if rec.State == storage.SwapStateSecretRevealed {
		return nil
	}
	if err := c.transitionLocked(active, storage.SwapStateSecretRevealed); err != nil {
		return err
	}
	c.log.Info("Secret revealed", "swap_id", rec.ID, "source", source)
	c.recordEventLocked(rec.ID, EventSecretRevealed, map[string]interface{}{
		"source": source,
		"secret": secretHex,
	})
	return nil
}

// legFunded reports whether a leg is recorded and still holds its deposit.
func legFunded(leg *storage.SwapLeg) bool {
	if leg == nil {
		return false
	}
	return leg.State == storage.LegStateFunded || leg.State == storage.LegStateWithdrawing
}

// setLegStateLocked persists a leg state. Caller must hold c.mu.
func (c *Coordinator) setLegStateLocked(leg *storage.SwapLeg, state storage.LegState) error {
	if leg.State == state {
		return nil
	}
	if err := c.store.UpdateSwapLegState(leg.ID, state); err != nil {
		return fmt.Errorf("failed to update %s leg: %w", leg.Role, err)
	}
	leg.State = state
	return nil
}
