package swap

import (
	"context"
	"fmt"
	"sync"

	"github.com/Klingon-tech/crosslock/internal/chain"
	"github.com/Klingon-tech/crosslock/internal/config"
	"github.com/Klingon-tech/crosslock/internal/escrow"
	"github.com/Klingon-tech/crosslock/internal/storage"
)

// =========================================================================
// Expiry Monitoring
// =========================================================================

// ExpiryCheckResult describes one leg looked at by CheckExpiries.
type ExpiryCheckResult struct {
	SwapID         string
	Role           storage.LegRole
	Chain          string
	EscrowID       uint64
	RescueTime     int64
	ChainTime      int64
	SecondsLeft    int64
	CancelQueued   bool
	ObservedClosed storage.LegState
	Error          error
}

// legObservation is what one chain read returned for an open leg.
type legObservation struct {
	result ExpiryCheckResult
	leg    storage.SwapLeg
	esc    *chain.Escrow
}

// CheckExpiries looks at every open leg. A leg whose rescue time has passed
// while it is still open on chain gets a cancel submission; a leg found
// closed on chain is recorded as such.
//
// Chain reads run without the coordinator lock, one goroutine per chain, so
// a stalled chain delays only its own legs.
func (c *Coordinator) CheckExpiries(ctx context.Context) ([]ExpiryCheckResult, error) {
	byChain := make(map[string][]*legObservation)
	c.mu.RLock()
	for _, active := range c.swaps {
		for _, leg := range active.Legs() {
			if leg.State.IsClosed() {
				continue
			}
			byChain[leg.Chain] = append(byChain[leg.Chain], &legObservation{
				leg: *leg,
				result: ExpiryCheckResult{
					SwapID:     active.Record.ID,
					Role:       leg.Role,
					Chain:      leg.Chain,
					EscrowID:   leg.EscrowID,
					RescueTime: leg.RescueTime,
				},
			})
		}
	}
	c.mu.RUnlock()

	var wg sync.WaitGroup
	for name, obs := range byChain {
		wg.Add(1)
		go func(name string, obs []*legObservation) {
			defer wg.Done()
			c.observeLegs(ctx, name, obs)
		}(name, obs)
	}
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	var results []ExpiryCheckResult
	for _, obs := range byChain {
		for _, o := range obs {
			if o.result.Error == nil && o.esc != nil {
				c.applyExpiryLocked(ctx, o)
			}
			results = append(results, o.result)
		}
	}
	return results, ctx.Err()
}

// observeLegs reads the chain time once and every escrow of obs.
func (c *Coordinator) observeLegs(ctx context.Context, name string, obs []*legObservation) {
	ch, now, err := c.chainNow(ctx, name)
	if err != nil {
		for _, o := range obs {
			o.result.Error = err
		}
		return
	}
	for _, o := range obs {
		if err := ctx.Err(); err != nil {
			o.result.Error = err
			continue
		}
		o.result.ChainTime = now
		o.result.SecondsLeft = config.SecondsUntilRescue(now, o.leg.RescueTime)
		esc, err := ch.Escrow(ctx, o.leg.EscrowID)
		if err != nil {
			o.result.Error = fmt.Errorf("failed to read escrow: %w", err)
			continue
		}
		o.esc = esc
	}
}

// applyExpiryLocked acts on one observation after checking the leg did not
// move while the chain was read. Caller must hold c.mu.
func (c *Coordinator) applyExpiryLocked(ctx context.Context, o *legObservation) {
	result := &o.result
	active, ok := c.swaps[result.SwapID]
	if !ok {
		return
	}
	leg := active.Leg(result.Role)
	if leg == nil || leg.EscrowID != o.leg.EscrowID || leg.State.IsClosed() {
		return
	}

	switch o.esc.State {
	case escrow.StateWithdrawn:
		result.ObservedClosed = storage.LegStateWithdrawn
		result.Error = c.legClosedLocked(ctx, active, leg, storage.LegStateWithdrawn, o.esc.Secret)
		return
	case escrow.StateCancelled:
		result.ObservedClosed = storage.LegStateCancelled
		result.Error = c.legClosedLocked(ctx, active, leg, storage.LegStateCancelled, nil)
		return
	}

	// Cancel only becomes valid strictly after the rescue time.
	now := result.ChainTime
	if now <= leg.RescueTime || leg.State == storage.LegStateCancelling {
		return
	}

	if err := c.enqueueLocked(active, leg.Role, storage.ActionCancel, nil, 0); err != nil {
		result.Error = err
		return
	}
	if err := c.setLegStateLocked(leg, storage.LegStateCancelling); err != nil {
		result.Error = err
		return
	}
	result.CancelQueued = true

	c.log.Info("Leg expired, cancel queued",
		"swap_id", active.Record.ID,
		"role", leg.Role,
		"chain", leg.Chain,
		"escrow_id", leg.EscrowID,
		"rescue_time", leg.RescueTime,
		"chain_time", now,
	)
}
