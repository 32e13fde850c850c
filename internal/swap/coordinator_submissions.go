package swap

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/crosslock/internal/chain"
	"github.com/Klingon-tech/crosslock/internal/escrow"
	"github.com/Klingon-tech/crosslock/internal/hashlock"
	"github.com/Klingon-tech/crosslock/internal/ledger"
	"github.com/Klingon-tech/crosslock/internal/storage"
)

// =========================================================================
// Submission execution
// =========================================================================

// ExecuteSubmission performs one queued chain operation. An operation whose
// effect is already visible on chain succeeds without sending anything, so
// replays after a crash are harmless.
func (c *Coordinator) ExecuteSubmission(ctx context.Context, sub *storage.Submission) error {
	ch, err := c.chains.Get(sub.Chain)
	if err != nil {
		return fmt.Errorf("%w: %s", err, sub.Chain)
	}
	payload, err := sub.DecodePayload()
	if err != nil {
		return fmt.Errorf("%w: %v", escrow.ErrInvalidParameter, err)
	}

	esc, err := ch.Escrow(ctx, sub.EscrowID)
	if err != nil {
		return err
	}

	switch sub.Action {
	case storage.ActionAssignTaker:
		taker := ledger.Identity(payload.Taker)
		if esc.Taker == taker {
			return nil
		}
		return ch.AssignTaker(ctx, sub.EscrowID, taker)

	case storage.ActionWithdraw:
		if esc.State == escrow.StateWithdrawn {
			return nil
		}
		if sub.LegRole == storage.LegRoleMaker {
			winner, err := c.swapWinner(sub.SwapID)
			if err != nil {
				return err
			}
			if esc.Taker != winner {
				return fmt.Errorf("%w: maker escrow %d pays %s, not the auction winner %s",
					ErrLegMismatch, sub.EscrowID, esc.Taker, winner)
			}
		}
		secret, err := hashlock.DecodeSecret(payload.Secret)
		if err != nil {
			return fmt.Errorf("%w: %v", escrow.ErrInvalidSecret, err)
		}
		return ch.Withdraw(ctx, sub.EscrowID, secret)

	case storage.ActionCancel:
		if esc.State == escrow.StateCancelled {
			return nil
		}
		return ch.Cancel(ctx, sub.EscrowID)
	}
	return fmt.Errorf("%w: unknown action %q", escrow.ErrInvalidParameter, sub.Action)
}

// swapWinner returns the auction winner recorded for a swap.
func (c *Coordinator) swapWinner(swapID string) (ledger.Identity, error) {
	c.mu.RLock()
	active, ok := c.swaps[swapID]
	var winner string
	if ok {
		winner = active.Record.Winner
	}
	c.mu.RUnlock()
	if !ok {
		rec, err := c.store.GetSwap(swapID)
		if err != nil {
			return "", fmt.Errorf("%w: %v", escrow.ErrInvalidParameter, err)
		}
		winner = rec.Winner
	}
	if winner == "" {
		return "", fmt.Errorf("%w: swap %s has no auction winner", ErrLegMismatch, swapID)
	}
	return ledger.Identity(winner), nil
}

// IsPermanent reports whether a submission error can never succeed on
// retry.
func IsPermanent(err error) bool {
	switch {
	case errors.Is(err, escrow.ErrAlreadyClosed),
		errors.Is(err, escrow.ErrTakerAssigned),
		errors.Is(err, escrow.ErrInvalidSecret),
		errors.Is(err, escrow.ErrInvalidParameter),
		errors.Is(err, escrow.ErrUnauthorized),
		errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, ErrLegMismatch),
		errors.Is(err, chain.ErrUnknownChain),
		errors.Is(err, chain.ErrNoSigner):
		return true
	}
	return false
}

// IsExpired reports whether a submission error means its window closed.
func IsExpired(err error) bool {
	return errors.Is(err, escrow.ErrWindowExpired)
}

// =========================================================================
// Submission outcomes
// =========================================================================

// SubmissionDone applies a submission that took effect on chain.
func (c *Coordinator) SubmissionDone(ctx context.Context, sub *storage.Submission) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	active, ok := c.swaps[sub.SwapID]
	if !ok {
		c.log.Debug("Submission done for settled swap", "swap_id", sub.SwapID, "action", sub.Action)
		return nil
	}
	leg := active.Leg(sub.LegRole)
	if leg == nil {
		return fmt.Errorf("%w: no %s leg", ErrLegsNotFunded, sub.LegRole)
	}

	switch sub.Action {
	case storage.ActionAssignTaker:
		payload, err := sub.DecodePayload()
		if err != nil {
			return err
		}
		if err := c.store.UpdateSwapLegTaker(leg.ID, payload.Taker); err != nil {
			return err
		}
		leg.Taker = payload.Taker
		c.log.Info("Maker leg taker assigned", "swap_id", sub.SwapID, "taker", ledger.Identity(payload.Taker).Short())
		c.recordEventLocked(sub.SwapID, EventTakerAssigned, map[string]interface{}{
			"chain":     leg.Chain,
			"escrow_id": leg.EscrowID,
			"taker":     payload.Taker,
		})
		return nil

	case storage.ActionWithdraw:
		return c.legClosedLocked(ctx, active, leg, storage.LegStateWithdrawn, nil)

	case storage.ActionCancel:
		return c.legClosedLocked(ctx, active, leg, storage.LegStateCancelled, nil)
	}
	return nil
}

// SubmissionAbandoned records a submission that will not be retried. The
// leg stays open; once its rescue time passes the expiry check cancels it.
func (c *Coordinator) SubmissionAbandoned(ctx context.Context, sub *storage.Submission, status storage.SubmissionStatus, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	active, ok := c.swaps[sub.SwapID]
	if !ok {
		return nil
	}

	c.log.Warn("Submission abandoned",
		"swap_id", sub.SwapID,
		"chain", sub.Chain,
		"action", sub.Action,
		"status", status,
		"reason", reason,
	)

	if leg := active.Leg(sub.LegRole); leg != nil && sub.Action == storage.ActionWithdraw && leg.State == storage.LegStateWithdrawing {
		if err := c.setLegStateLocked(leg, storage.LegStateFunded); err != nil {
			return err
		}
	}
	if sub.Action == storage.ActionAssignTaker {
		active.Record.FailureReason = fmt.Sprintf("taker assignment %s: %s", status, reason)
		if err := c.store.SaveSwap(active.Record); err != nil {
			return err
		}
	}

	c.recordEventLocked(sub.SwapID, EventSubmissionFailed, map[string]interface{}{
		"chain":  sub.Chain,
		"action": sub.Action,
		"role":   sub.LegRole,
		"status": status,
		"reason": reason,
	})
	return ctx.Err()
}

// legClosedLocked records a closed leg and settles the swap once every leg
// is closed. secret is the preimage observed on a withdrawn escrow, if any.
// Caller must hold c.mu.
func (c *Coordinator) legClosedLocked(ctx context.Context, active *ActiveSwap, leg *storage.SwapLeg, state storage.LegState, secret []byte) error {
	if leg.State == state {
		return nil
	}

	// The maker withdrawing the resolver leg directly reveals the secret.
	if state == storage.LegStateWithdrawn && leg.Role == storage.LegRoleResolver &&
		active.Record.State == storage.SwapStateCounterFunded {
		if len(secret) == 0 {
			c.log.Warn("Withdrawn resolver leg carries no secret", "swap_id", active.Record.ID, "escrow_id", leg.EscrowID)
		} else if err := c.revealLocked(ctx, active, secret, storage.SecretSourceChain); err != nil {
			c.log.Warn("Failed to apply secret from withdrawn leg", "swap_id", active.Record.ID, "error", err)
		}
	}

	if err := c.setLegStateLocked(leg, state); err != nil {
		return err
	}

	eventType := EventLegWithdrawn
	if state == storage.LegStateCancelled {
		eventType = EventLegCancelled
	}
	c.log.Info("Leg closed",
		"swap_id", active.Record.ID,
		"role", leg.Role,
		"chain", leg.Chain,
		"state", state,
	)
	c.recordEventLocked(active.Record.ID, eventType, map[string]interface{}{
		"role":      leg.Role,
		"chain":     leg.Chain,
		"escrow_id": leg.EscrowID,
	})

	return c.settleLocked(active)
}

// settleLocked moves a swap to its terminal state once all legs are closed.
// Caller must hold c.mu.
func (c *Coordinator) settleLocked(active *ActiveSwap) error {
	rec := active.Record
	legs := active.Legs()
	withdrawn, cancelled := 0, 0
	for _, leg := range legs {
		switch leg.State {
		case storage.LegStateWithdrawn:
			withdrawn++
		case storage.LegStateCancelled:
			cancelled++
		default:
			return nil
		}
	}

	switch {
	case withdrawn == 2:
		if err := c.transitionLocked(active, storage.SwapStateCompleted); err != nil {
			return err
		}
		c.recordEventLocked(rec.ID, EventSwapCompleted, map[string]interface{}{
			"winner":     rec.Winner,
			"sold_price": rec.SoldPrice,
		})
	case withdrawn == 0:
		if err := c.transitionLocked(active, storage.SwapStateRefunded); err != nil {
			return err
		}
		c.recordEventLocked(rec.ID, EventSwapRefunded, map[string]interface{}{
			"legs": len(legs),
		})
	default:
		rec.FailureReason = fmt.Sprintf("partial settlement: %d withdrawn, %d cancelled", withdrawn, cancelled)
		if err := c.transitionLocked(active, storage.SwapStateFailed); err != nil {
			return err
		}
		c.recordEventLocked(rec.ID, EventSwapFailed, map[string]interface{}{
			"reason": rec.FailureReason,
		})
	}
	return nil
}
