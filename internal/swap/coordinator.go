package swap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/crosslock/internal/auction"
	"github.com/Klingon-tech/crosslock/internal/chain"
	"github.com/Klingon-tech/crosslock/internal/config"
	"github.com/Klingon-tech/crosslock/internal/hashlock"
	"github.com/Klingon-tech/crosslock/internal/ledger"
	"github.com/Klingon-tech/crosslock/internal/metrics"
	"github.com/Klingon-tech/crosslock/internal/storage"
	"github.com/Klingon-tech/crosslock/pkg/logging"
)

// Coordinator manages active swaps.
type Coordinator struct {
	mu sync.RWMutex

	// Dependencies
	store    *storage.Storage
	chains   *chain.Set
	auctions *auction.Registry
	protocol *config.ProtocolConfig
	metrics  *metrics.RelayerMetrics

	// Active swaps (swapID -> ActiveSwap)
	swaps map[string]*ActiveSwap

	// Escrows with a manual taker assignment in flight ("chain/id")
	assigning map[string]struct{}

	// Event handlers
	eventHandlers []EventHandler

	log *logging.Logger

	// Context for background operations
	ctx    context.Context
	cancel context.CancelFunc
}

// CoordinatorConfig holds configuration for the Coordinator.
type CoordinatorConfig struct {
	Store    *storage.Storage
	Chains   *chain.Set
	Auctions *auction.Registry
	Protocol *config.ProtocolConfig
	Metrics  *metrics.RelayerMetrics // optional
}

// NewCoordinator creates a new swap coordinator.
func NewCoordinator(cfg *CoordinatorConfig) (*Coordinator, error) {
	if cfg.Store == nil || cfg.Chains == nil || cfg.Auctions == nil {
		return nil, errors.New("coordinator needs a store, chains and an auction registry")
	}
	protocol := cfg.Protocol
	if protocol == nil {
		protocol = config.NewProtocolConfig(config.Testnet)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:         cfg.Store,
		chains:        cfg.Chains,
		auctions:      cfg.Auctions,
		protocol:      protocol,
		metrics:       cfg.Metrics,
		swaps:         make(map[string]*ActiveSwap),
		assigning:     make(map[string]struct{}),
		eventHandlers: make([]EventHandler, 0),
		log:           logging.GetDefault().Component("swap"),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Relayer returns the identity the coordinator acts as.
func (c *Coordinator) Relayer() ledger.Identity {
	return c.auctions.Relayer()
}

// Protocol returns the protocol constants in use.
func (c *Coordinator) Protocol() *config.ProtocolConfig {
	return c.protocol
}

// Chains returns the chain set.
func (c *Coordinator) Chains() *chain.Set {
	return c.chains
}

// Auctions returns the auction registry.
func (c *Coordinator) Auctions() *auction.Registry {
	return c.auctions
}

// Store returns the checkpoint store.
func (c *Coordinator) Store() *storage.Storage {
	return c.store
}

// OnEvent registers an event handler.
func (c *Coordinator) OnEvent(handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventHandlers = append(c.eventHandlers, handler)
}

// emitEvent emits an event to all handlers.
// NOTE: Caller must hold c.mu (read or write lock).
func (c *Coordinator) emitEvent(swapID, eventType string, data interface{}) {
	event := SwapEvent{
		SwapID:    swapID,
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	handlers := make([]EventHandler, len(c.eventHandlers))
	copy(handlers, c.eventHandlers)

	for _, handler := range handlers {
		go handler(event)
	}
}

// recordEventLocked appends the event to the swap's audit log and emits it.
// Caller must hold c.mu.
func (c *Coordinator) recordEventLocked(swapID, eventType string, data interface{}) {
	if err := c.store.AddSwapEvent(swapID, eventType, data); err != nil {
		c.log.Warn("Failed to store swap event", "swap_id", swapID, "type", eventType, "error", err)
	}
	c.emitEvent(swapID, eventType, data)
}

// transitionLocked moves a swap to state and persists the checkpoint.
// Caller must hold c.mu.
func (c *Coordinator) transitionLocked(active *ActiveSwap, state storage.SwapState) error {
	prev := active.Record.State
	active.Record.State = state
	if err := c.store.SaveSwap(active.Record); err != nil {
		active.Record.State = prev
		return fmt.Errorf("failed to save swap checkpoint: %w", err)
	}
	c.metrics.SwapTransition(string(state))
	c.log.Info("Swap state changed",
		"swap_id", active.Record.ID,
		"from", prev,
		"to", state,
	)
	if state.IsTerminal() {
		delete(c.swaps, active.Record.ID)
	}
	return nil
}

// GetSwap returns a snapshot of a swap, active or settled.
func (c *Coordinator) GetSwap(swapID string) (*ActiveSwap, error) {
	c.mu.RLock()
	active, ok := c.swaps[swapID]
	if ok {
		out := active.clone()
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	rec, err := c.store.GetSwap(swapID)
	if err != nil {
		if errors.Is(err, storage.ErrSwapNotFound) {
			return nil, ErrSwapNotFound
		}
		return nil, err
	}
	return c.loadActive(rec)
}

// ListSwaps returns swap checkpoints newest first.
func (c *Coordinator) ListSwaps(limit int, includeCompleted bool) ([]*storage.SwapRecord, error) {
	return c.store.ListSwaps(limit, includeCompleted)
}

// SwapEvents returns the audit log of a swap.
func (c *Coordinator) SwapEvents(swapID string) ([]*storage.SwapEvent, error) {
	return c.store.ListSwapEvents(swapID)
}

// ActiveSwapIDs returns the ids of swaps that have not settled.
func (c *Coordinator) ActiveSwapIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.swaps))
	for id := range c.swaps {
		ids = append(ids, id)
	}
	return ids
}

// swapsInState returns snapshots of the active swaps in state.
func (c *Coordinator) swapsInState(state storage.SwapState) []*ActiveSwap {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*ActiveSwap
	for _, active := range c.swaps {
		if active.Record.State == state {
			out = append(out, active.clone())
		}
	}
	return out
}

// LoadPendingSwaps restores every unsettled swap from its checkpoint. It is
// called once at startup, after the auction registry has been restored.
func (c *Coordinator) LoadPendingSwaps(ctx context.Context) (int, error) {
	records, err := c.store.GetPendingSwaps()
	if err != nil {
		return 0, fmt.Errorf("failed to load pending swaps: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	loaded := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		active, err := c.loadActive(rec)
		if err != nil {
			c.log.Warn("Skipping unrecoverable swap", "swap_id", rec.ID, "error", err)
			continue
		}
		if rec.State == storage.SwapStatePending {
			// Crashed before the auction was created; nothing references it.
			active.Record.FailureReason = "interrupted before auction creation"
			if err := c.transitionLocked(active, storage.SwapStateFailed); err != nil {
				c.log.Warn("Failed to retire interrupted swap", "swap_id", rec.ID, "error", err)
			}
			continue
		}
		if _, err := c.auctions.Get(rec.AuctionID); err != nil {
			c.log.Warn("Swap references a missing auction", "swap_id", rec.ID, "auction_id", rec.AuctionID)
		}
		c.swaps[rec.ID] = active
		loaded++
		if _, err := c.reconcileSoldLocked(ctx, active); err != nil {
			c.log.Warn("Failed to apply earlier sale", "swap_id", rec.ID, "error", err)
		}
	}

	c.log.Info("Loaded pending swaps", "count", loaded)
	return loaded, nil
}

// loadActive builds the runtime view of rec from storage.
func (c *Coordinator) loadActive(rec *storage.SwapRecord) (*ActiveSwap, error) {
	hash, err := hashlock.ParseHash(rec.SecretHash)
	if err != nil {
		return nil, fmt.Errorf("invalid secret hash: %w", err)
	}
	legs, err := c.store.GetSwapLegsBySwapID(rec.ID)
	if err != nil {
		return nil, err
	}
	active := &ActiveSwap{Record: rec, SecretHash: hash}
	for _, leg := range legs {
		switch leg.Role {
		case storage.LegRoleMaker:
			active.MakerLeg = leg
		case storage.LegRoleResolver:
			active.ResolverLeg = leg
		}
	}
	if active.MakerLeg == nil {
		return nil, fmt.Errorf("swap %s has no maker leg", rec.ID)
	}
	return active, nil
}

// activeLocked returns the live swap. Caller must hold c.mu.
func (c *Coordinator) activeLocked(swapID string) (*ActiveSwap, error) {
	active, ok := c.swaps[swapID]
	if !ok {
		if _, err := c.store.GetSwap(swapID); err == nil {
			return nil, fmt.Errorf("%w: swap %s has settled", ErrInvalidState, swapID)
		}
		return nil, ErrSwapNotFound
	}
	return active, nil
}

// chainNow returns the ledger time of a chain.
func (c *Coordinator) chainNow(ctx context.Context, name string) (chain.Chain, int64, error) {
	ch, err := c.chains.Get(name)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", err, name)
	}
	now, err := ch.Now(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s time: %w", name, err)
	}
	return ch, now, nil
}

// Close shuts down the coordinator.
func (c *Coordinator) Close() error {
	c.cancel()
	return nil
}
