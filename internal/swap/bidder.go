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
	"github.com/Klingon-tech/crosslock/internal/escrow"
	"github.com/Klingon-tech/crosslock/internal/ledger"
	"github.com/Klingon-tech/crosslock/internal/storage"
	"github.com/Klingon-tech/crosslock/pkg/logging"
)

// BidderConfig configures the built-in resolver.
type BidderConfig struct {
	// Identity bids and funds counter legs. On EVM counter chains the node
	// must hold its signing key.
	Identity ledger.Identity

	// MaxPrice is the highest price the resolver pays.
	MaxPrice uint64

	// Timelock of the counter legs; 0 uses the protocol resolver timelock.
	Timelock int64

	Interval time.Duration
}

// Bidder is a resolver strategy run inside the relayer: it watches open
// auctions, bids once the price falls to its limit, then funds and
// registers the counter leg. Every counter escrow it funds is tracked in
// storage until it is a swap leg or cancelled.
type Bidder struct {
	coordinator *Coordinator
	store       *storage.Storage
	cfg         BidderConfig
	log         *logging.Logger

	// Serializes funding so a swap never gets two counter escrows.
	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBidder creates a bidder.
func NewBidder(coordinator *Coordinator, cfg BidderConfig) (*Bidder, error) {
	if cfg.Identity.IsZero() {
		return nil, errors.New("bidder identity is required")
	}
	if cfg.MaxPrice == 0 {
		return nil, errors.New("bidder max price must be positive")
	}
	if cfg.Timelock <= 0 {
		cfg.Timelock = coordinator.protocol.Timelocks.Resolver
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bidder{
		coordinator: coordinator,
		store:       coordinator.store,
		cfg:         cfg,
		log:         logging.GetDefault().Component("bidder"),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start starts the bidding loop.
func (b *Bidder) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-b.ctx.Done():
				return
			case <-ticker.C:
				if _, err := b.Step(b.ctx); err != nil {
					b.log.Debug("Bidder step failed", "error", err)
				}
			}
		}
	}()
	b.log.Info("Bidder started", "identity", b.cfg.Identity.Short(), "max_price", b.cfg.MaxPrice)
}

// Stop stops the bidding loop.
func (b *Bidder) Stop() {
	b.cancel()
	b.wg.Wait()
}

// Step runs one pass: it funds swaps already won by this resolver, bids on
// open auctions priced within the limit, and cancels counter escrows that
// can no longer become a leg once their rescue time has passed. It returns
// the ids of swaps whose counter leg it registered.
func (b *Bidder) Step(ctx context.Context) ([]string, error) {
	var funded []string
	var errs []error

	for _, active := range b.coordinator.swapsInState(storage.SwapStateSold) {
		if ledger.Identity(active.Record.Winner) != b.cfg.Identity {
			continue
		}
		ok, err := b.fund(ctx, active, active.Record.SoldPrice)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			funded = append(funded, active.Record.ID)
		}
	}

	for _, active := range b.coordinator.swapsInState(storage.SwapStateAuctionOpen) {
		ok, err := b.tryBid(ctx, active)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			funded = append(funded, active.Record.ID)
		}
	}

	if err := b.sweep(ctx); err != nil {
		errs = append(errs, err)
	}
	return funded, errors.Join(errs...)
}

// tryBid bids when the price is within the limit and the counter leg can
// still satisfy the timelock ordering.
func (b *Bidder) tryBid(ctx context.Context, active *ActiveSwap) (bool, error) {
	rec := active.Record
	price, err := b.coordinator.auctions.CurrentPrice(rec.AuctionID)
	if err != nil {
		return false, err
	}
	if price > b.cfg.MaxPrice {
		return false, nil
	}

	_, now, err := b.coordinator.chainNow(ctx, rec.CounterChain)
	if err != nil {
		return false, err
	}
	margin := b.coordinator.protocol.Timelocks.SafetyMargin
	if !config.SafeRescueOrder(active.MakerLeg.RescueTime, now+b.cfg.Timelock, margin) {
		b.log.Debug("Skipping auction, maker leg rescues too soon",
			"swap_id", rec.ID,
			"maker_rescue", active.MakerLeg.RescueTime,
		)
		return false, nil
	}

	inst, err := b.coordinator.PlaceBid(ctx, rec.ID, b.cfg.Identity)
	if err != nil {
		if errors.Is(err, auction.ErrAlreadySold) || errors.Is(err, ErrInvalidState) {
			return false, nil
		}
		return false, err
	}
	b.log.Info("Won auction", "swap_id", rec.ID, "auction_id", inst.ID, "price", inst.SoldPrice)

	return b.fund(ctx, active, inst.SoldPrice)
}

// fund creates the counter escrow paying the maker, unless one was already
// created for the swap, and registers it. It reports whether the leg was
// registered.
func (b *Bidder) fund(ctx context.Context, active *ActiveSwap, amount uint64) (bool, error) {
	rec := active.Record
	ch, err := b.coordinator.chains.Get(rec.CounterChain)
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ce, err := b.store.GetCounterEscrow(rec.ID)
	if errors.Is(err, storage.ErrCounterEscrowNotFound) {
		ce, err = b.create(ctx, ch, active, amount)
	}
	if err != nil {
		return false, err
	}

	switch ce.State {
	case storage.CounterEscrowCreated:
	case storage.CounterEscrowFunding:
		// The node stopped while the escrow was being created; it may exist.
		return false, fmt.Errorf("counter leg of %s was interrupted while funding on %s, check the resolver escrows there",
			rec.ID, ce.Chain)
	default:
		return false, nil
	}

	if _, err := b.coordinator.RegisterCounterLeg(ctx, rec.ID, ce.Chain, ce.EscrowID); err != nil {
		if registrationFinal(err) {
			b.abandon(ce, err.Error())
		}
		return false, fmt.Errorf("failed to register counter leg of %s: %w", rec.ID, err)
	}
	if err := b.store.SetCounterEscrowState(rec.ID, storage.CounterEscrowRegistered, ""); err != nil {
		b.log.Warn("Failed to mark counter escrow registered", "swap_id", rec.ID, "error", err)
	}
	b.log.Info("Counter leg funded",
		"swap_id", rec.ID,
		"chain", ce.Chain,
		"escrow_id", ce.EscrowID,
		"amount", amount,
	)
	return true, nil
}

// create funds the counter escrow, recording the intent first and the id
// once the escrow exists.
func (b *Bidder) create(ctx context.Context, ch chain.Chain, active *ActiveSwap, amount uint64) (*storage.CounterEscrow, error) {
	rec := active.Record
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.store.BeginCounterEscrow(rec.ID, rec.CounterChain, b.cfg.Identity.String()); err != nil {
		return nil, err
	}

	id, err := ch.CreateEscrow(ctx, chain.CreateRequest{
		Creator:    b.cfg.Identity,
		Timelock:   b.cfg.Timelock,
		SecretHash: active.SecretHash,
		Taker:      ledger.Identity(rec.Maker),
		Amount:     amount,
	})
	if err != nil {
		if fundingRejected(err) {
			if derr := b.store.DeleteCounterEscrow(rec.ID); derr != nil {
				b.log.Warn("Failed to forget rejected counter escrow", "swap_id", rec.ID, "error", derr)
			}
		}
		return nil, fmt.Errorf("failed to fund counter leg of %s: %w", rec.ID, err)
	}
	if err := b.store.SetCounterEscrowCreated(rec.ID, id); err != nil {
		return nil, fmt.Errorf("counter escrow %d of %s funded but not recorded: %w", id, rec.ID, err)
	}
	return &storage.CounterEscrow{
		SwapID:   rec.ID,
		Chain:    rec.CounterChain,
		Resolver: b.cfg.Identity.String(),
		EscrowID: id,
		State:    storage.CounterEscrowCreated,
	}, nil
}

// abandon marks a counter escrow that can never become a leg.
func (b *Bidder) abandon(ce *storage.CounterEscrow, reason string) {
	if err := b.store.SetCounterEscrowState(ce.SwapID, storage.CounterEscrowAbandoned, reason); err != nil {
		b.log.Warn("Failed to abandon counter escrow", "swap_id", ce.SwapID, "error", err)
		return
	}
	b.log.Warn("Counter escrow abandoned, cancelling after its rescue time",
		"swap_id", ce.SwapID,
		"chain", ce.Chain,
		"escrow_id", ce.EscrowID,
		"reason", reason,
	)
}

// sweep abandons created escrows whose swap moved on without them and
// cancels abandoned escrows past their rescue time.
func (b *Bidder) sweep(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tracked, err := b.store.ListCounterEscrows(storage.CounterEscrowCreated, storage.CounterEscrowAbandoned)
	if err != nil {
		return err
	}

	var errs []error
	for _, ce := range tracked {
		if ce.State == storage.CounterEscrowCreated {
			active, err := b.coordinator.GetSwap(ce.SwapID)
			switch {
			case errors.Is(err, ErrSwapNotFound):
				b.abandon(ce, "swap not found")
			case err != nil:
				errs = append(errs, err)
			case active.ResolverLeg != nil && active.ResolverLeg.Chain == ce.Chain && active.ResolverLeg.EscrowID == ce.EscrowID:
				if err := b.store.SetCounterEscrowState(ce.SwapID, storage.CounterEscrowRegistered, ""); err != nil {
					errs = append(errs, err)
				}
			case active.Record.State != storage.SwapStateSold:
				b.abandon(ce, fmt.Sprintf("swap is %s", active.Record.State))
			}
			continue
		}
		if err := b.cancelAbandoned(ctx, ce); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// cancelAbandoned refunds an abandoned counter escrow once it can be
// cancelled.
func (b *Bidder) cancelAbandoned(ctx context.Context, ce *storage.CounterEscrow) error {
	ch, err := b.coordinator.chains.Get(ce.Chain)
	if err != nil {
		return err
	}
	esc, err := ch.Escrow(ctx, ce.EscrowID)
	if err != nil {
		return err
	}
	if esc.State != escrow.StateOpen {
		return b.store.SetCounterEscrowState(ce.SwapID, storage.CounterEscrowClosed, fmt.Sprintf("%s on chain", esc.State))
	}
	now, err := ch.Now(ctx)
	if err != nil {
		return err
	}
	if now <= esc.RescueTime {
		return nil
	}
	if err := ch.Cancel(ctx, ce.EscrowID); err != nil && !errors.Is(err, escrow.ErrAlreadyClosed) {
		return fmt.Errorf("failed to cancel counter escrow %d on %s: %w", ce.EscrowID, ce.Chain, err)
	}
	b.log.Info("Abandoned counter escrow cancelled", "swap_id", ce.SwapID, "chain", ce.Chain, "escrow_id", ce.EscrowID)
	return b.store.SetCounterEscrowState(ce.SwapID, storage.CounterEscrowClosed, "cancelled")
}

// registrationFinal reports whether RegisterCounterLeg can never accept the
// escrow.
func registrationFinal(err error) bool {
	return errors.Is(err, ErrUnsafeTimelocks) ||
		errors.Is(err, ErrLegMismatch) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrSwapNotFound) ||
		errors.Is(err, escrow.ErrAlreadyClosed)
}

// fundingRejected reports whether CreateEscrow failed without moving funds.
func fundingRejected(err error) bool {
	return errors.Is(err, escrow.ErrInvalidParameter) ||
		errors.Is(err, escrow.ErrFundingFailed) ||
		errors.Is(err, escrow.ErrUnauthorized) ||
		errors.Is(err, chain.ErrNoSigner) ||
		errors.Is(err, chain.ErrAmountOverflow)
}
