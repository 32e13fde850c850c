package swap

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/crosslock/internal/storage"
)

func TestBidderWaitsForPrice(t *testing.T) {
	env := newTestEnv(t)
	active := env.open(env.makerEscrow(7200))

	bidder, err := NewBidder(env.coord, BidderConfig{Identity: resolverID, MaxPrice: 1500})
	if err != nil {
		t.Fatalf("NewBidder() error = %v", err)
	}

	funded, err := bidder.Step(env.ctx)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(funded) != 0 {
		t.Fatalf("Step() at start price funded %v", funded)
	}

	env.clock.Advance(120)
	funded, err = bidder.Step(env.ctx)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(funded) != 1 || funded[0] != active.Record.ID {
		t.Fatalf("Step() funded %v, want [%s]", funded, active.Record.ID)
	}

	got, err := env.coord.GetSwap(active.Record.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Record.State != storage.SwapStateCounterFunded {
		t.Errorf("state = %s, want counter_funded", got.Record.State)
	}
	if got.Record.Winner != string(resolverID) || got.ResolverLeg.Amount != 1000 {
		t.Errorf("winner = %s amount = %d", got.Record.Winner, got.ResolverLeg.Amount)
	}
	if bal := env.chainB.Bank().BalanceUint64(resolverID); bal != 4000 {
		t.Errorf("resolver balance = %d, want 4000", bal)
	}

	// Nothing left to do on the next pass.
	if funded, _ := bidder.Step(env.ctx); len(funded) != 0 {
		t.Errorf("second Step() funded %v", funded)
	}
}

func TestBidderSkipsUnsafeAuctions(t *testing.T) {
	env := newTestEnv(t)
	env.open(env.makerEscrow(7200))

	// A counter leg of 7000s could not rescue a safety margin before the
	// maker leg.
	bidder, err := NewBidder(env.coord, BidderConfig{Identity: resolverID, MaxPrice: 5000, Timelock: 7000})
	if err != nil {
		t.Fatal(err)
	}
	funded, err := bidder.Step(env.ctx)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(funded) != 0 {
		t.Errorf("Step() funded %v, want none", funded)
	}
}

func TestNewBidderValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := NewBidder(env.coord, BidderConfig{MaxPrice: 1}); err == nil {
		t.Error("NewBidder() without identity succeeded")
	}
	if _, err := NewBidder(env.coord, BidderConfig{Identity: resolverID}); err == nil {
		t.Error("NewBidder() without max price succeeded")
	}
}

func TestBidderResumesFundedEscrowAfterRestart(t *testing.T) {
	env := newTestEnv(t)
	active := env.sold()
	swapID := active.Record.ID

	// The previous process funded the counter escrow and stopped before
	// registering it.
	if err := env.store.BeginCounterEscrow(swapID, "chain-b", string(resolverID)); err != nil {
		t.Fatal(err)
	}
	counterID := env.counterEscrow(3600, 1000)
	if err := env.store.SetCounterEscrowCreated(swapID, counterID); err != nil {
		t.Fatal(err)
	}

	bidder, err := NewBidder(env.coord, BidderConfig{Identity: resolverID, MaxPrice: 1500})
	if err != nil {
		t.Fatal(err)
	}
	funded, err := bidder.Step(env.ctx)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(funded) != 1 || funded[0] != swapID {
		t.Fatalf("Step() funded %v, want [%s]", funded, swapID)
	}

	got, err := env.coord.GetSwap(swapID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ResolverLeg == nil || got.ResolverLeg.EscrowID != counterID {
		t.Errorf("resolver leg = %+v, want escrow %d", got.ResolverLeg, counterID)
	}
	if n := env.chainB.Registry().Count(); n != 1 {
		t.Errorf("counter escrows on chain B = %d, want 1", n)
	}
	if bal := env.chainB.Bank().BalanceUint64(resolverID); bal != 4000 {
		t.Errorf("resolver balance = %d, want 4000", bal)
	}
	ce, err := env.store.GetCounterEscrow(swapID)
	if err != nil {
		t.Fatal(err)
	}
	if ce.State != storage.CounterEscrowRegistered {
		t.Errorf("counter escrow state = %s, want registered", ce.State)
	}
}

func TestBidderStopsOnInterruptedFunding(t *testing.T) {
	env := newTestEnv(t)
	active := env.sold()

	// Stopped between recording the intent and learning the escrow id.
	if err := env.store.BeginCounterEscrow(active.Record.ID, "chain-b", string(resolverID)); err != nil {
		t.Fatal(err)
	}

	bidder, err := NewBidder(env.coord, BidderConfig{Identity: resolverID, MaxPrice: 1500})
	if err != nil {
		t.Fatal(err)
	}
	funded, err := bidder.Step(env.ctx)
	if err == nil {
		t.Error("Step() with an interrupted funding succeeded")
	}
	if len(funded) != 0 {
		t.Errorf("Step() funded %v, want none", funded)
	}
	if n := env.chainB.Registry().Count(); n != 0 {
		t.Errorf("counter escrows on chain B = %d, want 0", n)
	}
	if bal := env.chainB.Bank().BalanceUint64(resolverID); bal != 5000 {
		t.Errorf("resolver balance = %d, want 5000", bal)
	}
}

func TestBidderCancelsRejectedEscrow(t *testing.T) {
	env := newTestEnv(t)
	active := env.sold()
	swapID := active.Record.ID

	// A 7000s counter leg rescues within the safety margin of the maker
	// leg, so registration is refused for good.
	bidder, err := NewBidder(env.coord, BidderConfig{Identity: resolverID, MaxPrice: 1500, Timelock: 7000})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bidder.Step(env.ctx); !errors.Is(err, ErrUnsafeTimelocks) {
		t.Fatalf("Step() error = %v, want ErrUnsafeTimelocks", err)
	}

	ce, err := env.store.GetCounterEscrow(swapID)
	if err != nil {
		t.Fatal(err)
	}
	if ce.State != storage.CounterEscrowAbandoned {
		t.Fatalf("counter escrow state = %s, want abandoned", ce.State)
	}
	if bal := env.chainB.Bank().BalanceUint64(resolverID); bal != 4000 {
		t.Errorf("resolver balance after funding = %d, want 4000", bal)
	}

	// Later passes neither fund again nor cancel before the rescue time.
	if _, err := bidder.Step(env.ctx); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if n := env.chainB.Registry().Count(); n != 1 {
		t.Errorf("counter escrows on chain B = %d, want 1", n)
	}

	esc, err := env.chainB.Escrow(env.ctx, ce.EscrowID)
	if err != nil {
		t.Fatal(err)
	}
	env.clock.Set(esc.RescueTime + 1)
	if _, err := bidder.Step(env.ctx); err != nil {
		t.Fatalf("Step() after rescue time error = %v", err)
	}
	if bal := env.chainB.Bank().BalanceUint64(resolverID); bal != 5000 {
		t.Errorf("resolver balance after cancel = %d, want 5000", bal)
	}
	ce, err = env.store.GetCounterEscrow(swapID)
	if err != nil {
		t.Fatal(err)
	}
	if ce.State != storage.CounterEscrowClosed {
		t.Errorf("counter escrow state = %s, want closed", ce.State)
	}
}
