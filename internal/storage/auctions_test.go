package storage

import (
	"testing"

	"github.com/Klingon-tech/crosslock/internal/auction"
	"github.com/Klingon-tech/crosslock/internal/ledger"
)

func TestAuctionJournalRoundTrip(t *testing.T) {
	store, cleanup := setupTestStorage(t)
	defer cleanup()

	relayer := ledger.Identity("relayer")
	clock := ledger.NewManualClock(1000)
	reg, err := auction.NewRegistry(auction.Config{Relayer: relayer, Clock: clock, Journal: store})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	params := auction.Params{StartPrice: 2000, MinPrice: 1000, Duration: 100, EscrowID: 5, EscrowAppID: "sepolia", Curve: auction.CurveLinear}
	for i := 0; i < 2; i++ {
		if _, err := reg.CreateAuction(relayer, params); err != nil {
			t.Fatalf("CreateAuction() error = %v", err)
		}
	}
	clock.Advance(10)
	if _, err := reg.Bid("resolver", 1); err != nil {
		t.Fatalf("Bid() error = %v", err)
	}

	loaded, err := store.LoadAuctions()
	if err != nil {
		t.Fatalf("LoadAuctions() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("LoadAuctions() returned %d, want 2", len(loaded))
	}
	if loaded[0].Sold {
		t.Error("auction 0 should be unsold")
	}
	if loaded[0].Taker != relayer {
		t.Errorf("auction 0 taker = %s, want %s", loaded[0].Taker, relayer)
	}
	sold := loaded[1]
	if !sold.Sold || sold.Taker != "resolver" || sold.SoldPrice != 1900 || sold.SoldAt != 1010 {
		t.Errorf("auction 1 = %+v", sold)
	}
	if sold.Curve != auction.CurveLinear || sold.EscrowAppID != "sepolia" || sold.EscrowID != 5 {
		t.Errorf("auction 1 params = curve %s app %s escrow %d", sold.Curve, sold.EscrowAppID, sold.EscrowID)
	}

	restored, err := auction.NewRegistry(auction.Config{Relayer: relayer, Clock: clock, Journal: store})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if err := restored.Restore(loaded); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored.Count() != 2 {
		t.Errorf("restored Count() = %d, want 2", restored.Count())
	}
	if _, err := restored.Bid("other", 1); err == nil {
		t.Error("restored sold auction accepted a second bid")
	}
}

func TestSwapEvents(t *testing.T) {
	store, cleanup := setupTestStorage(t)
	defer cleanup()

	if err := store.AddSwapEvent("swap-1", "swap_opened", map[string]uint64{"auction_id": 2}); err != nil {
		t.Fatalf("AddSwapEvent() error = %v", err)
	}
	if err := store.AddSwapEvent("swap-1", "auction_sold", nil); err != nil {
		t.Fatalf("AddSwapEvent() error = %v", err)
	}
	if err := store.AddSwapEvent("swap-2", "swap_opened", nil); err != nil {
		t.Fatalf("AddSwapEvent() error = %v", err)
	}

	events, err := store.ListSwapEvents("swap-1")
	if err != nil {
		t.Fatalf("ListSwapEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("ListSwapEvents() returned %d, want 2", len(events))
	}
	if events[0].Type != "swap_opened" || events[1].Type != "auction_sold" {
		t.Errorf("event order = %s, %s", events[0].Type, events[1].Type)
	}
	if string(events[0].Data) != `{"auction_id":2}` {
		t.Errorf("event data = %s", events[0].Data)
	}
	if events[1].Data != nil {
		t.Errorf("nil data stored as %s", events[1].Data)
	}
}
