// Package swap implements the relayer side of a cross-chain swap: a Dutch
// auction picks the resolver, two hash-locked escrow legs carry the assets,
// and the relayer drives every leg to withdrawn or cancelled from persisted
// checkpoints.
//
// Swap flow:
//
//	pending -> auction_open -> sold -> counter_funded -> secret_revealed -> completed
//	                                                                     \-> refunded | failed
//
// The maker leg lives on chain A and pays the resolver. The resolver leg
// lives on chain B and pays the maker. Both are locked by the same secret
// hash; the maker leg must rescue strictly later than the resolver leg.
package swap

import (
	"errors"
	"time"

	"github.com/Klingon-tech/crosslock/internal/hashlock"
	"github.com/Klingon-tech/crosslock/internal/storage"
)

// Coordinator errors
var (
	ErrSwapNotFound    = errors.New("swap not found")
	ErrSwapExists      = errors.New("swap already exists for escrow")
	ErrInvalidState    = errors.New("invalid swap state")
	ErrLegMismatch     = errors.New("escrow does not match swap")
	ErrUnsafeTimelocks = errors.New("unsafe timelock ordering")
	ErrLegsNotFunded   = errors.New("swap legs not funded")
	ErrSameChain       = errors.New("counter chain must differ from maker chain")
)

// Event types emitted to handlers and stored in the swap audit log.
const (
	EventSwapOpened       = "swap_opened"
	EventAuctionSold      = "auction_sold"
	EventTakerAssigned    = "taker_assigned"
	EventLegFunded        = "leg_funded"
	EventSecretRevealed   = "secret_revealed"
	EventLegWithdrawn     = "leg_withdrawn"
	EventLegCancelled     = "leg_cancelled"
	EventSwapCompleted    = "swap_completed"
	EventSwapRefunded     = "swap_refunded"
	EventSwapFailed       = "swap_failed"
	EventSubmissionFailed = "submission_failed"
)

// SwapEvent represents an event that occurred during a swap.
type SwapEvent struct {
	SwapID    string      `json:"swap_id"`
	EventType string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventHandler is called when swap events occur.
type EventHandler func(event SwapEvent)

// OpenRequest opens a swap over an existing maker escrow. Zero auction
// fields fall back to the configured defaults.
type OpenRequest struct {
	MakerChain   string        `json:"maker_chain"`
	EscrowID     uint64        `json:"escrow_id"`
	SecretHash   hashlock.Hash `json:"secret_hash"`
	CounterChain string        `json:"counter_chain"`

	StartPrice uint64 `json:"start_price,omitempty"`
	MinPrice   uint64 `json:"min_price,omitempty"`
	Duration   int64  `json:"duration,omitempty"`
	Curve      string `json:"curve,omitempty"`
}

// ActiveSwap holds the runtime view of a swap that has not settled.
type ActiveSwap struct {
	Record      *storage.SwapRecord `json:"swap"`
	MakerLeg    *storage.SwapLeg    `json:"maker_leg"`
	ResolverLeg *storage.SwapLeg    `json:"resolver_leg,omitempty"`
	SecretHash  hashlock.Hash       `json:"secret_hash"`
}

// Leg returns the leg with role, or nil.
func (a *ActiveSwap) Leg(role storage.LegRole) *storage.SwapLeg {
	switch role {
	case storage.LegRoleMaker:
		return a.MakerLeg
	case storage.LegRoleResolver:
		return a.ResolverLeg
	}
	return nil
}

// Legs returns the legs recorded so far, maker first.
func (a *ActiveSwap) Legs() []*storage.SwapLeg {
	legs := []*storage.SwapLeg{a.MakerLeg}
	if a.ResolverLeg != nil {
		legs = append(legs, a.ResolverLeg)
	}
	return legs
}

// clone returns a deep copy safe to hand out of the coordinator lock.
func (a *ActiveSwap) clone() *ActiveSwap {
	out := &ActiveSwap{SecretHash: a.SecretHash}
	rec := *a.Record
	out.Record = &rec
	if a.MakerLeg != nil {
		leg := *a.MakerLeg
		out.MakerLeg = &leg
	}
	if a.ResolverLeg != nil {
		leg := *a.ResolverLeg
		out.ResolverLeg = &leg
	}
	return out
}
