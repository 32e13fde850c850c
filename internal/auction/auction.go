// Package auction implements the Dutch auction that selects the resolver of
// a swap, and the registry holding every auction created by the relayer.
package auction

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/Klingon-tech/crosslock/internal/ledger"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("auction not found")
	ErrAlreadySold      = errors.New("auction already sold")
	ErrNotWhitelisted   = errors.New("bidder not whitelisted")
)

// Curve selects how the price decays between start and min.
type Curve uint8

const (
	// CurveStep evaluates start - (start-min) * (elapsed / duration) with
	// truncating division: the price holds at start for the whole duration
	// and drops to min once it ends.
	CurveStep Curve = iota

	// CurveLinear evaluates start - (start-min) * elapsed / duration, with the
	// product computed in 256 bits.
	CurveLinear
)

func (c Curve) String() string {
	switch c {
	case CurveStep:
		return "step"
	case CurveLinear:
		return "linear"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Curve) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Curve) UnmarshalText(text []byte) error {
	v, err := ParseCurve(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseCurve parses a curve name. The empty string selects CurveStep.
func ParseCurve(s string) (Curve, error) {
	switch s {
	case "", "step":
		return CurveStep, nil
	case "linear":
		return CurveLinear, nil
	}
	return 0, fmt.Errorf("%w: unknown curve %q", ErrInvalidParameter, s)
}

// Params are the creation parameters of an auction.
type Params struct {
	StartPrice  uint64 `json:"start_price"`
	MinPrice    uint64 `json:"min_price"`
	Duration    int64  `json:"duration"`
	EscrowID    uint64 `json:"escrow_id"`
	EscrowAppID string `json:"escrow_app_id"`
	Curve       Curve  `json:"curve"`
}

// Validate checks the numeric bounds of p.
func (p *Params) Validate() error {
	switch {
	case p.StartPrice == 0:
		return fmt.Errorf("%w: start price must be positive", ErrInvalidParameter)
	case p.MinPrice == 0:
		return fmt.Errorf("%w: min price must be positive", ErrInvalidParameter)
	case p.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidParameter)
	case p.StartPrice <= p.MinPrice:
		return fmt.Errorf("%w: start price %d must exceed min price %d", ErrInvalidParameter, p.StartPrice, p.MinPrice)
	case p.Curve > CurveLinear:
		return fmt.Errorf("%w: unknown curve %d", ErrInvalidParameter, p.Curve)
	}
	return nil
}

// Instance is one auction.
type Instance struct {
	ID          uint64          `json:"id"`
	EscrowID    uint64          `json:"escrow_id"`
	EscrowAppID string          `json:"escrow_app_id"`
	StartPrice  uint64          `json:"start_price"`
	MinPrice    uint64          `json:"min_price"`
	Duration    int64           `json:"duration"`
	Curve       Curve           `json:"curve"`
	Creator     ledger.Identity `json:"creator"`
	StartTime   int64           `json:"start_time"`

	// Taker is the creator until a bid is accepted.
	Taker     ledger.Identity `json:"taker"`
	Sold      bool            `json:"sold"`
	SoldPrice uint64          `json:"sold_price"`
	SoldAt    int64           `json:"sold_at,omitempty"`
}

// PriceAt returns the price of the auction at ledger time now. The price
// never rises, never goes below MinPrice, and is MinPrice exactly once the
// duration has elapsed.
func (a *Instance) PriceAt(now int64) uint64 {
	elapsed := now - a.StartTime
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= a.Duration || a.StartPrice <= a.MinPrice {
		return a.MinPrice
	}

	spread := a.StartPrice - a.MinPrice
	switch a.Curve {
	case CurveLinear:
		drop := new(uint256.Int).Mul(uint256.NewInt(spread), uint256.NewInt(uint64(elapsed)))
		drop.Div(drop, uint256.NewInt(uint64(a.Duration)))
		return a.StartPrice - drop.Uint64()
	default:
		steps := uint64(elapsed / a.Duration)
		return a.StartPrice - spread*steps
	}
}

// EndTime is the ledger time at which the price reaches MinPrice.
func (a *Instance) EndTime() int64 {
	return a.StartTime + a.Duration
}
