// Package escrow implements the hashed-timelock escrow state machine and the
// append-only registry that owns every instance of one deployed contract.
//
// An escrow is Open from creation until exactly one of withdraw or cancel
// completes. Withdraw needs the hash preimage and must happen strictly before
// the rescue time; cancel is only valid strictly after it. At the rescue time
// itself neither path succeeds.
package escrow

import (
	"fmt"

	"github.com/Klingon-tech/crosslock/internal/hashlock"
	"github.com/Klingon-tech/crosslock/internal/ledger"
)

// State is the lifecycle state of an escrow.
type State uint8

const (
	StateOpen State = iota
	StateWithdrawn
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateWithdrawn:
		return "withdrawn"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	v, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseState parses the text form of a State.
func ParseState(s string) (State, error) {
	switch s {
	case "open":
		return StateOpen, nil
	case "withdrawn":
		return StateWithdrawn, nil
	case "cancelled":
		return StateCancelled, nil
	}
	return 0, fmt.Errorf("unknown escrow state %q", s)
}

// Taker is either Pending or assigned to an identity. Once assigned it never
// changes.
type Taker struct {
	id ledger.Identity
}

// PendingTaker returns the placeholder taker.
func PendingTaker() Taker {
	return Taker{}
}

// AssignedTo returns a taker bound to id.
func AssignedTo(id ledger.Identity) Taker {
	return Taker{id: id}
}

// IsPending reports whether no taker has been assigned.
func (t Taker) IsPending() bool {
	return t.id.IsZero()
}

// Identity returns the assigned identity, or "" while pending.
func (t Taker) Identity() ledger.Identity {
	return t.id
}

func (t Taker) String() string {
	if t.IsPending() {
		return "pending"
	}
	return string(t.id)
}

// MarshalText implements encoding.TextMarshaler.
func (t Taker) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Taker) UnmarshalText(text []byte) error {
	switch s := string(text); s {
	case "", "pending":
		*t = PendingTaker()
	default:
		*t = AssignedTo(ledger.Identity(s))
	}
	return nil
}

// Instance is one escrow.
type Instance struct {
	ID          uint64          `json:"id"`
	CreatedTime int64           `json:"created_time"`
	RescueTime  int64           `json:"rescue_time"`
	Amount      uint64          `json:"amount"`
	Creator     ledger.Identity `json:"creator"`
	Taker       Taker           `json:"taker"`
	SecretHash  hashlock.Hash   `json:"secret_hash"`
	State       State           `json:"state"`

	// ClosedAt is the ledger time of the terminal transition.
	ClosedAt int64 `json:"closed_at,omitempty"`

	// Secret is the preimage presented by the successful withdraw. It is
	// public once the withdraw executes.
	Secret hashlock.Secret `json:"secret,omitempty"`
}

// Active reports whether the escrow still holds its deposit.
func (i *Instance) Active() bool {
	return i.State == StateOpen
}

// CanWithdraw reports whether a withdraw with a valid secret would pass the
// time and state guards at now.
func (i *Instance) CanWithdraw(now int64) bool {
	return i.State == StateOpen && !i.Taker.IsPending() && now < i.RescueTime
}

// CanCancel reports whether cancel would succeed at now.
func (i *Instance) CanCancel(now int64) bool {
	return i.State == StateOpen && now > i.RescueTime
}

func (i *Instance) clone() Instance {
	out := *i
	if i.Secret != nil {
		out.Secret = i.Secret.Clone()
	}
	return out
}
