// Package chain adapts the ledgers swap legs live on to one interface the
// relayer drives: the in-process local ledger and EVM chains running the
// EscrowRegistry contract.
package chain

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Klingon-tech/crosslock/internal/config"
	"github.com/Klingon-tech/crosslock/internal/escrow"
	"github.com/Klingon-tech/crosslock/internal/hashlock"
	"github.com/Klingon-tech/crosslock/internal/ledger"
)

var (
	ErrUnknownChain   = errors.New("unknown chain")
	ErrNoSigner       = errors.New("no signing key for identity")
	ErrAmountOverflow = errors.New("amount exceeds 64 bits")
)

// Escrow is a chain-neutral view of one escrow.
type Escrow struct {
	Chain       string          `json:"chain"`
	ID          uint64          `json:"id"`
	CreatedTime int64           `json:"created_time"`
	RescueTime  int64           `json:"rescue_time"`
	Amount      uint64          `json:"amount"`
	Creator     ledger.Identity `json:"creator"`
	Taker       ledger.Identity `json:"taker,omitempty"` // empty while pending
	SecretHash  hashlock.Hash   `json:"secret_hash"`
	State       escrow.State    `json:"state"`
	Secret      hashlock.Secret `json:"secret,omitempty"`
}

// TakerPending reports whether no taker has been assigned.
func (e *Escrow) TakerPending() bool {
	return e.Taker.IsZero()
}

// CreateRequest opens an escrow funded by Creator.
type CreateRequest struct {
	Creator    ledger.Identity
	Timelock   int64
	SecretHash hashlock.Hash
	Taker      ledger.Identity // empty leaves the taker pending
	Amount     uint64
}

// Chain is one ledger holding escrow legs. Errors use the escrow package
// taxonomy (escrow.ErrInvalidSecret, escrow.ErrTooEarly, ...) so callers can
// branch with errors.Is regardless of the chain kind.
type Chain interface {
	Name() string
	Kind() config.ChainKind

	// Address is the escrow registry account on this chain.
	Address() ledger.Identity

	// Now returns the ledger time escrow windows are compared against.
	Now(ctx context.Context) (int64, error)

	CreateEscrow(ctx context.Context, req CreateRequest) (uint64, error)
	Withdraw(ctx context.Context, id uint64, secret []byte) error
	Cancel(ctx context.Context, id uint64) error
	AssignTaker(ctx context.Context, id uint64, taker ledger.Identity) error
	Escrow(ctx context.Context, id uint64) (*Escrow, error)
}

// Set holds the chains of a node, indexed by name.
type Set struct {
	mu     sync.RWMutex
	chains map[string]Chain
}

// NewSet creates a set from chains.
func NewSet(chains ...Chain) *Set {
	s := &Set{chains: make(map[string]Chain)}
	for _, c := range chains {
		s.chains[c.Name()] = c
	}
	return s
}

// Register adds or replaces a chain.
func (s *Set) Register(c Chain) {
	s.mu.Lock()
	s.chains[c.Name()] = c
	s.mu.Unlock()
}

// Get returns the chain called name.
func (s *Set) Get(name string) (Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chains[name]
	if !ok {
		return nil, ErrUnknownChain
	}
	return c, nil
}

// List returns the chain names in sorted order.
func (s *Set) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.chains))
	for name := range s.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes chains holding network connections.
func (s *Set) Close() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chains {
		if closer, ok := c.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}
