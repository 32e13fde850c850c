package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance overflow")
	ErrZeroAmount        = errors.New("amount must be positive")
)

// Bank is an in-memory account ledger. It serves as both the funding-transfer
// and outbound-payment collaborator for the local chain adapter. Balances are
// 256-bit so that crediting can never silently wrap.
type Bank struct {
	mu       sync.Mutex
	balances map[Identity]*uint256.Int
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{balances: make(map[Identity]*uint256.Int)}
}

// Credit mints amount into id. Used for faucets and test setup.
func (b *Bank) Credit(id Identity, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.add(id, uint256.NewInt(amount))
}

// Balance returns the balance of id.
func (b *Bank) Balance(id Identity) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[id]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

// BalanceUint64 returns the balance of id, saturating at the uint64 maximum.
func (b *Bank) BalanceUint64(id Identity) uint64 {
	bal := b.Balance(id)
	if !bal.IsUint64() {
		return ^uint64(0)
	}
	return bal.Uint64()
}

// Transfer moves amount from one account to another atomically.
func (b *Bank) Transfer(from, to Identity, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	v := uint256.NewInt(amount)
	src, ok := b.balances[from]
	if !ok || src.Lt(v) {
		return fmt.Errorf("%w: %s has %s, needs %d", ErrInsufficientFunds, from.Short(), balanceString(src), amount)
	}
	if from == to {
		return nil
	}
	dst := b.balances[to]
	if dst != nil {
		if _, overflow := new(uint256.Int).AddOverflow(dst, v); overflow {
			return ErrBalanceOverflow
		}
	}

	src.Sub(src, v)
	return b.add(to, v)
}

// Collect implements Funder.
func (b *Bank) Collect(deposit FundingTransfer) error {
	return b.Transfer(deposit.Sender, deposit.Receiver, deposit.Amount)
}

// Pay implements Payer.
func (b *Bank) Pay(from, to Identity, amount uint64) error {
	return b.Transfer(from, to, amount)
}

// Accounts returns all identities holding a balance, sorted.
func (b *Bank) Accounts() []Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]Identity, 0, len(b.balances))
	for id := range b.balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// add credits v to id. Caller holds b.mu.
func (b *Bank) add(id Identity, v *uint256.Int) error {
	cur, ok := b.balances[id]
	if !ok {
		b.balances[id] = new(uint256.Int).Set(v)
		return nil
	}
	sum, overflow := new(uint256.Int).AddOverflow(cur, v)
	if overflow {
		return ErrBalanceOverflow
	}
	cur.Set(sum)
	return nil
}

func balanceString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
