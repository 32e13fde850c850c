package escrow

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Klingon-tech/crosslock/internal/hashlock"
	"github.com/Klingon-tech/crosslock/internal/ledger"
)

// Config configures a Registry.
type Config struct {
	// Address is the registry's own account. Deposits must be sent to it and
	// payouts are made from it.
	Address ledger.Identity

	// Admin is the privileged identity allowed to assign pending takers.
	Admin ledger.Identity

	Clock  ledger.Clock
	Funder ledger.Funder
	Payer  ledger.Payer
}

// Registry is the append-only collection of escrows of one contract.
// Operations are applied one at a time, like transactions on the host ledger.
type Registry struct {
	mu        sync.Mutex
	cfg       Config
	instances []Instance
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Address.IsZero() {
		return nil, errors.New("registry address is required")
	}
	if cfg.Funder == nil || cfg.Payer == nil {
		return nil, errors.New("registry needs a funder and a payer")
	}
	if cfg.Clock == nil {
		cfg.Clock = ledger.SystemClock{}
	}
	return &Registry{cfg: cfg}, nil
}

// Address returns the registry's account.
func (r *Registry) Address() ledger.Identity {
	return r.cfg.Address
}

// Admin returns the privileged identity.
func (r *Registry) Admin() ledger.Identity {
	return r.cfg.Admin
}

// Now returns the registry's clock reading.
func (r *Registry) Now() int64 {
	return r.cfg.Clock.Now()
}

// Create opens a new escrow funded by deposit and returns its id. The deposit
// must be sent by the caller to this registry's address.
func (r *Registry) Create(caller ledger.Identity, timelock int64, secretHash hashlock.Hash, taker Taker, deposit ledger.FundingTransfer) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.cfg.Clock.Now()

	switch {
	case timelock <= 0:
		return 0, fmt.Errorf("%w: timelock must be positive", ErrInvalidParameter)
	case timelock > math.MaxInt64-now:
		return 0, fmt.Errorf("%w: timelock overflows rescue time", ErrInvalidParameter)
	case deposit.Amount == 0:
		return 0, fmt.Errorf("%w: deposit amount must be positive", ErrInvalidParameter)
	case deposit.Receiver != r.cfg.Address:
		return 0, fmt.Errorf("%w: deposit receiver %s is not the registry", ErrInvalidParameter, deposit.Receiver)
	case deposit.Sender != caller || caller.IsZero():
		return 0, fmt.Errorf("%w: deposit sender %s is not the caller", ErrInvalidParameter, deposit.Sender)
	case secretHash.IsZero():
		return 0, fmt.Errorf("%w: secret hash is zero", ErrInvalidParameter)
	}

	if err := r.cfg.Funder.Collect(deposit); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFundingFailed, err)
	}

	id := uint64(len(r.instances))
	r.instances = append(r.instances, Instance{
		ID:          id,
		CreatedTime: now,
		RescueTime:  now + timelock,
		Amount:      deposit.Amount,
		Creator:     caller,
		Taker:       taker,
		SecretHash:  secretHash,
		State:       StateOpen,
	})
	return id, nil
}

// Withdraw pays the escrow to its taker. Anyone holding the secret may
// submit it; the funds always go to the taker.
func (r *Registry) Withdraw(secret []byte, id uint64) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, err := r.open(id)
	if err != nil {
		return nil, err
	}
	if !hashlock.Verify(secret, inst.SecretHash) {
		return nil, ErrInvalidSecret
	}
	now := r.cfg.Clock.Now()
	if now >= inst.RescueTime {
		return nil, ErrWindowExpired
	}
	if inst.Taker.IsPending() {
		return nil, ErrTakerPending
	}

	if err := r.cfg.Payer.Pay(r.cfg.Address, inst.Taker.Identity(), inst.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	inst.State = StateWithdrawn
	inst.ClosedAt = now
	inst.Secret = hashlock.Secret(secret).Clone()
	out := inst.clone()
	return &out, nil
}

// Cancel refunds the escrow to its creator once the rescue time has passed.
func (r *Registry) Cancel(id uint64) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, err := r.open(id)
	if err != nil {
		return nil, err
	}
	now := r.cfg.Clock.Now()
	if now <= inst.RescueTime {
		return nil, ErrTooEarly
	}

	if err := r.cfg.Payer.Pay(r.cfg.Address, inst.Creator, inst.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	inst.State = StateCancelled
	inst.ClosedAt = now
	out := inst.clone()
	return &out, nil
}

// AssignTaker binds a pending escrow to its counterparty. Only the admin may
// call it, only once, and only while the escrow can still be withdrawn.
func (r *Registry) AssignTaker(caller ledger.Identity, id uint64, taker ledger.Identity) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller.IsZero() || caller != r.cfg.Admin {
		return nil, ErrUnauthorized
	}
	if taker.IsZero() {
		return nil, fmt.Errorf("%w: taker is empty", ErrInvalidParameter)
	}
	inst, err := r.open(id)
	if err != nil {
		return nil, err
	}
	if !inst.Taker.IsPending() {
		return nil, ErrTakerAssigned
	}
	if r.cfg.Clock.Now() >= inst.RescueTime {
		return nil, ErrWindowExpired
	}

	inst.Taker = AssignedTo(taker)
	out := inst.clone()
	return &out, nil
}

// Get returns a copy of escrow id.
func (r *Registry) Get(id uint64) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id >= uint64(len(r.instances)) {
		return nil, ErrNotFound
	}
	out := r.instances[id].clone()
	return &out, nil
}

// Count returns the number of escrows ever created.
func (r *Registry) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.instances))
}

// List returns up to limit escrows starting at offset.
func (r *Registry) List(offset, limit uint64) []Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := uint64(len(r.instances))
	if offset >= n {
		return nil
	}
	end := n
	if limit > 0 && limit < n-offset {
		end = offset + limit
	}
	out := make([]Instance, 0, end-offset)
	for i := offset; i < end; i++ {
		out = append(out, r.instances[i].clone())
	}
	return out
}

// open returns a pointer into the arena for an Open escrow. Caller holds r.mu.
func (r *Registry) open(id uint64) (*Instance, error) {
	if id >= uint64(len(r.instances)) {
		return nil, ErrNotFound
	}
	inst := &r.instances[id]
	if inst.State != StateOpen {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClosed, inst.State)
	}
	return inst, nil
}
