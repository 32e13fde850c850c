package auction

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/crosslock/internal/ledger"
)

// Journal persists auction state. RecordAuction is called with the new state
// before it is committed; an error aborts the operation.
type Journal interface {
	RecordAuction(inst *Instance) error
}

// Config configures a Registry.
type Config struct {
	// Relayer is the only identity allowed to create auctions.
	Relayer ledger.Identity

	Clock     ledger.Clock
	Journal   Journal
	Whitelist *Whitelist
}

// Registry is the append-only collection of auctions.
type Registry struct {
	mu        sync.Mutex
	cfg       Config
	instances []Instance
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Relayer.IsZero() {
		return nil, errors.New("relayer identity is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = ledger.SystemClock{}
	}
	return &Registry{cfg: cfg}, nil
}

// Relayer returns the identity allowed to create auctions.
func (r *Registry) Relayer() ledger.Identity {
	return r.cfg.Relayer
}

// Whitelist returns the bidder whitelist, if any.
func (r *Registry) Whitelist() *Whitelist {
	return r.cfg.Whitelist
}

// Now returns the registry clock reading.
func (r *Registry) Now() int64 {
	return r.cfg.Clock.Now()
}

// Restore replaces the arena with previously journaled auctions. Ids must be
// dense and start at 0.
func (r *Registry) Restore(instances []Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.instances) > 0 {
		return errors.New("registry already populated")
	}
	for i := range instances {
		if instances[i].ID != uint64(i) {
			return fmt.Errorf("auction %d restored at index %d", instances[i].ID, i)
		}
		p := Params{
			StartPrice: instances[i].StartPrice,
			MinPrice:   instances[i].MinPrice,
			Duration:   instances[i].Duration,
			Curve:      instances[i].Curve,
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("auction %d: %w", i, err)
		}
	}
	r.instances = append([]Instance(nil), instances...)
	return nil
}

// CreateAuction opens an auction for escrow p.EscrowID and returns its id.
func (r *Registry) CreateAuction(caller ledger.Identity, p Params) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.cfg.Relayer {
		return 0, ErrUnauthorized
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}

	id := uint64(len(r.instances))
	inst := Instance{
		ID:          id,
		EscrowID:    p.EscrowID,
		EscrowAppID: p.EscrowAppID,
		StartPrice:  p.StartPrice,
		MinPrice:    p.MinPrice,
		Duration:    p.Duration,
		Curve:       p.Curve,
		Creator:     caller,
		StartTime:   r.cfg.Clock.Now(),
		Taker:       caller,
	}
	if err := r.record(&inst); err != nil {
		return 0, err
	}
	r.instances = append(r.instances, inst)
	return id, nil
}

// CurrentPrice returns the price of auction id at the current ledger time.
func (r *Registry) CurrentPrice(id uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id >= uint64(len(r.instances)) {
		return 0, ErrNotFound
	}
	return r.instances[id].PriceAt(r.cfg.Clock.Now()), nil
}

// Bid accepts the caller as taker at the current price. Only the first bid
// is accepted.
func (r *Registry) Bid(caller ledger.Identity, id uint64) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id >= uint64(len(r.instances)) {
		return nil, ErrNotFound
	}
	if caller.IsZero() {
		return nil, ErrUnauthorized
	}
	cur := &r.instances[id]
	if cur.Sold {
		return nil, ErrAlreadySold
	}
	if !r.cfg.Whitelist.Allows(caller) {
		return nil, ErrNotWhitelisted
	}

	now := r.cfg.Clock.Now()
	next := *cur
	next.Taker = caller
	next.Sold = true
	next.SoldPrice = cur.PriceAt(now)
	next.SoldAt = now

	if err := r.record(&next); err != nil {
		return nil, err
	}
	*cur = next
	out := next
	return &out, nil
}

// Get returns a copy of auction id.
func (r *Registry) Get(id uint64) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id >= uint64(len(r.instances)) {
		return nil, ErrNotFound
	}
	out := r.instances[id]
	return &out, nil
}

// Count returns the number of auctions ever created.
func (r *Registry) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.instances))
}

// List returns up to limit auctions starting at offset.
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
	return append([]Instance(nil), r.instances[offset:end]...)
}

func (r *Registry) record(inst *Instance) error {
	if r.cfg.Journal == nil {
		return nil
	}
	if err := r.cfg.Journal.RecordAuction(inst); err != nil {
		return fmt.Errorf("failed to journal auction %d: %w", inst.ID, err)
	}
	return nil
}
