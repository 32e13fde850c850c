package chain

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/crosslock/internal/config"
	"github.com/Klingon-tech/crosslock/internal/escrow"
	"github.com/Klingon-tech/crosslock/internal/ledger"
)

// LocalConfig configures a Local chain.
type LocalConfig struct {
	Name string

	// AppID numbers the registry; its account is the AVM app address.
	AppID uint64

	// Admin may assign takers. It is the relayer identity.
	Admin ledger.Identity

	Clock ledger.Clock
}

// Local is the in-process ledger: a Bank for balances and one escrow
// Registry, both driven by the same clock.
type Local struct {
	name     string
	admin    ledger.Identity
	bank     *ledger.Bank
	registry *escrow.Registry
	clock    ledger.Clock
}

// NewLocal creates an empty local ledger.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Name == "" {
		cfg.Name = "local"
	}
	if cfg.Clock == nil {
		cfg.Clock = ledger.SystemClock{}
	}
	bank := ledger.NewBank()
	reg, err := escrow.NewRegistry(escrow.Config{
		Address: ledger.AVMAppAddress(cfg.AppID),
		Admin:   cfg.Admin,
		Clock:   cfg.Clock,
		Funder:  bank,
		Payer:   bank,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create escrow registry: %w", err)
	}
	return &Local{
		name:     cfg.Name,
		admin:    cfg.Admin,
		bank:     bank,
		registry: reg,
		clock:    cfg.Clock,
	}, nil
}

func (l *Local) Name() string               { return l.name }
func (l *Local) Kind() config.ChainKind     { return config.ChainKindLocal }
func (l *Local) Address() ledger.Identity   { return l.registry.Address() }
func (l *Local) Bank() *ledger.Bank         { return l.bank }
func (l *Local) Registry() *escrow.Registry { return l.registry }

// Now implements Chain.
func (l *Local) Now(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.clock.Now(), nil
}

// CreateEscrow implements Chain. The local ledger has no signatures: the
// creator's deposit is debited from its bank balance.
func (l *Local) CreateEscrow(ctx context.Context, req CreateRequest) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	taker := escrow.PendingTaker()
	if !req.Taker.IsZero() {
		taker = escrow.AssignedTo(req.Taker)
	}
	return l.registry.Create(req.Creator, req.Timelock, req.SecretHash, taker, ledger.FundingTransfer{
		Sender:   req.Creator,
		Receiver: l.registry.Address(),
		Amount:   req.Amount,
	})
}

// Withdraw implements Chain.
func (l *Local) Withdraw(ctx context.Context, id uint64, secret []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := l.registry.Withdraw(secret, id)
	return err
}

// Cancel implements Chain.
func (l *Local) Cancel(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := l.registry.Cancel(id)
	return err
}

// AssignTaker implements Chain. The call is made as the relayer.
func (l *Local) AssignTaker(ctx context.Context, id uint64, taker ledger.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := l.registry.AssignTaker(l.admin, id, taker)
	return err
}

// Escrow implements Chain.
func (l *Local) Escrow(ctx context.Context, id uint64) (*Escrow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inst, err := l.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return &Escrow{
		Chain:       l.name,
		ID:          inst.ID,
		CreatedTime: inst.CreatedTime,
		RescueTime:  inst.RescueTime,
		Amount:      inst.Amount,
		Creator:     inst.Creator,
		Taker:       inst.Taker.Identity(),
		SecretHash:  inst.SecretHash,
		State:       inst.State,
		Secret:      inst.Secret,
	}, nil
}
