package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/Klingon-tech/crosslock/internal/config"
	contract "github.com/Klingon-tech/crosslock/internal/contracts/escrow"
	"github.com/Klingon-tech/crosslock/internal/escrow"
	"github.com/Klingon-tech/crosslock/internal/hashlock"
	"github.com/Klingon-tech/crosslock/internal/ledger"
)

// RegistryClient is the contract client surface the EVM adapter needs.
// *contract.Client implements it.
type RegistryClient interface {
	ContractAddress() common.Address
	Create(ctx context.Context, key *ecdsa.PrivateKey, timelock uint64, secretHash [32]byte, taker common.Address, amount *big.Int) (*types.Transaction, error)
	Withdraw(ctx context.Context, key *ecdsa.PrivateKey, id uint64, secret []byte) (*types.Transaction, error)
	Cancel(ctx context.Context, key *ecdsa.PrivateKey, id uint64) (*types.Transaction, error)
	AssignTaker(ctx context.Context, key *ecdsa.PrivateKey, id uint64, taker common.Address) (*types.Transaction, error)
	GetEscrow(ctx context.Context, id uint64) (*contract.Escrow, error)
	LatestTime(ctx context.Context) (int64, error)
	WaitForTx(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	CreatedID(receipt *types.Receipt) (uint64, error)
	Close()
}

// EVMConfig configures an EVM chain.
type EVMConfig struct {
	Name string

	// RelayerKey signs assignTaker, withdraw and cancel submissions.
	RelayerKey *ecdsa.PrivateKey

	// TxTimeout bounds the wait for one transaction to be mined.
	TxTimeout time.Duration
}

// EVM drives the EscrowRegistry contract on one EVM chain.
type EVM struct {
	name      string
	client    RegistryClient
	relayer   *ecdsa.PrivateKey
	txTimeout time.Duration

	mu      sync.RWMutex
	signers map[common.Address]*ecdsa.PrivateKey
}

// NewEVM wraps client.
func NewEVM(cfg EVMConfig, client RegistryClient) (*EVM, error) {
	if cfg.RelayerKey == nil {
		return nil, errors.New("relayer key is required")
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 2 * time.Minute
	}
	e := &EVM{
		name:      cfg.Name,
		client:    client,
		relayer:   cfg.RelayerKey,
		txTimeout: cfg.TxTimeout,
		signers:   make(map[common.Address]*ecdsa.PrivateKey),
	}
	e.AddSigner(cfg.RelayerKey)
	return e, nil
}

// AddSigner lets the adapter create escrows funded by key's address.
func (e *EVM) AddSigner(key *ecdsa.PrivateKey) ledger.Identity {
	addr := crypto.PubkeyToAddress(key.PublicKey)
	e.mu.Lock()
	e.signers[addr] = key
	e.mu.Unlock()
	return ledger.EVMIdentity(addr)
}

// Relayer returns the relayer's identity on this chain.
func (e *EVM) Relayer() ledger.Identity {
	return ledger.EVMIdentity(crypto.PubkeyToAddress(e.relayer.PublicKey))
}

func (e *EVM) Name() string             { return e.name }
func (e *EVM) Kind() config.ChainKind   { return config.ChainKindEVM }
func (e *EVM) Address() ledger.Identity { return ledger.EVMIdentity(e.client.ContractAddress()) }

// Close closes the RPC connection.
func (e *EVM) Close() {
	e.client.Close()
}

// Now implements Chain with the latest block timestamp.
func (e *EVM) Now(ctx context.Context) (int64, error) {
	return e.client.LatestTime(ctx)
}

// CreateEscrow implements Chain. The creator must be a registered signer.
func (e *EVM) CreateEscrow(ctx context.Context, req CreateRequest) (uint64, error) {
	if req.Timelock <= 0 || req.Amount == 0 {
		return 0, fmt.Errorf("%w: timelock and amount must be positive", escrow.ErrInvalidParameter)
	}
	if !req.Creator.IsEVM() {
		return 0, fmt.Errorf("%w: creator %s is not an EVM address", escrow.ErrInvalidParameter, req.Creator)
	}
	var taker common.Address
	if !req.Taker.IsZero() {
		if !req.Taker.IsEVM() {
			return 0, fmt.Errorf("%w: taker %s is not an EVM address", escrow.ErrInvalidParameter, req.Taker)
		}
		taker = req.Taker.EVMAddress()
	}

	e.mu.RLock()
	key := e.signers[req.Creator.EVMAddress()]
	e.mu.RUnlock()
	if key == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoSigner, req.Creator)
	}

	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()

	amount := new(big.Int).SetUint64(req.Amount)
	tx, err := e.client.Create(ctx, key, uint64(req.Timelock), req.SecretHash.Bytes32(), taker, amount)
	if err != nil {
		return 0, mapRevert(err)
	}
	receipt, err := e.client.WaitForTx(ctx, tx)
	if err != nil {
		return 0, err
	}
	return e.client.CreatedID(receipt)
}

// Withdraw implements Chain.
func (e *EVM) Withdraw(ctx context.Context, id uint64, secret []byte) error {
	return e.submit(ctx, func(ctx context.Context) (*types.Transaction, error) {
		return e.client.Withdraw(ctx, e.relayer, id, secret)
	})
}

// Cancel implements Chain.
func (e *EVM) Cancel(ctx context.Context, id uint64) error {
	return e.submit(ctx, func(ctx context.Context) (*types.Transaction, error) {
		return e.client.Cancel(ctx, e.relayer, id)
	})
}

// AssignTaker implements Chain.
func (e *EVM) AssignTaker(ctx context.Context, id uint64, taker ledger.Identity) error {
	if !taker.IsEVM() {
		return fmt.Errorf("%w: taker %s is not an EVM address", escrow.ErrInvalidParameter, taker)
	}
	return e.submit(ctx, func(ctx context.Context) (*types.Transaction, error) {
		return e.client.AssignTaker(ctx, e.relayer, id, taker.EVMAddress())
	})
}

func (e *EVM) submit(ctx context.Context, send func(context.Context) (*types.Transaction, error)) error {
	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()

	tx, err := send(ctx)
	if err != nil {
		return mapRevert(err)
	}
	_, err = e.client.WaitForTx(ctx, tx)
	return err
}

// Escrow implements Chain.
func (e *EVM) Escrow(ctx context.Context, id uint64) (*Escrow, error) {
	ce, err := e.client.GetEscrow(ctx, id)
	if err != nil {
		return nil, mapRevert(err)
	}
	if ce.Creator == (common.Address{}) {
		return nil, escrow.ErrNotFound
	}

	amount, overflow := uint256.FromBig(ce.Amount)
	if overflow || !amount.IsUint64() {
		return nil, fmt.Errorf("%w: escrow %d holds %s", ErrAmountOverflow, id, ce.Amount)
	}

	out := &Escrow{
		Chain:       e.name,
		ID:          id,
		CreatedTime: ce.CreatedTime,
		RescueTime:  ce.RescueTime,
		Amount:      amount.Uint64(),
		Creator:     ledger.EVMIdentity(ce.Creator),
		SecretHash:  hashlock.Hash(ce.SecretHash),
		Secret:      hashlock.Secret(ce.Secret),
	}
	if !ce.TakerPending() {
		out.Taker = ledger.EVMIdentity(ce.Taker)
	}
	switch ce.State {
	case contract.StateOpen:
		out.State = escrow.StateOpen
	case contract.StateWithdrawn:
		out.State = escrow.StateWithdrawn
	case contract.StateCancelled:
		out.State = escrow.StateCancelled
	default:
		return nil, fmt.Errorf("escrow %d has unknown state %d", id, ce.State)
	}
	return out, nil
}

// revertErrors maps the contract's custom errors onto the escrow taxonomy.
var revertErrors = map[string]error{
	"AlreadyClosed":    escrow.ErrAlreadyClosed,
	"InvalidParameter": escrow.ErrInvalidParameter,
	"InvalidSecret":    escrow.ErrInvalidSecret,
	"NotFound":         escrow.ErrNotFound,
	"TakerAssigned":    escrow.ErrTakerAssigned,
	"TakerPending":     escrow.ErrTakerPending,
	"TooEarly":         escrow.ErrTooEarly,
	"Unauthorized":     escrow.ErrUnauthorized,
	"WindowExpired":    escrow.ErrWindowExpired,
}

// mapRevert decodes a custom-error revert carried by an RPC error.
func mapRevert(err error) error {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return err
	}
	hexData, ok := de.ErrorData().(string)
	if !ok {
		return err
	}
	data, decErr := hexutil.Decode(hexData)
	if decErr != nil || len(data) < 4 {
		return err
	}
	parsed, abiErr := contract.EscrowRegistryMetaData.GetAbi()
	if abiErr != nil {
		return err
	}
	for name, abiError := range parsed.Errors {
		if !bytes.Equal(abiError.ID[:4], data[:4]) {
			continue
		}
		if sentinel, ok := revertErrors[name]; ok {
			return fmt.Errorf("%w: %v", sentinel, err)
		}
	}
	return err
}
