// Package escrow provides a Go client for the EscrowRegistry contract that
// holds the EVM legs of a swap. The client wraps the generated binding with
// context-aware calls and typed results.
package escrow

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// State mirrors the contract's escrow state enum.
type State uint8

const (
	StateOpen      State = 0
	StateWithdrawn State = 1
	StateCancelled State = 2
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

// ErrEventNotFound is returned when a receipt carries no matching event.
var ErrEventNotFound = errors.New("event not found in receipt")

// Escrow is an on-chain escrow with parsed fields.
type Escrow struct {
	ID          uint64
	CreatedTime int64
	RescueTime  int64
	Amount      *big.Int
	Creator     common.Address
	Taker       common.Address // zero while pending
	SecretHash  [32]byte
	State       State
	Secret      []byte // set once withdrawn
}

// IsOpen returns true if the escrow still holds its deposit.
func (e *Escrow) IsOpen() bool {
	return e.State == StateOpen
}

// TakerPending returns true if no taker has been assigned yet.
func (e *Escrow) TakerPending() bool {
	return e.Taker == (common.Address{})
}

func escrowFromBinding(id uint64, b EscrowRegistryEscrow) *Escrow {
	amount := b.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return &Escrow{
		ID:          id,
		CreatedTime: int64(b.CreatedTime),
		RescueTime:  int64(b.RescueTime),
		Amount:      amount,
		Creator:     b.Creator,
		Taker:       b.Taker,
		SecretHash:  b.SecretHash,
		State:       State(b.State),
		Secret:      b.Secret,
	}
}

// Backend is the subset of ethclient.Client used by the client.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// Client is a wrapper around the EscrowRegistry contract.
type Client struct {
	backend         Backend
	contract        *EscrowRegistry
	contractAddress common.Address
	chainID         *big.Int
}

// NewClient dials rpcURL and binds the registry at contractAddress.
func NewClient(ctx context.Context, rpcURL string, contractAddress common.Address) (*Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	c, err := NewClientWithBackend(ctx, client, contractAddress)
	if err != nil {
		client.Close()
		return nil, err
	}
	return c, nil
}

// NewClientWithBackend binds the registry over an existing backend.
func NewClientWithBackend(ctx context.Context, backend Backend, contractAddress common.Address) (*Client, error) {
	contract, err := NewEscrowRegistry(contractAddress, backend)
	if err != nil {
		return nil, fmt.Errorf("failed to bind contract: %w", err)
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	return &Client{
		backend:         backend,
		contract:        contract,
		contractAddress: contractAddress,
		chainID:         chainID,
	}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	c.backend.Close()
}

// ChainID returns the chain ID.
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// ContractAddress returns the registry address.
func (c *Client) ContractAddress() common.Address {
	return c.contractAddress
}

// =============================================================================
// Mutations
// =============================================================================

// Create opens an escrow funded with amount wei. A zero taker leaves the
// taker pending.
func (c *Client) Create(
	ctx context.Context,
	privateKey *ecdsa.PrivateKey,
	timelock uint64,
	secretHash [32]byte,
	taker common.Address,
	amount *big.Int,
) (*types.Transaction, error) {
	auth, err := c.newTransactor(ctx, privateKey)
	if err != nil {
		return nil, err
	}
	auth.Value = amount

	return c.contract.Create(auth, timelock, secretHash, taker)
}

// Withdraw releases escrow id to its taker by presenting the secret.
func (c *Client) Withdraw(ctx context.Context, privateKey *ecdsa.PrivateKey, id uint64, secret []byte) (*types.Transaction, error) {
	auth, err := c.newTransactor(ctx, privateKey)
	if err != nil {
		return nil, err
	}
	return c.contract.Withdraw(auth, secret, id)
}

// Cancel refunds escrow id to its creator after the rescue time.
func (c *Client) Cancel(ctx context.Context, privateKey *ecdsa.PrivateKey, id uint64) (*types.Transaction, error) {
	auth, err := c.newTransactor(ctx, privateKey)
	if err != nil {
		return nil, err
	}
	return c.contract.Cancel(auth, id)
}

// AssignTaker binds the taker of a pending escrow. Only the registry admin
// may call it.
func (c *Client) AssignTaker(ctx context.Context, privateKey *ecdsa.PrivateKey, id uint64, taker common.Address) (*types.Transaction, error) {
	auth, err := c.newTransactor(ctx, privateKey)
	if err != nil {
		return nil, err
	}
	return c.contract.AssignTaker(auth, id, taker)
}

// =============================================================================
// View Functions
// =============================================================================

// GetEscrow returns escrow id.
func (c *Client) GetEscrow(ctx context.Context, id uint64) (*Escrow, error) {
	opts := &bind.CallOpts{Context: ctx}
	result, err := c.contract.GetEscrow(opts, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get escrow %d: %w", id, err)
	}
	return escrowFromBinding(id, result), nil
}

// EscrowCount returns the number of escrows ever created.
func (c *Client) EscrowCount(ctx context.Context) (uint64, error) {
	return c.contract.EscrowCount(&bind.CallOpts{Context: ctx})
}

// Admin returns the identity allowed to assign takers.
func (c *Client) Admin(ctx context.Context) (common.Address, error) {
	return c.contract.Admin(&bind.CallOpts{Context: ctx})
}

// LatestTime returns the timestamp of the latest block, the clock the
// contract compares rescue times against.
func (c *Client) LatestTime(ctx context.Context) (int64, error) {
	header, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest header: %w", err)
	}
	return int64(header.Time), nil
}

// =============================================================================
// Events
// =============================================================================

// WithdrawnEvent represents a Withdrawn event. It carries the revealed secret.
type WithdrawnEvent struct {
	ID       uint64
	Taker    common.Address
	Secret   []byte
	TxHash   common.Hash
	BlockNum uint64
}

// WatchWithdrawn watches for Withdrawn events on ids.
func (c *Client) WatchWithdrawn(ctx context.Context, ids []uint64) (<-chan *WithdrawnEvent, error) {
	ch := make(chan *EscrowRegistryWithdrawn, 10)

	sub, err := c.contract.WatchWithdrawn(&bind.WatchOpts{Context: ctx}, ch, ids, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to watch Withdrawn: %w", err)
	}

	outCh := make(chan *WithdrawnEvent, 10)
	go func() {
		defer close(outCh)
		defer sub.Unsubscribe()

		for {
			select {
			case ev := <-ch:
				select {
				case outCh <- withdrawnFromBinding(ev):
				case <-ctx.Done():
					return
				}
			case <-sub.Err():
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return outCh, nil
}

// GetWithdrawnEvents queries historical Withdrawn events.
func (c *Client) GetWithdrawnEvents(ctx context.Context, fromBlock, toBlock uint64, ids []uint64) ([]*WithdrawnEvent, error) {
	opts := &bind.FilterOpts{
		Start:   fromBlock,
		End:     &toBlock,
		Context: ctx,
	}

	iter, err := c.contract.FilterWithdrawn(opts, ids, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to filter Withdrawn: %w", err)
	}
	defer iter.Close()

	var events []*WithdrawnEvent
	for iter.Next() {
		events = append(events, withdrawnFromBinding(iter.Event))
	}
	return events, iter.Error()
}

func withdrawnFromBinding(ev *EscrowRegistryWithdrawn) *WithdrawnEvent {
	return &WithdrawnEvent{
		ID:       ev.Id,
		Taker:    ev.Taker,
		Secret:   ev.Secret,
		TxHash:   ev.Raw.TxHash,
		BlockNum: ev.Raw.BlockNumber,
	}
}

// CreatedID extracts the escrow id from the EscrowCreated log of a create receipt.
func (c *Client) CreatedID(receipt *types.Receipt) (uint64, error) {
	for _, log := range receipt.Logs {
		if log.Address != c.contractAddress {
			continue
		}
		ev, err := c.contract.ParseEscrowCreated(*log)
		if err != nil {
			continue
		}
		return ev.Id, nil
	}
	return 0, ErrEventNotFound
}

// SecretFromReceipt extracts the secret revealed by a withdraw receipt.
func (c *Client) SecretFromReceipt(receipt *types.Receipt) ([]byte, error) {
	for _, log := range receipt.Logs {
		if log.Address != c.contractAddress {
			continue
		}
		ev, err := c.contract.ParseWithdrawn(*log)
		if err != nil {
			continue
		}
		return ev.Secret, nil
	}
	return nil, ErrEventNotFound
}

// =============================================================================
// Transaction Helpers
// =============================================================================

// WaitForTx waits for a transaction to be mined and returns the receipt. A
// reverted transaction is an error.
func (c *Client) WaitForTx(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}

// WaitForTxWithTimeout waits for a transaction with a timeout.
func (c *Client) WaitForTxWithTimeout(ctx context.Context, tx *types.Transaction, timeout time.Duration) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.WaitForTx(ctx, tx)
}

func (c *Client) newTransactor(ctx context.Context, privateKey *ecdsa.PrivateKey) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx
	return auth, nil
}
