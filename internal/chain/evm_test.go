package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	contract "github.com/Klingon-tech/crosslock/internal/contracts/escrow"
	"github.com/Klingon-tech/crosslock/internal/escrow"
	"github.com/Klingon-tech/crosslock/internal/hashlock"
	"github.com/Klingon-tech/crosslock/internal/ledger"
)

type fakeRegistry struct {
	addr    common.Address
	now     int64
	escrows map[uint64]*contract.Escrow
	sendErr error

	created  []*big.Int
	assigned map[uint64]common.Address
	signer   common.Address
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		addr:     common.HexToAddress("0x00000000000000000000000000000000000000ee"),
		escrows:  make(map[uint64]*contract.Escrow),
		assigned: make(map[uint64]common.Address),
	}
}

func (f *fakeRegistry) ContractAddress() common.Address { return f.addr }
func (f *fakeRegistry) Close()                          {}

func (f *fakeRegistry) tx() *types.Transaction {
	return types.NewTx(&types.LegacyTx{Nonce: uint64(len(f.created))})
}

func (f *fakeRegistry) Create(_ context.Context, key *ecdsa.PrivateKey, timelock uint64, hash [32]byte, taker common.Address, amount *big.Int) (*types.Transaction, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.signer = crypto.PubkeyToAddress(key.PublicKey)
	id := uint64(len(f.created))
	f.created = append(f.created, amount)
	f.escrows[id] = &contract.Escrow{
		ID: id, CreatedTime: f.now, RescueTime: f.now + int64(timelock), Amount: amount,
		Creator: f.signer, Taker: taker, SecretHash: hash,
	}
	return f.tx(), nil
}

func (f *fakeRegistry) Withdraw(_ context.Context, _ *ecdsa.PrivateKey, _ uint64, _ []byte) (*types.Transaction, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.tx(), nil
}

func (f *fakeRegistry) Cancel(_ context.Context, _ *ecdsa.PrivateKey, _ uint64) (*types.Transaction, error) {
	return nil, f.sendErr
}

func (f *fakeRegistry) AssignTaker(_ context.Context, key *ecdsa.PrivateKey, id uint64, taker common.Address) (*types.Transaction, error) {
	f.signer = crypto.PubkeyToAddress(key.PublicKey)
	f.assigned[id] = taker
	return f.tx(), nil
}

func (f *fakeRegistry) GetEscrow(_ context.Context, id uint64) (*contract.Escrow, error) {
	if e, ok := f.escrows[id]; ok {
		return e, nil
	}
	return &contract.Escrow{ID: id, Amount: new(big.Int)}, nil
}

func (f *fakeRegistry) LatestTime(context.Context) (int64, error) { return f.now, nil }

func (f *fakeRegistry) WaitForTx(context.Context, *types.Transaction) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (f *fakeRegistry) CreatedID(*types.Receipt) (uint64, error) {
	return uint64(len(f.created) - 1), nil
}

// revertError mimics the JSON-RPC error carrying revert data.
type revertError struct{ data string }

func (e *revertError) Error() string          { return "execution reverted" }
func (e *revertError) ErrorData() interface{} { return e.data }

func newEVM(t *testing.T, reg *fakeRegistry) (*EVM, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewEVM(EVMConfig{Name: "sepolia", RelayerKey: key}, reg)
	if err != nil {
		t.Fatalf("NewEVM() error = %v", err)
	}
	return e, key
}

func TestEVMCreateRequiresSigner(t *testing.T) {
	reg := newFakeRegistry()
	e, _ := newEVM(t, reg)
	_, hash, _ := hashlock.GenerateSecret()

	stranger, _ := crypto.GenerateKey()
	req := CreateRequest{
		Creator:    ledger.EVMIdentity(crypto.PubkeyToAddress(stranger.PublicKey)),
		Timelock:   3600,
		SecretHash: hash,
		Amount:     1e15,
	}
	if _, err := e.CreateEscrow(context.Background(), req); !errors.Is(err, ErrNoSigner) {
		t.Fatalf("CreateEscrow() error = %v, want ErrNoSigner", err)
	}

	resolver := e.AddSigner(stranger)
	if resolver != req.Creator {
		t.Errorf("AddSigner() = %s, want %s", resolver, req.Creator)
	}
	id, err := e.CreateEscrow(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateEscrow() error = %v", err)
	}
	if reg.signer != crypto.PubkeyToAddress(stranger.PublicKey) {
		t.Error("escrow was not signed by its creator")
	}

	got, err := e.Escrow(context.Background(), id)
	if err != nil {
		t.Fatalf("Escrow() error = %v", err)
	}
	if got.Amount != 1e15 || got.Creator != req.Creator || !got.TakerPending() {
		t.Errorf("Escrow() = %+v", got)
	}
	if got.State != escrow.StateOpen {
		t.Errorf("State = %s, want open", got.State)
	}
}

func TestEVMRejectsNonEVMIdentities(t *testing.T) {
	e, _ := newEVM(t, newFakeRegistry())
	_, hash, _ := hashlock.GenerateSecret()

	_, err := e.CreateEscrow(context.Background(), CreateRequest{Creator: "maker", Timelock: 1, SecretHash: hash, Amount: 1})
	if !errors.Is(err, escrow.ErrInvalidParameter) {
		t.Errorf("CreateEscrow() error = %v, want ErrInvalidParameter", err)
	}
	if err := e.AssignTaker(context.Background(), 0, "resolver"); !errors.Is(err, escrow.ErrInvalidParameter) {
		t.Errorf("AssignTaker() error = %v, want ErrInvalidParameter", err)
	}
}

func TestEVMAssignTakerSignsAsRelayer(t *testing.T) {
	reg := newFakeRegistry()
	e, key := newEVM(t, reg)
	taker := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	if err := e.AssignTaker(context.Background(), 3, ledger.EVMIdentity(taker)); err != nil {
		t.Fatalf("AssignTaker() error = %v", err)
	}
	if reg.assigned[3] != taker {
		t.Errorf("assigned taker = %s, want %s", reg.assigned[3].Hex(), taker.Hex())
	}
	if reg.signer != crypto.PubkeyToAddress(key.PublicKey) {
		t.Error("assignTaker not signed by the relayer")
	}
	if e.Relayer() != ledger.EVMIdentity(reg.signer) {
		t.Errorf("Relayer() = %s", e.Relayer())
	}
}

func TestEVMUnknownEscrow(t *testing.T) {
	e, _ := newEVM(t, newFakeRegistry())
	if _, err := e.Escrow(context.Background(), 99); !errors.Is(err, escrow.ErrNotFound) {
		t.Errorf("Escrow() error = %v, want ErrNotFound", err)
	}
}

func TestEVMAmountOverflow(t *testing.T) {
	reg := newFakeRegistry()
	e, _ := newEVM(t, reg)
	huge, _ := new(big.Int).SetString("100000000000000000000000", 10)
	reg.escrows[0] = &contract.Escrow{Creator: common.HexToAddress("0x01"), Amount: huge}

	if _, err := e.Escrow(context.Background(), 0); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("Escrow() error = %v, want ErrAmountOverflow", err)
	}
}

func TestMapRevert(t *testing.T) {
	selector := func(sig string) string {
		return hexutil.Encode(crypto.Keccak256([]byte(sig))[:4])
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"invalid secret", &revertError{selector("InvalidSecret()")}, escrow.ErrInvalidSecret},
		{"window expired", &revertError{selector("WindowExpired()")}, escrow.ErrWindowExpired},
		{"too early", &revertError{selector("TooEarly()") + "00"}, escrow.ErrTooEarly},
		{"unauthorized", &revertError{selector("Unauthorized()")}, escrow.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapRevert(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("mapRevert() = %v, want %v", got, tt.want)
			}
		})
	}

	plain := errors.New("connection refused")
	if got := mapRevert(plain); got != plain {
		t.Errorf("mapRevert(plain) = %v, want unchanged", got)
	}
	unknown := &revertError{"0xdeadbeef"}
	if got := mapRevert(unknown); got != error(unknown) {
		t.Errorf("mapRevert(unknown selector) = %v, want unchanged", got)
	}
}

func TestEVMWithdrawMapsRevert(t *testing.T) {
	reg := newFakeRegistry()
	e, _ := newEVM(t, reg)
	reg.sendErr = &revertError{hexutil.Encode(crypto.Keccak256([]byte("AlreadyClosed()"))[:4])}

	if err := e.Withdraw(context.Background(), 0, []byte("s")); !errors.Is(err, escrow.ErrAlreadyClosed) {
		t.Errorf("Withdraw() error = %v, want ErrAlreadyClosed", err)
	}
}
