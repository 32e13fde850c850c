// Integration tests require a local Anvil node with the EscrowRegistry
// deployed and the deployer as admin:
//
//	TEST_CONTRACT_ADDRESS=0x... go test -v ./internal/contracts/escrow/... -run TestIntegration
package escrow

import (
	"bytes"
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// =============================================================================
// Unit Tests (no network required)
// =============================================================================

func TestABIParses(t *testing.T) {
	parsed, err := EscrowRegistryMetaData.GetAbi()
	if err != nil {
		t.Fatalf("GetAbi() error = %v", err)
	}
	for _, m := range []string{"create", "withdraw", "cancel", "assignTaker", "getEscrow", "escrowCount", "admin"} {
		if _, ok := parsed.Methods[m]; !ok {
			t.Errorf("ABI missing method %s", m)
		}
	}
	for _, e := range []string{"EscrowCreated", "Withdrawn", "Cancelled", "TakerAssigned"} {
		if _, ok := parsed.Events[e]; !ok {
			t.Errorf("ABI missing event %s", e)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateOpen, "open"},
		{StateWithdrawn, "withdrawn"},
		{StateCancelled, "cancelled"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestEscrowFromBinding(t *testing.T) {
	e := escrowFromBinding(4, EscrowRegistryEscrow{
		CreatedTime: 100,
		RescueTime:  160,
		Creator:     common.HexToAddress("0x01"),
		State:       uint8(StateOpen),
	})
	if e.ID != 4 || e.RescueTime != 160 {
		t.Errorf("escrow = %+v", e)
	}
	if e.Amount == nil || e.Amount.Sign() != 0 {
		t.Errorf("nil amount not normalized: %v", e.Amount)
	}
	if !e.IsOpen() || !e.TakerPending() {
		t.Error("escrow should be open with a pending taker")
	}
}

func newOfflineClient(t *testing.T, addr common.Address) *Client {
	t.Helper()
	contract, err := NewEscrowRegistry(addr, nil)
	if err != nil {
		t.Fatalf("NewEscrowRegistry() error = %v", err)
	}
	return &Client{contract: contract, contractAddress: addr}
}

func TestCreatedIDFromReceipt(t *testing.T) {
	addr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	c := newOfflineClient(t, addr)

	parsed, _ := EscrowRegistryMetaData.GetAbi()
	ev := parsed.Events["EscrowCreated"]
	data, err := ev.Inputs.NonIndexed().Pack(common.Address{}, big.NewInt(1e18), [32]byte{1}, uint64(5000))
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	creator := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	log := &types.Log{
		Address: addr,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(big.NewInt(7)),
			common.BytesToHash(creator.Bytes()),
		},
		Data: data,
	}

	// Logs from other contracts are skipped.
	other := *log
	other.Address = common.HexToAddress("0x02")

	id, err := c.CreatedID(&types.Receipt{Logs: []*types.Log{&other, log}})
	if err != nil {
		t.Fatalf("CreatedID() error = %v", err)
	}
	if id != 7 {
		t.Errorf("CreatedID() = %d, want 7", id)
	}

	if _, err := c.CreatedID(&types.Receipt{Logs: []*types.Log{&other}}); err != ErrEventNotFound {
		t.Errorf("CreatedID() without event error = %v, want ErrEventNotFound", err)
	}
}

func TestSecretFromReceipt(t *testing.T) {
	addr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	c := newOfflineClient(t, addr)

	parsed, _ := EscrowRegistryMetaData.GetAbi()
	ev := parsed.Events["Withdrawn"]
	secret := []byte("the preimage")
	data, err := ev.Inputs.NonIndexed().Pack(secret)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	log := &types.Log{
		Address: addr,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(big.NewInt(3)),
			common.BytesToHash(common.HexToAddress("0x03").Bytes()),
		},
		Data: data,
	}

	got, err := c.SecretFromReceipt(&types.Receipt{Logs: []*types.Log{log}})
	if err != nil {
		t.Fatalf("SecretFromReceipt() error = %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("SecretFromReceipt() = %q, want %q", got, secret)
	}
}

// =============================================================================
// Integration Tests (require Anvil node)
// =============================================================================

func TestIntegrationCreateAssignWithdraw(t *testing.T) {
	contractAddr := os.Getenv("TEST_CONTRACT_ADDRESS")
	if contractAddr == "" {
		t.Skip("TEST_CONTRACT_ADDRESS not set, skipping integration test")
	}
	rpcURL := os.Getenv("TEST_RPC_URL")
	if rpcURL == "" {
		rpcURL = "http://localhost:8545"
	}

	// Anvil default account 0.
	adminKey, _ := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	takerKey, _ := crypto.HexToECDSA("59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := NewClient(ctx, rpcURL, common.HexToAddress(contractAddr))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer client.Close()

	secret := []byte("integration-secret-0123456789abc")
	hash := crypto.Keccak256Hash(secret)

	tx, err := client.Create(ctx, adminKey, 3600, hash, common.Address{}, big.NewInt(1e15))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	receipt, err := client.WaitForTx(ctx, tx)
	if err != nil {
		t.Fatalf("WaitForTx() error = %v", err)
	}
	id, err := client.CreatedID(receipt)
	if err != nil {
		t.Fatalf("CreatedID() error = %v", err)
	}

	taker := crypto.PubkeyToAddress(takerKey.PublicKey)
	tx, err = client.AssignTaker(ctx, adminKey, id, taker)
	if err != nil {
		t.Fatalf("AssignTaker() error = %v", err)
	}
	if _, err := client.WaitForTx(ctx, tx); err != nil {
		t.Fatalf("WaitForTx() error = %v", err)
	}

	tx, err = client.Withdraw(ctx, takerKey, id, secret)
	if err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if _, err := client.WaitForTx(ctx, tx); err != nil {
		t.Fatalf("WaitForTx() error = %v", err)
	}

	e, err := client.GetEscrow(ctx, id)
	if err != nil {
		t.Fatalf("GetEscrow() error = %v", err)
	}
	if e.State != StateWithdrawn {
		t.Errorf("State = %s, want withdrawn", e.State)
	}
	if !bytes.Equal(e.Secret, secret) {
		t.Errorf("Secret = %x, want %x", e.Secret, secret)
	}
}
