package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestGetChain(t *testing.T) {
	tests := []struct {
		network NetworkType
		name    string
		kind    ChainKind
		chainID uint64
		ok      bool
	}{
		{Testnet, "sepolia", ChainKindEVM, 11155111, true},
		{Testnet, "local", ChainKindLocal, 0, true},
		{Mainnet, "ethereum", ChainKindEVM, 1, true},
		{Mainnet, "sepolia", "", 0, false},
		{Testnet, "bogus", "", 0, false},
	}

	for _, tt := range tests {
		c, ok := GetChain(tt.network, tt.name)
		if ok != tt.ok {
			t.Errorf("GetChain(%s, %s) ok = %v, want %v", tt.network, tt.name, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if c.Kind != tt.kind {
			t.Errorf("%s kind = %s, want %s", tt.name, c.Kind, tt.kind)
		}
		if c.ChainID != tt.chainID {
			t.Errorf("%s chainID = %d, want %d", tt.name, c.ChainID, tt.chainID)
		}
	}
}

func TestListChainsSorted(t *testing.T) {
	names := ListChains(Testnet)
	if len(names) != len(TestnetChains) {
		t.Fatalf("ListChains() returned %d names, want %d", len(names), len(TestnetChains))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Errorf("ListChains() not sorted: %v", names)
		}
	}
}

func TestChainNamesMatchKeys(t *testing.T) {
	for _, chains := range []map[string]Chain{MainnetChains, TestnetChains} {
		for key, c := range chains {
			if c.Name != key {
				t.Errorf("chain %q has Name %q", key, c.Name)
			}
			if c.Kind == ChainKindEVM && c.ChainID == 0 {
				t.Errorf("EVM chain %q has no chain ID", key)
			}
		}
	}
}

func TestParseNetworkType(t *testing.T) {
	if n, err := ParseNetworkType(""); err != nil || n != Testnet {
		t.Errorf("ParseNetworkType(\"\") = %v, %v; want testnet", n, err)
	}
	if n, err := ParseNetworkType("mainnet"); err != nil || n != Mainnet {
		t.Errorf("ParseNetworkType(mainnet) = %v, %v", n, err)
	}
	if _, err := ParseNetworkType("devnet"); err == nil {
		t.Error("ParseNetworkType(devnet) should fail")
	}
}

func TestDefaultTimelocksValid(t *testing.T) {
	for _, network := range []NetworkType{Mainnet, Testnet} {
		if err := DefaultTimelocks(network).Validate(); err != nil {
			t.Errorf("DefaultTimelocks(%s).Validate() = %v", network, err)
		}
	}
}

func TestTimelockValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TimelockConfig
		wantErr bool
	}{
		{"ok", TimelockConfig{Maker: 100, Resolver: 50, SafetyMargin: 10, WithdrawBuffer: 5}, false},
		{"maker equals resolver plus margin", TimelockConfig{Maker: 60, Resolver: 50, SafetyMargin: 10}, true},
		{"maker below resolver", TimelockConfig{Maker: 40, Resolver: 50}, true},
		{"zero resolver", TimelockConfig{Maker: 40}, true},
		{"negative margin", TimelockConfig{Maker: 100, Resolver: 50, SafetyMargin: -1}, true},
		{"buffer past resolver", TimelockConfig{Maker: 100, Resolver: 50, WithdrawBuffer: 50}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSafeRescueOrder(t *testing.T) {
	tests := []struct {
		maker, resolver, margin int64
		want                    bool
	}{
		{1000, 500, 100, true},
		{1000, 900, 100, false},
		{1000, 899, 100, true},
		{1000, 1000, 0, false},
		{500, 1000, 0, false},
	}
	for _, tt := range tests {
		if got := SafeRescueOrder(tt.maker, tt.resolver, tt.margin); got != tt.want {
			t.Errorf("SafeRescueOrder(%d, %d, %d) = %v, want %v", tt.maker, tt.resolver, tt.margin, got, tt.want)
		}
	}
}

func TestIsSafeToComplete(t *testing.T) {
	tests := []struct {
		now, rescue, margin int64
		want                bool
	}{
		{0, 100, 10, true},
		{89, 100, 10, true},
		{90, 100, 10, false},
		{100, 100, 0, false},
		{99, 100, 0, true},
		{150, 100, 10, false},
	}
	for _, tt := range tests {
		if got := IsSafeToComplete(tt.now, tt.rescue, tt.margin); got != tt.want {
			t.Errorf("IsSafeToComplete(%d, %d, %d) = %v, want %v", tt.now, tt.rescue, tt.margin, got, tt.want)
		}
	}
	if got := SecondsUntilRescue(120, 100); got != 0 {
		t.Errorf("SecondsUntilRescue past rescue = %d, want 0", got)
	}
	if got := SecondsUntilRescue(40, 100); got != 60 {
		t.Errorf("SecondsUntilRescue = %d, want 60", got)
	}
}

func TestAuctionConfigValidate(t *testing.T) {
	if err := DefaultAuctionConfig().Validate(); err != nil {
		t.Errorf("default auction config invalid: %v", err)
	}
	bad := AuctionConfig{StartPrice: 5, MinPrice: 5, Duration: 10}
	if err := bad.Validate(); err == nil {
		t.Error("Validate() accepted start == min")
	}
}

func TestBidMessage(t *testing.T) {
	if got := BidMessage(42); !bytes.Equal(got, []byte("crosslock:bid:42")) {
		t.Errorf("BidMessage(42) = %q", got)
	}
}

func TestSubmissionBackoff(t *testing.T) {
	cfg := DefaultSubmissionConfig()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{6, 320 * time.Second},
		{7, 10 * time.Minute},
		{50, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := cfg.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestEscrowRegistryAddresses(t *testing.T) {
	const chainID = 999_001
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	if IsEscrowRegistryDeployed(chainID) {
		t.Fatal("unregistered chain reported as deployed")
	}
	SetEscrowRegistry(chainID, addr)
	if got := GetEscrowRegistry(chainID); got != addr {
		t.Errorf("GetEscrowRegistry() = %s, want %s", got.Hex(), addr.Hex())
	}

	found := false
	for _, id := range ListDeployedChains() {
		if id == chainID {
			found = true
		}
	}
	if !found {
		t.Error("ListDeployedChains() missing registered chain")
	}

	c := GetEVMContracts(chainID)
	c.EscrowRegistry = common.Address{}
	if GetEscrowRegistry(chainID) != addr {
		t.Error("GetEVMContracts() returned a shared pointer")
	}

	RegisterEVMContracts(chainID, &EVMContractAddresses{})
	if IsEscrowRegistryDeployed(chainID) {
		t.Error("RegisterEVMContracts() did not replace the entry")
	}
}
