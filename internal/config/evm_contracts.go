package config

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// EVMContractAddresses holds contract addresses for a specific EVM chain.
type EVMContractAddresses struct {
	// EscrowRegistry is the deployed escrow registry for swap legs.
	EscrowRegistry common.Address

	// Admin is the identity allowed to call assignTaker. Zero means the
	// relayer's own address.
	Admin common.Address
}

var (
	evmContractsMu sync.RWMutex

	// evmContractRegistry maps chainID -> contract addresses. Entries are
	// filled from config.yaml at startup.
	evmContractRegistry = map[uint64]*EVMContractAddresses{
		11155111: {}, // Sepolia
		97:       {}, // BSC testnet
		80002:    {}, // Polygon Amoy
		421614:   {}, // Arbitrum Sepolia
		84532:    {}, // Base Sepolia
	}
)

// GetEVMContracts returns a copy of the contract addresses for chainID, or
// nil if the chain is not registered.
func GetEVMContracts(chainID uint64) *EVMContractAddresses {
	evmContractsMu.RLock()
	defer evmContractsMu.RUnlock()

	c := evmContractRegistry[chainID]
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// GetEscrowRegistry returns the escrow registry address for chainID, or the
// zero address when none is deployed.
func GetEscrowRegistry(chainID uint64) common.Address {
	if c := GetEVMContracts(chainID); c != nil {
		return c.EscrowRegistry
	}
	return common.Address{}
}

// IsEscrowRegistryDeployed returns true if an escrow registry is known for chainID.
func IsEscrowRegistryDeployed(chainID uint64) bool {
	return GetEscrowRegistry(chainID) != (common.Address{})
}

// ListDeployedChains returns the chain IDs with a deployed escrow registry.
func ListDeployedChains() []uint64 {
	evmContractsMu.RLock()
	defer evmContractsMu.RUnlock()

	var chains []uint64
	for chainID, c := range evmContractRegistry {
		if c.EscrowRegistry != (common.Address{}) {
			chains = append(chains, chainID)
		}
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}

// RegisterEVMContracts registers or replaces the contract addresses for a chain.
func RegisterEVMContracts(chainID uint64, contracts *EVMContractAddresses) {
	evmContractsMu.Lock()
	defer evmContractsMu.Unlock()

	c := *contracts
	evmContractRegistry[chainID] = &c
}

// SetEscrowRegistry sets the escrow registry address for a chain, creating
// the entry if needed.
func SetEscrowRegistry(chainID uint64, address common.Address) {
	evmContractsMu.Lock()
	defer evmContractsMu.Unlock()

	if evmContractRegistry[chainID] == nil {
		evmContractRegistry[chainID] = &EVMContractAddresses{}
	}
	evmContractRegistry[chainID].EscrowRegistry = address
}
