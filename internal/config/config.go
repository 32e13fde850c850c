// Package config holds the protocol constants of the crosslock relayer.
// Chains, timelock defaults, auction defaults and submission pacing are
// defined here and nowhere else.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// =============================================================================
// Network Types
// =============================================================================

// NetworkType represents mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// ParseNetworkType parses a network name. Unknown names are an error.
func ParseNetworkType(s string) (NetworkType, error) {
	switch NetworkType(s) {
	case Mainnet, Testnet:
		return NetworkType(s), nil
	case "":
		return Testnet, nil
	}
	return "", fmt.Errorf("unknown network type %q", s)
}

// =============================================================================
// Chain Definitions
// =============================================================================

// ChainKind is the family of ledger an escrow leg lives on.
type ChainKind string

const (
	// ChainKindEVM is an EVM chain running the EscrowRegistry contract.
	ChainKindEVM ChainKind = "evm"

	// ChainKindLocal is the in-process ledger. It stands in for the non-EVM
	// leg and keeps AVM-style app and account addresses.
	ChainKindLocal ChainKind = "local"
)

// Chain describes one ledger a swap leg can be placed on.
type Chain struct {
	Name        string    // e.g. "sepolia"
	Kind        ChainKind // chain family
	Symbol      string    // native asset symbol
	Decimals    uint8     // decimal places of the native asset
	ChainID     uint64    // EVM chain ID (0 for local)
	ExplorerURL string    // block explorer, empty when there is none

	// AvgBlockTimeSeconds is used to size poll intervals.
	AvgBlockTimeSeconds uint32

	// MinConfirmations before a funded escrow is trusted.
	MinConfirmations uint32
}

// MainnetChains defines the mainnet ledgers.
var MainnetChains = map[string]Chain{
	"ethereum": {Name: "ethereum", Kind: ChainKindEVM, Symbol: "ETH", Decimals: 18, ChainID: 1, ExplorerURL: "https://etherscan.io", AvgBlockTimeSeconds: 12, MinConfirmations: 3},
	"bsc":      {Name: "bsc", Kind: ChainKindEVM, Symbol: "BNB", Decimals: 18, ChainID: 56, ExplorerURL: "https://bscscan.com", AvgBlockTimeSeconds: 3, MinConfirmations: 15},
	"polygon":  {Name: "polygon", Kind: ChainKindEVM, Symbol: "POL", Decimals: 18, ChainID: 137, ExplorerURL: "https://polygonscan.com", AvgBlockTimeSeconds: 2, MinConfirmations: 64},
	"arbitrum": {Name: "arbitrum", Kind: ChainKindEVM, Symbol: "ETH", Decimals: 18, ChainID: 42161, ExplorerURL: "https://arbiscan.io", AvgBlockTimeSeconds: 1, MinConfirmations: 1},
	"base":     {Name: "base", Kind: ChainKindEVM, Symbol: "ETH", Decimals: 18, ChainID: 8453, ExplorerURL: "https://basescan.org", AvgBlockTimeSeconds: 2, MinConfirmations: 1},
	"local":    {Name: "local", Kind: ChainKindLocal, Symbol: "ALGO", Decimals: 6, AvgBlockTimeSeconds: 3},
	"local-b":  {Name: "local-b", Kind: ChainKindLocal, Symbol: "USDC", Decimals: 6, AvgBlockTimeSeconds: 3},
}

// TestnetChains defines the testnet ledgers.
var TestnetChains = map[string]Chain{
	"sepolia":          {Name: "sepolia", Kind: ChainKindEVM, Symbol: "ETH", Decimals: 18, ChainID: 11155111, ExplorerURL: "https://sepolia.etherscan.io", AvgBlockTimeSeconds: 12, MinConfirmations: 1},
	"bsc-testnet":      {Name: "bsc-testnet", Kind: ChainKindEVM, Symbol: "tBNB", Decimals: 18, ChainID: 97, ExplorerURL: "https://testnet.bscscan.com", AvgBlockTimeSeconds: 3, MinConfirmations: 1},
	"polygon-amoy":     {Name: "polygon-amoy", Kind: ChainKindEVM, Symbol: "POL", Decimals: 18, ChainID: 80002, ExplorerURL: "https://amoy.polygonscan.com", AvgBlockTimeSeconds: 2, MinConfirmations: 1},
	"arbitrum-sepolia": {Name: "arbitrum-sepolia", Kind: ChainKindEVM, Symbol: "ETH", Decimals: 18, ChainID: 421614, ExplorerURL: "https://sepolia.arbiscan.io", AvgBlockTimeSeconds: 1},
	"base-sepolia":     {Name: "base-sepolia", Kind: ChainKindEVM, Symbol: "ETH", Decimals: 18, ChainID: 84532, ExplorerURL: "https://sepolia.basescan.org", AvgBlockTimeSeconds: 2},
	"local":            {Name: "local", Kind: ChainKindLocal, Symbol: "ALGO", Decimals: 6, AvgBlockTimeSeconds: 3},
	"local-b":          {Name: "local-b", Kind: ChainKindLocal, Symbol: "USDC", Decimals: 6, AvgBlockTimeSeconds: 3},
}

// GetChain returns the chain definition for name on network.
func GetChain(network NetworkType, name string) (Chain, bool) {
	if network == Mainnet {
		c, ok := MainnetChains[name]
		return c, ok
	}
	c, ok := TestnetChains[name]
	return c, ok
}

// ListChains returns the chain names of network in sorted order.
func ListChains(network NetworkType) []string {
	chains := TestnetChains
	if network == Mainnet {
		chains = MainnetChains
	}
	names := make([]string, 0, len(chains))
	for name := range chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// Timelock Configuration
// =============================================================================

// TimelockConfig holds the escrow timelocks used by the relayer, in ledger
// seconds.
//
// SECURITY: the maker leg must stay withdrawable strictly longer than the
// resolver leg. If the resolver leg could still be withdrawn after the maker
// leg became cancellable, a maker could claim the counter asset and then
// refund its own deposit.
type TimelockConfig struct {
	// Maker is the timelock of the maker leg on chain A.
	Maker int64 `yaml:"maker" json:"maker"`

	// Resolver is the timelock of the resolver leg on chain B.
	Resolver int64 `yaml:"resolver" json:"resolver"`

	// SafetyMargin is the minimum gap between the two rescue times.
	SafetyMargin int64 `yaml:"safety_margin" json:"safety_margin"`

	// WithdrawBuffer stops withdraw submissions this many seconds before a
	// leg's rescue time, leaving the branch to cancel.
	WithdrawBuffer int64 `yaml:"withdraw_buffer" json:"withdraw_buffer"`
}

// DefaultTimelocks returns the timelock defaults for network.
func DefaultTimelocks(network NetworkType) TimelockConfig {
	if network == Mainnet {
		return TimelockConfig{
			Maker:          24 * 3600,
			Resolver:       12 * 3600,
			SafetyMargin:   2 * 3600,
			WithdrawBuffer: 15 * 60,
		}
	}
	return TimelockConfig{
		Maker:          2 * 3600,
		Resolver:       3600,
		SafetyMargin:   15 * 60,
		WithdrawBuffer: 5 * 60,
	}
}

// Validate checks that the defaults themselves respect the ordering rule.
func (c TimelockConfig) Validate() error {
	if c.Maker <= 0 || c.Resolver <= 0 {
		return fmt.Errorf("timelocks must be positive (maker=%d resolver=%d)", c.Maker, c.Resolver)
	}
	if c.SafetyMargin < 0 || c.WithdrawBuffer < 0 {
		return fmt.Errorf("safety margin and withdraw buffer must not be negative")
	}
	if c.Maker <= c.Resolver+c.SafetyMargin {
		return fmt.Errorf("maker timelock %d must exceed resolver timelock %d plus safety margin %d",
			c.Maker, c.Resolver, c.SafetyMargin)
	}
	if c.WithdrawBuffer >= c.Resolver {
		return fmt.Errorf("withdraw buffer %d must be below resolver timelock %d", c.WithdrawBuffer, c.Resolver)
	}
	return nil
}

// SafeRescueOrder reports whether a maker leg rescuing at makerRescue and a
// resolver leg rescuing at resolverRescue leave at least margin seconds
// between them.
func SafeRescueOrder(makerRescue, resolverRescue, margin int64) bool {
	if resolverRescue > makerRescue {
		return false
	}
	return makerRescue-resolverRescue > margin
}

// IsSafeToComplete checks if it's safe to submit a withdraw at now for an
// escrow rescuing at rescueTime.
//
// SECURITY: near the boundary a withdraw may land after the rescue time and
// be rejected, so the relayer stops margin seconds early.
func IsSafeToComplete(now, rescueTime, margin int64) bool {
	if now >= rescueTime {
		return false
	}
	return rescueTime-now > margin
}

// SecondsUntilRescue returns the seconds until rescueTime, 0 once reached.
func SecondsUntilRescue(now, rescueTime int64) int64 {
	if now >= rescueTime {
		return 0
	}
	return rescueTime - now
}

// =============================================================================
// Auction Configuration
// =============================================================================

// AuctionConfig holds the default Dutch auction parameters for new swaps.
// Prices are in the smallest unit of the counter asset.
type AuctionConfig struct {
	StartPrice uint64 `yaml:"start_price" json:"start_price"`
	MinPrice   uint64 `yaml:"min_price" json:"min_price"`
	Duration   int64  `yaml:"duration" json:"duration"`
	Curve      string `yaml:"curve" json:"curve"`

	// Whitelist restricts bidding to the listed resolver identities.
	Whitelist        []string `yaml:"whitelist" json:"whitelist"`
	WhitelistEnabled bool     `yaml:"whitelist_enabled" json:"whitelist_enabled"`
}

// DefaultAuctionConfig returns the default auction parameters.
func DefaultAuctionConfig() AuctionConfig {
	return AuctionConfig{
		StartPrice: 2_000_000,
		MinPrice:   1_000_000,
		Duration:   120,
		Curve:      "step",
	}
}

// Validate checks the auction bounds.
func (c AuctionConfig) Validate() error {
	if c.StartPrice == 0 || c.MinPrice == 0 || c.Duration <= 0 {
		return fmt.Errorf("auction prices and duration must be positive")
	}
	if c.StartPrice <= c.MinPrice {
		return fmt.Errorf("auction start price %d must exceed min price %d", c.StartPrice, c.MinPrice)
	}
	return nil
}

// BidMessagePrefix is prepended to the auction id in the message a bidder
// signs with personal_sign.
const BidMessagePrefix = "crosslock:bid:"

// BidMessage returns the message a bidder signs for auction id.
func BidMessage(auctionID uint64) []byte {
	return []byte(BidMessagePrefix + strconv.FormatUint(auctionID, 10))
}

// =============================================================================
// Submission Pacing
// =============================================================================

// SubmissionConfig paces the per-chain submission workers.
type SubmissionConfig struct {
	// InitialBackoff is the delay after the first failed attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the doubling backoff.
	MaxBackoff time.Duration

	// MaxAttempts bounds retries of one submission (0 = until deadline).
	MaxAttempts int

	// RatePerSecond and Burst bound submissions per chain.
	RatePerSecond float64
	Burst         int
}

// DefaultSubmissionConfig returns the default pacing.
func DefaultSubmissionConfig() SubmissionConfig {
	return SubmissionConfig{
		InitialBackoff: 10 * time.Second,
		MaxBackoff:     10 * time.Minute,
		MaxAttempts:    0,
		RatePerSecond:  2,
		Burst:          4,
	}
}

// Backoff returns the delay before attempt (1-based), doubling from
// InitialBackoff and capped at MaxBackoff.
func (c SubmissionConfig) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return c.InitialBackoff
	}
	d := c.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return d
}

// =============================================================================
// Protocol Configuration
// =============================================================================

// ProtocolConfig bundles the protocol constants for one network.
type ProtocolConfig struct {
	Network    NetworkType
	Timelocks  TimelockConfig
	Auction    AuctionConfig
	Submission SubmissionConfig
	Chains     map[string]Chain
}

// NewProtocolConfig returns the protocol defaults for network.
func NewProtocolConfig(network NetworkType) *ProtocolConfig {
	chains := TestnetChains
	if network == Mainnet {
		chains = MainnetChains
	}
	return &ProtocolConfig{
		Network:    network,
		Timelocks:  DefaultTimelocks(network),
		Auction:    DefaultAuctionConfig(),
		Submission: DefaultSubmissionConfig(),
		Chains:     chains,
	}
}
