// Package node assembles the crosslock relayer: configuration, chains,
// storage, the swap coordinator and the per-chain submission workers.
package node

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Klingon-tech/crosslock/internal/config"
)

// Config holds all configuration for the relayer node.
type Config struct {
	// NetworkType is the network type (mainnet or testnet).
	NetworkType config.NetworkType `yaml:"network_type"`

	// Relayer key selection
	Relayer RelayerConfig `yaml:"relayer"`

	// Chains holds the ledgers the relayer drives, by name.
	Chains map[string]*ChainConfig `yaml:"chains"`

	// Protocol parameters
	Timelocks config.TimelockConfig `yaml:"timelocks"`
	Auction   config.AuctionConfig  `yaml:"auction"`

	// Background workers
	Workers WorkerConfig `yaml:"workers"`

	// Built-in resolver
	Resolver ResolverConfig `yaml:"resolver"`

	// Storage
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// JSON-RPC API
	API APIConfig `yaml:"api"`
}

// IsTestnet returns true if running on testnet.
func (c *Config) IsTestnet() bool {
	return c.NetworkType == config.Testnet
}

// EnabledChains returns the names of enabled chains in sorted order.
func (c *Config) EnabledChains() []string {
	names := make([]string, 0, len(c.Chains))
	for name, cc := range c.Chains {
		if cc != nil && cc.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Protocol returns the protocol constants with the configured overrides.
func (c *Config) Protocol() *config.ProtocolConfig {
	p := config.NewProtocolConfig(c.NetworkType)
	p.Timelocks = c.Timelocks
	p.Auction = c.Auction
	p.Submission.InitialBackoff = c.Workers.InitialBackoff
	p.Submission.MaxBackoff = c.Workers.MaxBackoff
	p.Submission.MaxAttempts = c.Workers.MaxAttempts
	return p
}

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if _, err := config.ParseNetworkType(string(c.NetworkType)); err != nil {
		return err
	}
	if err := c.Timelocks.Validate(); err != nil {
		return fmt.Errorf("timelocks: %w", err)
	}
	if err := c.Auction.Validate(); err != nil {
		return fmt.Errorf("auction: %w", err)
	}
	if len(c.EnabledChains()) < 2 {
		return fmt.Errorf("at least two chains must be enabled, have %d", len(c.EnabledChains()))
	}
	for _, name := range c.EnabledChains() {
		if err := c.Chains[name].validate(name); err != nil {
			return err
		}
	}
	if c.Workers.InitialBackoff <= 0 || c.Workers.MaxBackoff < c.Workers.InitialBackoff {
		return fmt.Errorf("workers: backoff must be positive and max_backoff >= initial_backoff")
	}
	if c.Resolver.Enabled && c.Resolver.MaxPrice == 0 {
		return fmt.Errorf("resolver: max_price must be positive when enabled")
	}
	return nil
}

// RelayerConfig selects the relayer key from the keystore.
type RelayerConfig struct {
	// Keystore is the encrypted mnemonic file, relative to the data dir.
	Keystore string `yaml:"keystore"`

	// Account and Index select m/44'/60'/account'/0/index.
	Account uint32 `yaml:"account"`
	Index   uint32 `yaml:"index"`
}

// ChainConfig configures one ledger.
type ChainConfig struct {
	Enabled bool             `yaml:"enabled"`
	Kind    config.ChainKind `yaml:"kind"`

	// AppID numbers the escrow registry of a local chain.
	AppID uint64 `yaml:"app_id,omitempty"`

	// RPCURL and Contract locate the EscrowRegistry of an EVM chain. An
	// empty contract falls back to the known deployment for the chain ID.
	RPCURL    string        `yaml:"rpc_url,omitempty"`
	Contract  string        `yaml:"contract,omitempty"`
	TxTimeout time.Duration `yaml:"tx_timeout,omitempty"`

	// PollInterval is how often the chain's submission worker polls.
	PollInterval time.Duration `yaml:"poll_interval"`

	// RatePerSecond and Burst bound submissions to this chain.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

func (cc *ChainConfig) validate(name string) error {
	switch cc.Kind {
	case config.ChainKindLocal:
	case config.ChainKindEVM:
		if cc.RPCURL == "" {
			return fmt.Errorf("chain %s: rpc_url is required", name)
		}
	default:
		return fmt.Errorf("chain %s: unknown kind %q", name, cc.Kind)
	}
	if cc.PollInterval <= 0 {
		return fmt.Errorf("chain %s: poll_interval must be positive", name)
	}
	if cc.RatePerSecond <= 0 || cc.Burst <= 0 {
		return fmt.Errorf("chain %s: rate_per_second and burst must be positive", name)
	}
	return nil
}

// WorkerConfig configures the background workers.
type WorkerConfig struct {
	// Submission retry backoff
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	MaxAttempts    int           `yaml:"max_attempts"`

	// Outbox housekeeping
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	RetentionPeriod time.Duration `yaml:"retention_period"`

	// Monitors
	ExpiryInterval     time.Duration `yaml:"expiry_interval"`
	SecretPollInterval time.Duration `yaml:"secret_poll_interval"`
}

// ResolverConfig configures the built-in resolver.
type ResolverConfig struct {
	Enabled bool `yaml:"enabled"`

	// Account and Index select the resolver key, kept apart from the
	// relayer key.
	Account uint32 `yaml:"account"`
	Index   uint32 `yaml:"index"`

	MaxPrice uint64        `yaml:"max_price"`
	Timelock int64         `yaml:"timelock"`
	Interval time.Duration `yaml:"interval"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for all data files.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// File is the log file path (empty for stdout).
	File string `yaml:"file"`
}

// APIConfig holds the JSON-RPC server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`

	// Metrics exposes Prometheus collectors at /metrics.
	Metrics bool `yaml:"metrics"`
}

// DefaultConfig returns a Config with sensible defaults. Two local ledgers
// are enabled so a fresh node can run a swap without any EVM endpoint.
func DefaultConfig() *Config {
	network := config.Testnet
	return &Config{
		NetworkType: network,
		Relayer: RelayerConfig{
			Keystore: "relayer.keystore",
		},
		Chains: map[string]*ChainConfig{
			"local": {
				Enabled:       true,
				Kind:          config.ChainKindLocal,
				AppID:         1,
				PollInterval:  2 * time.Second,
				RatePerSecond: 10,
				Burst:         10,
			},
			"local-b": {
				Enabled:       true,
				Kind:          config.ChainKindLocal,
				AppID:         2,
				PollInterval:  2 * time.Second,
				RatePerSecond: 10,
				Burst:         10,
			},
			"sepolia": {
				Enabled:       false,
				Kind:          config.ChainKindEVM,
				RPCURL:        "https://ethereum-sepolia-rpc.publicnode.com",
				TxTimeout:     2 * time.Minute,
				PollInterval:  12 * time.Second,
				RatePerSecond: 2,
				Burst:         4,
			},
		},
		Timelocks: config.DefaultTimelocks(network),
		Auction:   config.DefaultAuctionConfig(),
		Workers: WorkerConfig{
			InitialBackoff:     10 * time.Second,
			MaxBackoff:         10 * time.Minute,
			CleanupInterval:    time.Hour,
			RetentionPeriod:    7 * 24 * time.Hour,
			ExpiryInterval:     30 * time.Second,
			SecretPollInterval: 15 * time.Second,
		},
		Resolver: ResolverConfig{
			Account:  1,
			Interval: 5 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: "~/.crosslock",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8645",
			Metrics: true,
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	configPath := ConfigPath(dataDir)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	// Configured chains replace the default set rather than merging into it.
	cfg.Chains = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Chains == nil {
		cfg.Chains = DefaultConfig().Chains
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# crosslock relayer configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// resolvePath joins a relative path onto the data directory.
func (c *Config) resolvePath(p string) string {
	p = expandPath(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(expandPath(c.Storage.DataDir), p)
}

// KeystorePath returns the absolute path of the relayer keystore.
func (c *Config) KeystorePath() string {
	return c.resolvePath(c.Relayer.Keystore)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
