package node

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/crosslock/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.NetworkType != config.Testnet {
		t.Errorf("NetworkType = %s, want testnet", cfg.NetworkType)
	}
	if cfg.Relayer.Keystore != "relayer.keystore" {
		t.Errorf("Relayer.Keystore = %s, want relayer.keystore", cfg.Relayer.Keystore)
	}

	enabled := cfg.EnabledChains()
	if len(enabled) != 2 || enabled[0] != "local" || enabled[1] != "local-b" {
		t.Errorf("EnabledChains() = %v, want [local local-b]", enabled)
	}
	if cfg.Chains["sepolia"].Kind != config.ChainKindEVM {
		t.Errorf("sepolia kind = %s, want evm", cfg.Chains["sepolia"].Kind)
	}

	if cfg.Workers.InitialBackoff != 10*time.Second {
		t.Errorf("InitialBackoff = %v, want %v", cfg.Workers.InitialBackoff, 10*time.Second)
	}
	if cfg.Workers.MaxBackoff != 10*time.Minute {
		t.Errorf("MaxBackoff = %v, want %v", cfg.Workers.MaxBackoff, 10*time.Minute)
	}
	if cfg.Workers.RetentionPeriod != 7*24*time.Hour {
		t.Errorf("RetentionPeriod = %v, want %v", cfg.Workers.RetentionPeriod, 7*24*time.Hour)
	}
	if cfg.API.Listen != "127.0.0.1:8645" {
		t.Errorf("API.Listen = %s, want 127.0.0.1:8645", cfg.API.Listen)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %s, want info", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfigIsTestnet(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.IsTestnet() {
		t.Error("expected IsTestnet() to be true by default")
	}

	cfg.NetworkType = config.Mainnet
	if cfg.IsTestnet() {
		t.Error("expected IsTestnet() to be false for mainnet")
	}
}

func TestConfigProtocolOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timelocks.Resolver = 1800
	cfg.Auction.StartPrice = 777
	cfg.Workers.MaxAttempts = 5

	p := cfg.Protocol()
	if p.Timelocks.Resolver != 1800 {
		t.Errorf("Timelocks.Resolver = %d, want 1800", p.Timelocks.Resolver)
	}
	if p.Auction.StartPrice != 777 {
		t.Errorf("Auction.StartPrice = %d, want 777", p.Auction.StartPrice)
	}
	if p.Submission.MaxAttempts != 5 {
		t.Errorf("Submission.MaxAttempts = %d, want 5", p.Submission.MaxAttempts)
	}
	if p.Network != config.Testnet {
		t.Errorf("Network = %s, want testnet", p.Network)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errSub string
	}{
		{
			name:   "unknown network",
			modify: func(c *Config) { c.NetworkType = "regtest" },
			errSub: "unknown network",
		},
		{
			name:   "one chain",
			modify: func(c *Config) { c.Chains["local-b"].Enabled = false },
			errSub: "at least two chains",
		},
		{
			name: "evm without rpc",
			modify: func(c *Config) {
				c.Chains["sepolia"].Enabled = true
				c.Chains["sepolia"].RPCURL = ""
			},
			errSub: "rpc_url",
		},
		{
			name:   "unknown kind",
			modify: func(c *Config) { c.Chains["local"].Kind = "utxo" },
			errSub: "unknown kind",
		},
		{
			name:   "zero rate",
			modify: func(c *Config) { c.Chains["local"].RatePerSecond = 0 },
			errSub: "rate_per_second",
		},
		{
			name:   "backoff inverted",
			modify: func(c *Config) { c.Workers.MaxBackoff = time.Second },
			errSub: "backoff",
		},
		{
			name: "resolver without price",
			modify: func(c *Config) {
				c.Resolver.Enabled = true
				c.Resolver.MaxPrice = 0
			},
			errSub: "max_price",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.errSub)
			}
		})
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "crosslock-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	configPath := filepath.Join(tmpDir, ConfigFileName)
	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}

	if cfg.Storage.DataDir != tmpDir {
		t.Errorf("DataDir = %s, want %s", cfg.Storage.DataDir, tmpDir)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# crosslock relayer configuration") {
		t.Errorf("config file is missing its header:\n%s", data)
	}
}

func TestLoadConfigRoundTrip(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "crosslock-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultConfig()
	cfg.Storage.DataDir = tmpDir
	cfg.Resolver.Enabled = true
	cfg.Resolver.MaxPrice = 1200
	cfg.Auction.Whitelist = []string{"0x1111111111111111111111111111111111111111"}
	cfg.Chains["local"].PollInterval = 500 * time.Millisecond

	if err := cfg.Save(ConfigPath(tmpDir)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !loaded.Resolver.Enabled || loaded.Resolver.MaxPrice != 1200 {
		t.Errorf("Resolver = %+v", loaded.Resolver)
	}
	if len(loaded.Auction.Whitelist) != 1 {
		t.Errorf("Auction.Whitelist = %v", loaded.Auction.Whitelist)
	}
	if got := loaded.Chains["local"].PollInterval; got != 500*time.Millisecond {
		t.Errorf("local PollInterval = %v, want 500ms", got)
	}
	if len(loaded.Chains) != 3 {
		t.Errorf("len(Chains) = %d, want 3", len(loaded.Chains))
	}
}

func TestLoadConfigReplacesChains(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "crosslock-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	yamlData := `network_type: testnet
chains:
  alpha:
    enabled: true
    kind: local
    app_id: 9
    poll_interval: 1s
    rate_per_second: 5
    burst: 5
`
	if err := os.WriteFile(ConfigPath(tmpDir), []byte(yamlData), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if len(cfg.Chains) != 1 || cfg.Chains["alpha"] == nil {
		t.Fatalf("Chains = %v, want only alpha", cfg.Chains)
	}
	if cfg.Chains["alpha"].AppID != 9 {
		t.Errorf("alpha AppID = %d, want 9", cfg.Chains["alpha"].AppID)
	}
	// Sections not present keep their defaults.
	if cfg.Workers.InitialBackoff != 10*time.Second {
		t.Errorf("InitialBackoff = %v, want default", cfg.Workers.InitialBackoff)
	}
}

func TestKeystorePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.DataDir = "/var/lib/crosslock"

	if got := cfg.KeystorePath(); got != "/var/lib/crosslock/relayer.keystore" {
		t.Errorf("KeystorePath() = %s", got)
	}

	cfg.Relayer.Keystore = "/etc/crosslock/key"
	if got := cfg.KeystorePath(); got != "/etc/crosslock/key" {
		t.Errorf("KeystorePath() = %s", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"~/.crosslock", filepath.Join(home, ".crosslock")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := expandPath(tt.input); got != tt.expected {
			t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
