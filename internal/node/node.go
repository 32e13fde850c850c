package node

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Klingon-tech/crosslock/internal/auction"
	"github.com/Klingon-tech/crosslock/internal/chain"
	"github.com/Klingon-tech/crosslock/internal/config"
	contract "github.com/Klingon-tech/crosslock/internal/contracts/escrow"
	"github.com/Klingon-tech/crosslock/internal/ledger"
	"github.com/Klingon-tech/crosslock/internal/metrics"
	"github.com/Klingon-tech/crosslock/internal/storage"
	"github.com/Klingon-tech/crosslock/internal/swap"
	"github.com/Klingon-tech/crosslock/internal/wallet"
	"github.com/Klingon-tech/crosslock/pkg/logging"
)

// Settings keys guarding the data directory.
const (
	settingNetwork = "network"
	settingRelayer = "relayer"
)

// Node is a crosslock relayer: the chains it drives, the auction registry,
// the swap coordinator and the background workers around it.
type Node struct {
	config   *Config
	protocol *config.ProtocolConfig
	log      *logging.Logger

	relayerKey *ecdsa.PrivateKey
	relayer    ledger.Identity

	store       *storage.Storage
	metrics     *metrics.RelayerMetrics
	clock       ledger.Clock
	chains      *chain.Set
	auctions    *auction.Registry
	coordinator *swap.Coordinator

	// Background workers
	workers       []*SubmissionWorker
	secretMonitor *swap.SecretMonitor
	expiryMonitor *swap.ExpiryMonitor
	bidder        *swap.Bidder
	resolver      ledger.Identity

	// State
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	started   bool

	mu sync.RWMutex
}

// New assembles a relayer node from cfg. The relayer and resolver keys are
// derived from w.
func New(ctx context.Context, cfg *Config, w *wallet.Wallet) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if w.Network() != cfg.NetworkType {
		return nil, fmt.Errorf("wallet is for %s, config is for %s", w.Network(), cfg.NetworkType)
	}

	ctx, cancel := context.WithCancel(ctx)
	n := &Node{
		config:   cfg,
		protocol: cfg.Protocol(),
		log:      logging.GetDefault().Component("node"),
		metrics:  metrics.Relayer(),
		clock:    ledger.SystemClock{},
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := n.init(w); err != nil {
		cancel()
		n.closeResources()
		return nil, err
	}
	return n, nil
}

func (n *Node) init(w *wallet.Wallet) error {
	var err error

	// Relayer identity
	n.relayerKey, err = w.EVMKey(n.config.Relayer.Account, n.config.Relayer.Index)
	if err != nil {
		return fmt.Errorf("failed to derive relayer key: %w", err)
	}
	n.relayer, err = w.EVMIdentity(n.config.Relayer.Account, n.config.Relayer.Index)
	if err != nil {
		return fmt.Errorf("failed to derive relayer identity: %w", err)
	}

	// Storage
	n.store, err = storage.New(&storage.Config{DataDir: n.config.Storage.DataDir})
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	if err := n.store.EnsureSetting(settingNetwork, string(n.config.NetworkType)); err != nil {
		return err
	}
	if err := n.store.EnsureSetting(settingRelayer, n.relayer.String()); err != nil {
		return err
	}

	// Chains
	n.chains = chain.NewSet()
	for _, name := range n.config.EnabledChains() {
		ch, err := n.openChain(name, n.config.Chains[name])
		if err != nil {
			return fmt.Errorf("chain %s: %w", name, err)
		}
		n.chains.Register(ch)
		n.log.Info("Chain enabled", "chain", name, "kind", ch.Kind(), "registry", ch.Address().Short())
	}

	// Auctions
	whitelist := auction.NewWhitelist(n.relayer, n.protocol.Auction.WhitelistEnabled, parseIdentities(n.protocol.Auction.Whitelist)...)
	n.auctions, err = auction.NewRegistry(auction.Config{
		Relayer:   n.relayer,
		Clock:     n.clock,
		Journal:   n.store,
		Whitelist: whitelist,
	})
	if err != nil {
		return fmt.Errorf("failed to create auction registry: %w", err)
	}
	restored, err := n.store.LoadAuctions()
	if err != nil {
		return fmt.Errorf("failed to load auctions: %w", err)
	}
	if err := n.auctions.Restore(restored); err != nil {
		return fmt.Errorf("failed to restore auctions: %w", err)
	}

	// Coordinator
	n.coordinator, err = swap.NewCoordinator(&swap.CoordinatorConfig{
		Store:    n.store,
		Chains:   n.chains,
		Auctions: n.auctions,
		Protocol: n.protocol,
		Metrics:  n.metrics,
	})
	if err != nil {
		return err
	}
	loaded, err := n.coordinator.LoadPendingSwaps(n.ctx)
	if err != nil {
		return fmt.Errorf("failed to load swaps: %w", err)
	}

	// Workers
	for _, name := range n.chains.List() {
		ch, _ := n.chains.Get(name)
		n.workers = append(n.workers, NewSubmissionWorker(ch, n.store, n.coordinator, n.metrics, n.workerConfig(n.config.Chains[name])))
	}
	n.secretMonitor = swap.NewSecretMonitor(n.coordinator, n.config.Workers.SecretPollInterval)
	n.expiryMonitor = swap.NewExpiryMonitor(n.coordinator, n.config.Workers.ExpiryInterval)

	if n.config.Resolver.Enabled {
		if err := n.initResolver(w); err != nil {
			return err
		}
	}

	n.log.Info("Relayer node created",
		"network", n.config.NetworkType,
		"relayer", n.relayer.Short(),
		"chains", n.chains.List(),
		"auctions", n.auctions.Count(),
		"active_swaps", loaded,
	)
	return nil
}

// openChain creates the adapter for one configured chain.
func (n *Node) openChain(name string, cc *ChainConfig) (chain.Chain, error) {
	switch cc.Kind {
	case config.ChainKindLocal:
		ch, err := chain.NewLocal(chain.LocalConfig{
			Name:  name,
			AppID: cc.AppID,
			Admin: n.relayer,
			Clock: n.clock,
		})
		if err != nil {
			return nil, err
		}
		return ch, nil

	case config.ChainKindEVM:
		addr, err := n.registryAddress(name, cc)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(n.ctx, 30*time.Second)
		defer cancel()
		client, err := contract.NewClient(ctx, cc.RPCURL, addr)
		if err != nil {
			return nil, err
		}
		ch, err := chain.NewEVM(chain.EVMConfig{
			Name:       name,
			RelayerKey: n.relayerKey,
			TxTimeout:  cc.TxTimeout,
		}, client)
		if err != nil {
			client.Close()
			return nil, err
		}
		return ch, nil
	}
	return nil, fmt.Errorf("unknown chain kind %q", cc.Kind)
}

// registryAddress returns the configured contract, or the known deployment
// for the chain.
func (n *Node) registryAddress(name string, cc *ChainConfig) (common.Address, error) {
	if cc.Contract != "" {
		if !common.IsHexAddress(cc.Contract) {
			return common.Address{}, fmt.Errorf("invalid contract address %q", cc.Contract)
		}
		return common.HexToAddress(cc.Contract), nil
	}
	def, ok := config.GetChain(n.config.NetworkType, name)
	if !ok || def.ChainID == 0 {
		return common.Address{}, errors.New("no contract configured and chain is unknown")
	}
	addr := config.GetEscrowRegistry(def.ChainID)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no EscrowRegistry deployment known for chain ID %d", def.ChainID)
	}
	return addr, nil
}

// workerConfig merges the chain pacing into the worker settings.
func (n *Node) workerConfig(cc *ChainConfig) SubmissionWorkerConfig {
	cfg := DefaultSubmissionWorkerConfig()
	cfg.PollInterval = cc.PollInterval
	if n.config.Workers.CleanupInterval > 0 {
		cfg.CleanupInterval = n.config.Workers.CleanupInterval
	}
	if n.config.Workers.RetentionPeriod > 0 {
		cfg.RetentionPeriod = n.config.Workers.RetentionPeriod
	}
	if cc.TxTimeout > 0 {
		cfg.AttemptTimeout = cc.TxTimeout
	}
	cfg.Pacing = n.protocol.Submission
	cfg.Pacing.RatePerSecond = cc.RatePerSecond
	cfg.Pacing.Burst = cc.Burst
	return cfg
}

// initResolver sets up the built-in bidder with its own key. EVM chains get
// the key as a signer so the bidder can fund counter legs there.
func (n *Node) initResolver(w *wallet.Wallet) error {
	rc := n.config.Resolver
	key, err := w.EVMKey(rc.Account, rc.Index)
	if err != nil {
		return fmt.Errorf("failed to derive resolver key: %w", err)
	}
	id, err := w.EVMIdentity(rc.Account, rc.Index)
	if err != nil {
		return fmt.Errorf("failed to derive resolver identity: %w", err)
	}
	if id == n.relayer {
		return errors.New("resolver key must differ from the relayer key")
	}
	for _, name := range n.chains.List() {
		ch, _ := n.chains.Get(name)
		if evm, ok := ch.(*chain.EVM); ok {
			evm.AddSigner(key)
		}
	}
	n.bidder, err = swap.NewBidder(n.coordinator, swap.BidderConfig{
		Identity: id,
		MaxPrice: rc.MaxPrice,
		Timelock: rc.Timelock,
		Interval: rc.Interval,
	})
	if err != nil {
		return err
	}
	n.resolver = id
	return nil
}

// Start starts the background workers.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return errors.New("node already started")
	}

	for _, w := range n.workers {
		w.Start()
	}
	n.secretMonitor.Start()
	n.expiryMonitor.Start()
	if n.bidder != nil {
		n.bidder.Start()
	}

	n.started = true
	n.startTime = time.Now()
	n.log.Info("Relayer node started", "workers", len(n.workers), "resolver", n.bidder != nil)
	return nil
}

// Stop stops the workers and releases chains and storage.
func (n *Node) Stop() error {
	n.cancel()

	n.mu.Lock()
	started := n.started
	n.started = false
	n.mu.Unlock()

	if started {
		// Stop producers before the workers that drain their submissions
		if n.bidder != nil {
			n.bidder.Stop()
		}
		n.expiryMonitor.Stop()
		n.secretMonitor.Stop()
		for _, w := range n.workers {
			w.Stop()
		}
	}

	if n.coordinator != nil {
		n.coordinator.Close()
	}
	return n.closeResources()
}

func (n *Node) closeResources() error {
	if n.chains != nil {
		n.chains.Close()
	}
	if n.store != nil {
		return n.store.Close()
	}
	return nil
}

// Config returns the node configuration.
func (n *Node) Config() *Config {
	return n.config
}

// Protocol returns the effective protocol constants.
func (n *Node) Protocol() *config.ProtocolConfig {
	return n.protocol
}

// Relayer returns the relayer identity.
func (n *Node) Relayer() ledger.Identity {
	return n.relayer
}

// Resolver returns the built-in resolver identity, empty when disabled.
func (n *Node) Resolver() ledger.Identity {
	return n.resolver
}

// Storage returns the node's store.
func (n *Node) Storage() *storage.Storage {
	return n.store
}

// Chains returns the enabled chains.
func (n *Node) Chains() *chain.Set {
	return n.chains
}

// Auctions returns the auction registry.
func (n *Node) Auctions() *auction.Registry {
	return n.auctions
}

// Coordinator returns the swap coordinator.
func (n *Node) Coordinator() *swap.Coordinator {
	return n.coordinator
}

// Metrics returns the relayer metrics.
func (n *Node) Metrics() *metrics.RelayerMetrics {
	return n.metrics
}

// Workers returns the submission workers, one per chain.
func (n *Node) Workers() []*SubmissionWorker {
	return n.workers
}

// SecretMonitor returns the secret monitor.
func (n *Node) SecretMonitor() *swap.SecretMonitor {
	return n.secretMonitor
}

// Uptime returns how long the node has been running.
func (n *Node) Uptime() time.Duration {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.startTime.IsZero() {
		return 0
	}
	return time.Since(n.startTime)
}

// parseIdentities drops entries that do not parse.
func parseIdentities(ss []string) []ledger.Identity {
	ids := make([]ledger.Identity, 0, len(ss))
	for _, s := range ss {
		id, err := ledger.ParseIdentity(s)
		if err != nil {
			logging.Warn("Ignoring invalid whitelist entry", "entry", s, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
