// Package main provides the crosslockd daemon - the cross-chain swap relayer.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Klingon-tech/crosslock/internal/config"
	"github.com/Klingon-tech/crosslock/internal/node"
	"github.com/Klingon-tech/crosslock/internal/rpc"
	"github.com/Klingon-tech/crosslock/internal/wallet"
	"github.com/Klingon-tech/crosslock/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	// Parse flags
	var (
		dataDir     = flag.String("data-dir", "~/.crosslock", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		network     = flag.String("network", "", "Network (mainnet, testnet), overrides config")
		apiAddr     = flag.String("api", "", "JSON-RPC API address, overrides config")
		noAPI       = flag.Bool("no-api", false, "Disable the JSON-RPC API")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		importSeed  = flag.Bool("import", false, "Import a mnemonic from stdin into a new keystore and exit")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Set up logging (initial, may be overridden by config)
	log := logging.New(&logging.Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("crosslockd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	// Load or create config file
	configDir := *dataDir
	if *configFile != "" {
		configDir = filepath.Dir(*configFile)
	}
	cfg, err := node.LoadConfig(configDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// Apply CLI overrides (CLI flags take precedence over config file)
	cfg.Storage.DataDir = *dataDir
	if *network != "" {
		nt, err := config.ParseNetworkType(*network)
		if err != nil {
			log.Fatal("Invalid network", "error", err)
		}
		cfg.NetworkType = nt
	}
	if *apiAddr != "" {
		cfg.API.Listen = *apiAddr
	}
	if *noAPI {
		cfg.API.Enabled = false
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	// Update logging with config level
	var out io.Writer = os.Stderr
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			log.Fatal("Failed to open log file", "path", cfg.Logging.File, "error", err)
		}
		defer f.Close()
		out = f
	}
	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
		Output:     out,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", node.ConfigPath(configDir))

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config", "error", err)
	}

	if *importSeed {
		if err := importKeystore(cfg); err != nil {
			log.Fatal("Failed to import keystore", "error", err)
		}
		log.Info("Keystore imported", "path", cfg.KeystorePath())
		return
	}

	w, err := openWallet(log, cfg)
	if err != nil {
		log.Fatal("Failed to open keystore", "error", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("Starting crosslock relayer...")
	n, err := node.New(ctx, cfg, w)
	if err != nil {
		log.Fatal("Failed to create node", "error", err)
	}
	w.ClearCache()

	if err := n.Start(); err != nil {
		log.Fatal("Failed to start node", "error", err)
	}

	// Start RPC server
	var rpcServer *rpc.Server
	if cfg.API.Enabled {
		rpcServer = rpc.NewServer(n)
		if err := rpcServer.Start(cfg.API.Listen); err != nil {
			log.Fatal("Failed to start RPC server", "error", err)
		}
	}

	printBanner(log, n, cfg)

	// Start status ticker
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Info("Status",
					"active_swaps", len(n.Coordinator().ActiveSwapIDs()),
					"auctions", n.Auctions().Count(),
					"uptime", n.Uptime().Round(time.Second),
				)
			}
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	// Graceful shutdown
	cancel()

	if rpcServer != nil {
		if err := rpcServer.Stop(); err != nil {
			log.Error("Error stopping RPC server", "error", err)
		}
	}
	if err := n.Stop(); err != nil {
		log.Error("Error during shutdown", "error", err)
	}

	log.Info("Goodbye!")
}

// openWallet decrypts the relayer keystore, creating it on first run.
func openWallet(log *logging.Logger, cfg *node.Config) (*wallet.Wallet, error) {
	path := cfg.KeystorePath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Info("No keystore found, creating one", "path", path)
		password, err := readPassword("New keystore password: ", true)
		if err != nil {
			return nil, err
		}
		w, mnemonic, err := wallet.CreateKeystore(path, password, cfg.NetworkType)
		if err != nil {
			return nil, err
		}
		log.Warn("Write down the relayer mnemonic. It is shown only once.")
		log.Warn(mnemonic)
		return w, nil
	}

	password, err := readPassword("Keystore password: ", false)
	if err != nil {
		return nil, err
	}
	return wallet.OpenKeystore(path, password, cfg.NetworkType)
}

// importKeystore reads a mnemonic from stdin and encrypts it into a new keystore.
func importKeystore(cfg *node.Config) error {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, 4096))
	if err != nil {
		return err
	}
	mnemonic := strings.Join(strings.Fields(string(data)), " ")
	if !wallet.ValidateMnemonic(mnemonic) {
		return errors.New("invalid mnemonic")
	}
	password, err := readPassword("New keystore password: ", false)
	if err != nil {
		return err
	}
	return wallet.ImportKeystore(cfg.KeystorePath(), password, mnemonic)
}

func printBanner(log *logging.Logger, n *node.Node, cfg *node.Config) {
	networkLabel := "mainnet"
	if cfg.IsTestnet() {
		networkLabel = "TESTNET"
	}

	log.Info("")
	log.Info("=================================================")
	log.Infof("  crosslock relayer (%s)", networkLabel)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Relayer: %s", n.Relayer())
	if !n.Resolver().IsZero() {
		log.Infof("  Resolver: %s", n.Resolver())
	}
	log.Info("")
	log.Info("  Chains:")
	for _, name := range n.Chains().List() {
		ch, err := n.Chains().Get(name)
		if err != nil {
			continue
		}
		log.Infof("    %-10s %-6s registry %s", name, ch.Kind(), ch.Address())
	}
	log.Info("")
	if cfg.API.Enabled {
		log.Infof("  API: http://%s", cfg.API.Listen)
		log.Infof("  WS:  ws://%s/ws", cfg.API.Listen)
		if cfg.API.Metrics {
			log.Infof("  Metrics: http://%s/metrics", cfg.API.Listen)
		}
		log.Info("")
	}
	log.Infof("  Data dir: %s", cfg.Storage.DataDir)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
