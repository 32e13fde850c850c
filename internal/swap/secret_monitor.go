package swap

import (
	"context"
	"sync"
	"time"

	"github.com/Klingon-tech/crosslock/internal/escrow"
	"github.com/Klingon-tech/crosslock/internal/storage"
	"github.com/Klingon-tech/crosslock/pkg/logging"
)

// DefaultSecretPollInterval is how often a counter leg is polled.
const DefaultSecretPollInterval = 15 * time.Second

// SecretMonitor watches the resolver leg of every counter-funded swap. If
// the maker withdraws it directly on the counter chain, the preimage is
// public there and the relayer completes the maker leg with it.
type SecretMonitor struct {
	mu sync.Mutex

	coordinator *Coordinator
	interval    time.Duration
	log         *logging.Logger

	// Active monitors
	monitors map[string]context.CancelFunc // swapID -> cancel func

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSecretMonitor creates a new secret monitor.
func NewSecretMonitor(coordinator *Coordinator, interval time.Duration) *SecretMonitor {
	if interval <= 0 {
		interval = DefaultSecretPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SecretMonitor{
		coordinator: coordinator,
		interval:    interval,
		log:         logging.GetDefault().Component("secret-monitor"),
		monitors:    make(map[string]context.CancelFunc),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins syncing per-swap monitors with the coordinator's swaps.
func (m *SecretMonitor) Start() {
	m.wg.Add(1)
	go m.run()
	m.log.Info("Secret monitor started", "interval", m.interval)
}

// Stop stops all monitors.
func (m *SecretMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
	m.log.Info("Secret monitor stopped")
}

func (m *SecretMonitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sync()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sync()
		}
	}
}

// sync starts monitors for newly counter-funded swaps and stops monitors of
// swaps that moved on.
func (m *SecretMonitor) sync() {
	watch := make(map[string]bool)
	for _, active := range m.coordinator.swapsInState(storage.SwapStateCounterFunded) {
		watch[active.Record.ID] = true
		if err := m.StartMonitoring(active.Record.ID); err != nil {
			m.log.Debug("Failed to start monitoring", "swap_id", active.Record.ID, "error", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for swapID, cancel := range m.monitors {
		if !watch[swapID] {
			cancel()
			delete(m.monitors, swapID)
		}
	}
}

// StartMonitoring starts polling the counter leg of a swap.
func (m *SecretMonitor) StartMonitoring(swapID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.monitors[swapID]; exists {
		return nil
	}
	if m.ctx.Err() != nil {
		return m.ctx.Err()
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.monitors[swapID] = cancel

	m.wg.Add(1)
	go m.monitorSwap(ctx, swapID)

	m.log.Debug("Started secret monitoring", "swap_id", swapID)
	return nil
}

// StopMonitoring stops polling a swap.
func (m *SecretMonitor) StopMonitoring(swapID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.monitors[swapID]; ok {
		cancel()
		delete(m.monitors, swapID)
	}
}

// ActiveMonitors returns the number of swaps being polled.
func (m *SecretMonitor) ActiveMonitors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.monitors)
}

func (m *SecretMonitor) monitorSwap(ctx context.Context, swapID string) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		found, err := m.Check(ctx, swapID)
		if err != nil {
			m.log.Debug("Secret check failed", "swap_id", swapID, "error", err)
		}
		if found {
			m.StopMonitoring(swapID)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check polls the counter leg of a swap once. It reports whether the
// secret was found on chain and handed to the coordinator.
func (m *SecretMonitor) Check(ctx context.Context, swapID string) (bool, error) {
	active, err := m.coordinator.GetSwap(swapID)
	if err != nil {
		return false, err
	}
	if active.Record.State != storage.SwapStateCounterFunded || active.ResolverLeg == nil {
		return false, nil
	}
	leg := active.ResolverLeg

	ch, err := m.coordinator.chains.Get(leg.Chain)
	if err != nil {
		return false, err
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	esc, err := ch.Escrow(checkCtx, leg.EscrowID)
	if err != nil {
		return false, err
	}
	if esc.State != escrow.StateWithdrawn || len(esc.Secret) == 0 {
		return false, nil
	}

	m.log.Info("Secret revealed on counter chain",
		"swap_id", swapID,
		"chain", leg.Chain,
		"escrow_id", leg.EscrowID,
	)
	if err := m.coordinator.revealFromChain(checkCtx, swapID, esc.Secret); err != nil {
		return false, err
	}
	return true, nil
}
