package swap

import (
	"context"
	"sync"
	"time"

	"github.com/Klingon-tech/crosslock/pkg/logging"
)

// DefaultExpiryInterval is the default expiry check interval.
const DefaultExpiryInterval = 30 * time.Second

// ExpiryMonitor periodically runs CheckExpiries.
type ExpiryMonitor struct {
	coordinator *Coordinator
	interval    time.Duration
	log         *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExpiryMonitor creates a new expiry monitor.
func NewExpiryMonitor(coordinator *Coordinator, interval time.Duration) *ExpiryMonitor {
	if interval <= 0 {
		interval = DefaultExpiryInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ExpiryMonitor{
		coordinator: coordinator,
		interval:    interval,
		log:         logging.GetDefault().Component("expiry-monitor"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the expiry monitor.
func (m *ExpiryMonitor) Start() {
	m.wg.Add(1)
	go m.run()
	m.log.Info("Expiry monitor started", "interval", m.interval)
}

// Stop stops the expiry monitor.
func (m *ExpiryMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
	m.log.Info("Expiry monitor stopped")
}

// run is the main monitoring loop.
func (m *ExpiryMonitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkAll()
		}
	}
}

func (m *ExpiryMonitor) checkAll() {
	ctx, cancel := context.WithTimeout(m.ctx, m.interval)
	defer cancel()

	results, err := m.coordinator.CheckExpiries(ctx)
	if err != nil {
		m.log.Debug("Expiry check interrupted", "error", err)
	}
	for _, r := range results {
		if r.Error != nil {
			m.log.Warn("Error checking leg expiry",
				"swap_id", r.SwapID,
				"role", r.Role,
				"chain", r.Chain,
				"error", r.Error,
			)
		}
	}
}
