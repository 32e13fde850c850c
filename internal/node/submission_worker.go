// Package node - Background worker executing queued chain submissions.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Klingon-tech/crosslock/internal/chain"
	"github.com/Klingon-tech/crosslock/internal/config"
	"github.com/Klingon-tech/crosslock/internal/metrics"
	"github.com/Klingon-tech/crosslock/internal/storage"
	"github.com/Klingon-tech/crosslock/internal/swap"
	"github.com/Klingon-tech/crosslock/pkg/logging"
)

// Executor performs queued submissions and absorbs their outcome.
// *swap.Coordinator implements it.
type Executor interface {
	ExecuteSubmission(ctx context.Context, sub *storage.Submission) error
	SubmissionDone(ctx context.Context, sub *storage.Submission) error
	SubmissionAbandoned(ctx context.Context, sub *storage.Submission, status storage.SubmissionStatus, reason string) error
}

var _ Executor = (*swap.Coordinator)(nil)

// Submission outcomes reported to metrics.
const (
	outcomeDone    = "done"
	outcomeRetry   = "retry"
	outcomeFailed  = "failed"
	outcomeExpired = "expired"
)

// SubmissionWorkerConfig configures a submission worker.
type SubmissionWorkerConfig struct {
	PollInterval    time.Duration // How often to check for due submissions
	CleanupInterval time.Duration // How often to remove finished submissions
	RetentionPeriod time.Duration // How long to keep finished submissions
	AttemptTimeout  time.Duration // Bound on one chain call

	// Pacing holds the backoff and the rate limit.
	Pacing config.SubmissionConfig
}

// DefaultSubmissionWorkerConfig returns the default configuration.
func DefaultSubmissionWorkerConfig() SubmissionWorkerConfig {
	return SubmissionWorkerConfig{
		PollInterval:    2 * time.Second,
		CleanupInterval: 1 * time.Hour,
		RetentionPeriod: 7 * 24 * time.Hour,
		AttemptTimeout:  2 * time.Minute,
		Pacing:          config.DefaultSubmissionConfig(),
	}
}

// SubmissionWorker drains the outbox of one chain. Submissions to the same
// chain are executed one at a time, at most Pacing.RatePerSecond per second.
type SubmissionWorker struct {
	chain    chain.Chain
	storage  *storage.Storage
	executor Executor
	config   SubmissionWorkerConfig
	limiter  *rate.Limiter
	metrics  *metrics.RelayerMetrics
	log      *logging.Logger

	// now is the wall clock used for retry scheduling.
	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSubmissionWorker creates a worker for ch.
func NewSubmissionWorker(ch chain.Chain, store *storage.Storage, exec Executor, m *metrics.RelayerMetrics, cfg SubmissionWorkerConfig) *SubmissionWorker {
	ctx, cancel := context.WithCancel(context.Background())

	limit := rate.Inf
	if cfg.Pacing.RatePerSecond > 0 {
		limit = rate.Limit(cfg.Pacing.RatePerSecond)
	}
	burst := cfg.Pacing.Burst
	if burst <= 0 {
		burst = 1
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 2 * time.Minute
	}

	return &SubmissionWorker{
		chain:    ch,
		storage:  store,
		executor: exec,
		config:   cfg,
		limiter:  rate.NewLimiter(limit, burst),
		metrics:  m,
		log:      logging.GetDefault().Component("submitter").With("chain", ch.Name()),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Chain returns the name of the chain the worker submits to.
func (w *SubmissionWorker) Chain() string {
	return w.chain.Name()
}

// Start starts the worker goroutine.
func (w *SubmissionWorker) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("Submission worker started", "poll_interval", w.config.PollInterval)
}

// Stop stops the worker and waits for an in-flight submission to finish.
func (w *SubmissionWorker) Stop() {
	w.cancel()
	w.wg.Wait()
	w.log.Info("Submission worker stopped")
}

// run is the main loop of the worker.
func (w *SubmissionWorker) run() {
	defer w.wg.Done()

	pollTicker := time.NewTicker(w.config.PollInterval)
	cleanupTicker := time.NewTicker(w.config.CleanupInterval)
	defer pollTicker.Stop()
	defer cleanupTicker.Stop()

	// Run initial cleanup on startup
	w.cleanup()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-pollTicker.C:
			if _, err := w.ProcessPending(w.ctx); err != nil {
				w.log.Warn("Failed to process submissions", "error", err)
			}
		case <-cleanupTicker.C:
			w.cleanup()
		}
	}
}

// cleanup removes finished submissions past the retention period.
func (w *SubmissionWorker) cleanup() {
	olderThan := w.now().Add(-w.config.RetentionPeriod).Unix()

	count, err := w.storage.CleanupOldSubmissions(olderThan)
	if err != nil {
		w.log.Warn("Failed to cleanup submissions", "error", err)
		return
	}
	if count > 0 {
		w.log.Info("Cleaned up old submissions", "count", count)
	}
}

// ProcessPending runs every submission of the chain that is due and returns
// how many it attempted.
func (w *SubmissionWorker) ProcessPending(ctx context.Context) (int, error) {
	subs, err := w.storage.GetPendingSubmissions(w.chain.Name(), w.now().Unix())
	if err != nil {
		return 0, err
	}
	w.metrics.PendingSubmissions(w.chain.Name(), len(subs))
	if len(subs) == 0 {
		return 0, nil
	}

	w.log.Debug("Processing pending submissions", "count", len(subs))

	processed := 0
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := w.process(ctx, sub); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// process executes one submission and settles its outcome. The returned
// error is a storage or context failure; chain errors are absorbed into the
// submission's state.
func (w *SubmissionWorker) process(ctx context.Context, sub *storage.Submission) error {
	chainNow, err := w.chain.Now(ctx)
	if err != nil {
		// Leave the submission due; the next poll tries again.
		w.log.Warn("Failed to read chain time", "error", err)
		return nil
	}
	if sub.PastDeadline(chainNow) {
		reason := fmt.Sprintf("deadline %d passed at chain time %d", sub.Deadline, chainNow)
		return w.abandon(ctx, sub, storage.SubmissionStatusExpired, reason, 0)
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := w.storage.MarkSubmissionAttempt(sub.SubmissionID); err != nil {
		return err
	}
	attempt := sub.RetryCount + 1

	w.log.Debug("Submitting",
		"action", sub.Action,
		"swap_id", sub.SwapID,
		"escrow_id", sub.EscrowID,
		"attempt", attempt,
	)

	callCtx, cancel := context.WithTimeout(ctx, w.config.AttemptTimeout)
	start := time.Now()
	execErr := w.executor.ExecuteSubmission(callCtx, sub)
	cancel()
	took := time.Since(start)

	switch {
	case execErr == nil:
		return w.complete(ctx, sub, attempt, took)

	case swap.IsExpired(execErr):
		return w.abandon(ctx, sub, storage.SubmissionStatusExpired, execErr.Error(), took)

	case swap.IsPermanent(execErr):
		return w.abandon(ctx, sub, storage.SubmissionStatusFailed, execErr.Error(), took)
	}

	if ctx.Err() != nil {
		// Shutting down; the attempt is retried on restart.
		return ctx.Err()
	}

	if limit := w.config.Pacing.MaxAttempts; limit > 0 && attempt >= limit {
		reason := fmt.Sprintf("gave up after %d attempts: %v", attempt, execErr)
		return w.abandon(ctx, sub, storage.SubmissionStatusFailed, reason, took)
	}

	return w.retry(sub, attempt, execErr.Error(), took)
}

// complete hands a successful submission to the executor, then closes it.
// If the executor cannot apply it the submission is retried; execution is
// idempotent, so the replay only re-applies the outcome.
func (w *SubmissionWorker) complete(ctx context.Context, sub *storage.Submission, attempt int, took time.Duration) error {
	if err := w.executor.SubmissionDone(ctx, sub); err != nil {
		w.log.Warn("Failed to apply submission", "swap_id", sub.SwapID, "action", sub.Action, "error", err)
		return w.retry(sub, attempt, err.Error(), took)
	}
	if err := w.storage.MarkSubmissionDone(sub.SubmissionID); err != nil {
		return err
	}
	w.metrics.Submission(w.chain.Name(), string(sub.Action), outcomeDone, took)
	w.log.Info("Submission executed",
		"action", sub.Action,
		"swap_id", sub.SwapID,
		"escrow_id", sub.EscrowID,
		"attempt", attempt,
	)
	return nil
}

// retry schedules the next attempt after the backoff for attempt.
func (w *SubmissionWorker) retry(sub *storage.Submission, attempt int, reason string, took time.Duration) error {
	next := w.now().Add(w.config.Pacing.Backoff(attempt))
	if err := w.storage.ScheduleRetry(sub.SubmissionID, next.Unix(), reason); err != nil {
		return err
	}
	w.metrics.Submission(w.chain.Name(), string(sub.Action), outcomeRetry, took)
	w.log.Debug("Submission failed, scheduling retry",
		"action", sub.Action,
		"swap_id", sub.SwapID,
		"attempt", attempt,
		"next_retry", next.Format(time.RFC3339),
		"error", reason,
	)
	return nil
}

// abandon closes a submission that will not be retried and tells the
// executor.
func (w *SubmissionWorker) abandon(ctx context.Context, sub *storage.Submission, status storage.SubmissionStatus, reason string, took time.Duration) error {
	var err error
	outcome := outcomeFailed
	if status == storage.SubmissionStatusExpired {
		outcome = outcomeExpired
		err = w.storage.MarkSubmissionExpired(sub.SubmissionID, reason)
	} else {
		err = w.storage.MarkSubmissionFailed(sub.SubmissionID, reason)
	}
	if err != nil {
		return err
	}
	w.metrics.Submission(w.chain.Name(), string(sub.Action), outcome, took)
	w.log.Warn("Submission abandoned",
		"action", sub.Action,
		"swap_id", sub.SwapID,
		"status", status,
		"reason", reason,
	)
	if err := w.executor.SubmissionAbandoned(ctx, sub, status, reason); err != nil {
		w.log.Warn("Failed to record abandoned submission", "swap_id", sub.SwapID, "error", err)
	}
	return nil
}
