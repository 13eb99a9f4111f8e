package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/lumenfund/lumenfund/internal/billing"
)

// Biller processes one renewal cycle for a subscription. Implemented by
// the billing state machine.
type Biller interface {
	ProcessCycle(ctx context.Context, subscriptionID string) (*billing.CycleResult, error)
}

// DueLister reports which subscriptions are due for billing or retry.
type DueLister interface {
	ListDue(ctx context.Context, now time.Time) ([]string, error)
}

// SweepResult summarizes one billing sweep.
type SweepResult struct {
	Due       int
	Processed int
	Failed    int
}

// Sweeper drains due subscriptions in bounded batches. All lifecycle
// decisions (fallback, retries, grace, downgrade) live in the billing
// state machine; the sweeper is only the periodic trigger.
type Sweeper struct {
	machine   Biller
	subs      DueLister
	batchSize int
	metrics   *Metrics
	logger    *slog.Logger
}

// NewSweeper creates a billing sweeper. metrics may be nil.
func NewSweeper(machine Biller, subs DueLister, batchSize int, metrics *Metrics, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		machine:   machine,
		subs:      subs,
		batchSize: batchSize,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run executes one sweep: list due subscriptions, truncate to the batch
// size, and process each in turn. One broken subscription must not stall
// the sweep, so per-cycle errors are counted and skipped.
func (s *Sweeper) Run(ctx context.Context) SweepResult {
	started := time.Now()

	due, err := s.subs.ListDue(ctx, started)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list due subscriptions", "error", err)
		if s.metrics != nil {
			s.metrics.IncJobsTotal(JobTypeBillingSweep, StatusFailure)
			s.metrics.IncJobErrors(JobTypeBillingSweep, "list_due")
		}
		return SweepResult{}
	}
	if s.batchSize > 0 && len(due) > s.batchSize {
		// The remainder is picked up by the next sweep.
		due = due[:s.batchSize]
	}

	result := SweepResult{Due: len(due)}
	for _, id := range due {
		if ctx.Err() != nil {
			break
		}
		cycle, err := s.machine.ProcessCycle(ctx, id)
		if err != nil {
			s.logger.ErrorContext(ctx, "billing cycle failed",
				"subscription_id", id, "error", err)
			result.Failed++
			if s.metrics != nil {
				s.metrics.IncJobErrors(JobTypeBillingSweep, "process_cycle")
			}
			continue
		}
		result.Processed++
		s.logger.InfoContext(ctx, "billing cycle completed",
			"subscription_id", id, "outcome", cycle.Outcome)
	}

	elapsed := time.Since(started)
	if s.metrics != nil {
		status := StatusSuccess
		if result.Failed > 0 {
			status = StatusFailure
		}
		s.metrics.IncJobsTotal(JobTypeBillingSweep, status)
		s.metrics.ObserveJobDuration(JobTypeBillingSweep, elapsed.Seconds())
	}
	s.logger.InfoContext(ctx, "billing sweep finished",
		"due", result.Due, "processed", result.Processed, "failed", result.Failed,
		"duration_ms", elapsed.Milliseconds())
	return result
}
