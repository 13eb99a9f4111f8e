package jobs

import (
	"context"
	"log/slog"
	"time"
)

// LedgerPurger deletes idempotency records last touched before the cutoff.
// Implemented by the webhook ledger.
type LedgerPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Purger trims the webhook idempotency ledger to its retention window.
// The ledger grows one row per gateway event; without periodic purging it
// grows without bound. The gateway never redelivers events older than the
// retention window, so purged ids cannot be replayed as new.
type Purger struct {
	ledger    LedgerPurger
	retention time.Duration
	metrics   *Metrics
	logger    *slog.Logger
}

// NewPurger creates a ledger retention purger. metrics may be nil.
func NewPurger(ledger LedgerPurger, retention time.Duration, metrics *Metrics, logger *slog.Logger) *Purger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Purger{
		ledger:    ledger,
		retention: retention,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run deletes ledger records older than the retention window and returns
// the number removed.
func (p *Purger) Run(ctx context.Context) (int64, error) {
	started := time.Now()
	cutoff := started.Add(-p.retention)

	deleted, err := p.ledger.PurgeBefore(ctx, cutoff)
	if err != nil {
		p.logger.ErrorContext(ctx, "ledger purge failed", "error", err)
		if p.metrics != nil {
			p.metrics.IncJobsTotal(JobTypeLedgerPurge, StatusFailure)
			p.metrics.IncJobErrors(JobTypeLedgerPurge, "purge")
		}
		return 0, err
	}

	if p.metrics != nil {
		p.metrics.IncJobsTotal(JobTypeLedgerPurge, StatusSuccess)
		p.metrics.ObserveJobDuration(JobTypeLedgerPurge, time.Since(started).Seconds())
	}
	if deleted > 0 {
		p.logger.InfoContext(ctx, "purged webhook ledger records",
			"deleted", deleted, "older_than", p.retention.String())
	}
	return deleted, nil
}
