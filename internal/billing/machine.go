package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumenfund/lumenfund/internal/gateway"
	"github.com/lumenfund/lumenfund/internal/org"
)

// Cycle outcomes.
const (
	CycleCharged         = "charged"
	CycleRetryScheduled  = "retry_scheduled"
	CycleCanceled        = "canceled"
	CycleNoPaymentMethod = "no_payment_method"
)

// CycleResult describes what one billing cycle did to a subscription.
type CycleResult struct {
	SubscriptionID string         `json:"subscription_id"`
	Outcome        string         `json:"outcome"`
	Charge         *ChargeOutcome `json:"-"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	NextBillingAt  *time.Time     `json:"next_billing_at,omitempty"`
}

// Stores bundles the collaborators one billing cycle mutates. The whole
// renewal (instrument resolution, orchestrated attempts, state write) runs
// inside one unit keyed on the subscription id.
type Stores struct {
	Subscriptions SubscriptionRepository
	Instruments   InstrumentRepository
	Plans         PlanRepository
	Orgs          org.Service
}

// Store provides the single-flight transactional boundary around a cycle.
type Store interface {
	// Execute runs fn as the only in-flight cycle for subscriptionID.
	Execute(ctx context.Context, subscriptionID string, fn func(s Stores) error) error

	// FailureCounter returns a non-transactional handle used to bump the
	// failure counter best-effort after a rolled-back cycle.
	FailureCounter() SubscriptionRepository
}

// StateMachine governs the subscription lifecycle across renewals, failures,
// grace periods, and downgrade.
type StateMachine struct {
	store   Store
	gateway gateway.Client
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time // For testability
}

// NewStateMachine creates a billing state machine. metrics may be nil.
func NewStateMachine(store Store, gw gateway.Client, metrics *Metrics, logger *slog.Logger) *StateMachine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateMachine{
		store:   store,
		gateway: gw,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// ProcessCycle runs one billing cycle for a subscription: resolve the
// instrument order, orchestrate charge attempts, and persist the outcome
// with the next scheduled action.
func (m *StateMachine) ProcessCycle(ctx context.Context, subscriptionID string) (*CycleResult, error) {
	started := m.now()
	var result *CycleResult
	var chargeFailed bool

	err := m.store.Execute(ctx, subscriptionID, func(s Stores) error {
		var err error
		result, chargeFailed, err = m.runCycle(ctx, s, subscriptionID)
		return err
	})

	if err != nil {
		if chargeFailed && !errors.Is(err, ErrSubscriptionCanceled) {
			// The charge attempts happened even though the state write was
			// lost; bump the counter best-effort so the attempt is not
			// forgotten.
			if cErr := m.store.FailureCounter().IncrementFailedAttempts(ctx, subscriptionID); cErr != nil {
				m.logger.ErrorContext(ctx, "failed to record cycle failure after rollback",
					"subscription_id", subscriptionID, "error", cErr)
			}
		}
		m.observe(started, "error")
		return nil, err
	}

	m.observe(started, result.Outcome)
	return result, nil
}

func (m *StateMachine) runCycle(ctx context.Context, s Stores, subscriptionID string) (*CycleResult, bool, error) {
	sub, err := s.Subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, false, err
	}
	if sub.Status == SubscriptionCanceled {
		return nil, false, ErrSubscriptionCanceled
	}

	plan, err := s.Plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve plan %s: %w", sub.PlanID, err)
	}

	instruments, err := s.Instruments.ListActiveByOrg(ctx, sub.OrgID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list instruments: %w", err)
	}

	preferred := ""
	if sub.PrimaryPaymentMethodID != nil {
		preferred = *sub.PrimaryPaymentMethodID
	}
	ordered := Prioritize(instruments, preferred)

	if len(ordered) == 0 {
		// Distinct terminal condition: nothing was attempted, so the
		// failure counter and the retry path are untouched.
		sub.Status = SubscriptionPastDue
		sub.NextRetryDate = nil
		if err := s.Subscriptions.Update(ctx, sub); err != nil {
			return nil, false, err
		}
		m.logger.WarnContext(ctx, "no payment method available",
			"subscription_id", sub.ID, "org_id", sub.OrgID)
		return &CycleResult{SubscriptionID: sub.ID, Outcome: CycleNoPaymentMethod}, false, nil
	}

	orchestrator := NewOrchestrator(m.gateway, s.Instruments, m.metrics, m.logger)
	outcome := orchestrator.Charge(ctx, ordered, plan.AmountCents, plan.Currency, sub.OrgID)
	now := m.now()

	if outcome.Success {
		sub.Status = SubscriptionActive
		sub.FailedAttempts = 0
		sub.PrimaryPaymentMethodID = &outcome.Instrument.ID
		sub.LastBillingDate = &now
		sub.NextBillingDate = plan.NextBilling(now)
		sub.NextRetryDate = nil
		sub.FirstFailureAt = nil
		sub.GracePeriodEndsAt = nil
		if err := s.Subscriptions.Update(ctx, sub); err != nil {
			return nil, false, err
		}
		next := sub.NextBillingDate
		return &CycleResult{
			SubscriptionID: sub.ID,
			Outcome:        CycleCharged,
			Charge:         outcome,
			NextBillingAt:  &next,
		}, false, nil
	}

	// All instruments exhausted: one failed cycle.
	sub.FailedAttempts++
	if sub.FirstFailureAt == nil {
		sub.FirstFailureAt = &now
	}
	action := Schedule(sub.FailedAttempts, *sub.FirstFailureAt, now)
	sub.GracePeriodEndsAt = &action.GraceEndsAt

	if action.Terminal {
		sub.Status = SubscriptionCanceled
		sub.NextRetryDate = nil
		if err := s.Subscriptions.Update(ctx, sub); err != nil {
			return nil, true, err
		}
		// Downgrade revokes the entitlement; tier-gated configuration is
		// preserved so the organization can reactivate without
		// reconfiguration.
		tierUpdate := org.TierUpdate{Tier: org.TierFree, Status: SubscriptionCanceled}
		if err := s.Orgs.UpdateSubscriptionTier(ctx, sub.OrgID, tierUpdate); err != nil {
			return nil, true, fmt.Errorf("failed to downgrade organization: %w", err)
		}
		m.logger.WarnContext(ctx, "subscription canceled after grace period",
			"subscription_id", sub.ID, "org_id", sub.OrgID,
			"failed_attempts", sub.FailedAttempts)
		return &CycleResult{SubscriptionID: sub.ID, Outcome: CycleCanceled, Charge: outcome}, true, nil
	}

	sub.NextRetryDate = action.NextRetryAt
	if sub.FailedAttempts >= MaxFailedAttempts {
		sub.Status = SubscriptionPastDue
	}
	if err := s.Subscriptions.Update(ctx, sub); err != nil {
		return nil, true, err
	}
	m.logger.InfoContext(ctx, "billing cycle failed, retry scheduled",
		"subscription_id", sub.ID, "failed_attempts", sub.FailedAttempts,
		"next_retry_at", action.NextRetryAt)
	return &CycleResult{
		SubscriptionID: sub.ID,
		Outcome:        CycleRetryScheduled,
		Charge:         outcome,
		NextRetryAt:    action.NextRetryAt,
	}, true, nil
}

func (m *StateMachine) observe(started time.Time, outcome string) {
	if m.metrics != nil {
		m.metrics.RecordCycle(outcome, m.now().Sub(started))
	}
}
