package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumenfund/lumenfund/internal/org"
)

// Subscription status values.
const (
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// Billing intervals for plans.
const (
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

// Common errors for subscription operations.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrSubscriptionCanceled is returned when a billing cycle is
	// attempted against a terminal subscription.
	ErrSubscriptionCanceled = errors.New("subscription is canceled")
	ErrPlanNotFound         = errors.New("plan not found")
)

// Plan describes what a subscription bills for.
type Plan struct {
	ID          string   `json:"id"`
	Tier        org.Tier `json:"tier"`
	AmountCents int64    `json:"amount_cents"`
	Currency    string   `json:"currency"`
	Interval    string   `json:"interval"` // monthly or yearly
}

// NextBilling advances a billing date by one plan interval.
func (p *Plan) NextBilling(from time.Time) time.Time {
	if p.Interval == IntervalYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

// DefaultPlans returns the platform's built-in plan catalog.
func DefaultPlans() []*Plan {
	return []*Plan{
		{ID: "plan_pro_monthly", Tier: org.TierPro, AmountCents: 1900, Currency: "USD", Interval: IntervalMonthly},
		{ID: "plan_pro_yearly", Tier: org.TierPro, AmountCents: 19900, Currency: "USD", Interval: IntervalYearly},
	}
}

// Subscription represents an organization's recurring platform subscription.
// The terminal canceled state is immutable except for audit fields.
type Subscription struct {
	ID              string  `json:"id"`
	OrgID           string  `json:"org_id"`
	PlanID          string  `json:"plan_id"`
	Status          string  `json:"status"`
	FailedAttempts  int     `json:"failed_attempts"` // 0-3
	// PrimaryPaymentMethodID is the instrument that last succeeded.
	PrimaryPaymentMethodID *string    `json:"primary_payment_method_id,omitempty"`
	LastBillingDate        *time.Time `json:"last_billing_date,omitempty"`
	NextBillingDate        time.Time  `json:"next_billing_date"`
	NextRetryDate          *time.Time `json:"next_retry_date,omitempty"`
	FirstFailureAt         *time.Time `json:"first_failure_at,omitempty"`
	GracePeriodEndsAt      *time.Time `json:"grace_period_ends_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// SubscriptionRepository defines persistence for subscriptions.
type SubscriptionRepository interface {
	// Insert adds a new subscription.
	Insert(ctx context.Context, sub *Subscription) error

	// GetByID retrieves a subscription. Returns ErrSubscriptionNotFound if absent.
	GetByID(ctx context.Context, id string) (*Subscription, error)

	// Update persists changes to an existing subscription.
	Update(ctx context.Context, sub *Subscription) error

	// ListDue returns ids of non-canceled subscriptions whose next billing
	// or retry date is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]string, error)

	// IncrementFailedAttempts bumps the failure counter directly. Used
	// best-effort outside a failed transaction so a crash mid-cycle does
	// not lose track of the attempt.
	IncrementFailedAttempts(ctx context.Context, id string) error
}

// PlanRepository defines lookup for billing plans.
type PlanRepository interface {
	// GetByID retrieves a plan. Returns ErrPlanNotFound if absent.
	GetByID(ctx context.Context, id string) (*Plan, error)
}

// InMemoryPlanRepository implements PlanRepository with a fixed plan set.
type InMemoryPlanRepository struct {
	mu    sync.RWMutex
	plans map[string]*Plan
}

// NewInMemoryPlanRepository creates a plan repository seeded with the given plans.
func NewInMemoryPlanRepository(plans ...*Plan) *InMemoryPlanRepository {
	r := &InMemoryPlanRepository{plans: make(map[string]*Plan)}
	for _, p := range plans {
		copied := *p
		r.plans[p.ID] = &copied
	}
	return r
}

// GetByID retrieves a plan.
func (r *InMemoryPlanRepository) GetByID(ctx context.Context, id string) (*Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	copied := *p
	return &copied, nil
}

// InMemorySubscriptionRepository implements SubscriptionRepository with
// in-memory storage. Thread-safe via RWMutex.
type InMemorySubscriptionRepository struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewInMemorySubscriptionRepository creates a new in-memory subscription repository.
func NewInMemorySubscriptionRepository() *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		subs: make(map[string]*Subscription),
	}
}

// Insert adds a new subscription.
func (r *InMemorySubscriptionRepository) Insert(ctx context.Context, sub *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.Status == "" {
		sub.Status = SubscriptionActive
	}
	now := time.Now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	copied := *sub
	r.subs[sub.ID] = &copied
	return nil
}

// GetByID retrieves a subscription by ID.
func (r *InMemorySubscriptionRepository) GetByID(ctx context.Context, id string) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	copied := *sub
	return &copied, nil
}

// Update persists changes to an existing subscription.
func (r *InMemorySubscriptionRepository) Update(ctx context.Context, sub *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[sub.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	sub.UpdatedAt = time.Now()
	copied := *sub
	r.subs[sub.ID] = &copied
	return nil
}

// ListDue returns ids of non-canceled subscriptions due for billing or retry.
func (r *InMemorySubscriptionRepository) ListDue(ctx context.Context, now time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []string
	for _, sub := range r.subs {
		if sub.Status == SubscriptionCanceled {
			continue
		}
		if sub.NextRetryDate != nil {
			if !sub.NextRetryDate.After(now) {
				due = append(due, sub.ID)
			}
			continue
		}
		if !sub.NextBillingDate.After(now) {
			due = append(due, sub.ID)
		}
	}
	return due, nil
}

// IncrementFailedAttempts bumps the failure counter directly.
func (r *InMemorySubscriptionRepository) IncrementFailedAttempts(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	sub.FailedAttempts++
	sub.UpdatedAt = time.Now()
	return nil
}
