// Package billing provides recurring subscription billing: prioritized
// payment-instrument fallback, failure-tracked retry scheduling, and the
// grace-period downgrade policy.
package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Instrument status values.
const (
	InstrumentActive   = "active"
	InstrumentInactive = "inactive"
)

// Common errors for payment instrument operations.
var (
	ErrInstrumentNotFound = errors.New("payment instrument not found")
	// ErrNoPaymentMethod is the distinct terminal condition for an
	// organization with no active instruments. It is not a charge failure
	// and does not enter the retry path.
	ErrNoPaymentMethod = errors.New("no payment method available")
)

// PaymentInstrument is a stored, reusable reference to a payer's funding
// source held by the gateway. Instruments referenced by a subscription are
// soft-deactivated, never physically removed.
type PaymentInstrument struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id"`
	GatewayRef   string    `json:"gateway_ref"` // Gateway-side instrument reference
	Priority     int       `json:"priority"`    // Ascending: lower is tried first
	IsDefault    bool      `json:"is_default"`
	Status       string    `json:"status"` // active or inactive
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Active reports whether the instrument may be charged.
func (i *PaymentInstrument) Active() bool {
	return i.Status == InstrumentActive
}

// InstrumentRepository defines persistence for payment instruments.
type InstrumentRepository interface {
	// Insert adds a new instrument.
	Insert(ctx context.Context, ins *PaymentInstrument) error

	// GetByID retrieves an instrument. Returns ErrInstrumentNotFound if absent.
	GetByID(ctx context.Context, id string) (*PaymentInstrument, error)

	// ListActiveByOrg returns all active instruments for an organization,
	// in no particular order; callers apply Prioritize.
	ListActiveByOrg(ctx context.Context, orgID string) ([]*PaymentInstrument, error)

	// RecordSuccess increments the instrument's success usage counter.
	RecordSuccess(ctx context.Context, id string) error

	// RecordFailure increments the instrument's failure usage counter.
	RecordFailure(ctx context.Context, id string) error

	// Deactivate soft-removes an instrument.
	Deactivate(ctx context.Context, id string) error
}

// InMemoryInstrumentRepository implements InstrumentRepository with
// in-memory storage. Thread-safe via RWMutex.
type InMemoryInstrumentRepository struct {
	mu          sync.RWMutex
	instruments map[string]*PaymentInstrument
}

// NewInMemoryInstrumentRepository creates a new in-memory instrument repository.
func NewInMemoryInstrumentRepository() *InMemoryInstrumentRepository {
	return &InMemoryInstrumentRepository{
		instruments: make(map[string]*PaymentInstrument),
	}
}

// Insert adds a new instrument.
func (r *InMemoryInstrumentRepository) Insert(ctx context.Context, ins *PaymentInstrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ins.ID == "" {
		ins.ID = uuid.New().String()
	}
	if ins.Status == "" {
		ins.Status = InstrumentActive
	}
	now := time.Now()
	if ins.CreatedAt.IsZero() {
		ins.CreatedAt = now
	}
	ins.UpdatedAt = now

	copied := *ins
	r.instruments[ins.ID] = &copied
	return nil
}

// GetByID retrieves an instrument by ID.
func (r *InMemoryInstrumentRepository) GetByID(ctx context.Context, id string) (*PaymentInstrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ins, ok := r.instruments[id]
	if !ok {
		return nil, ErrInstrumentNotFound
	}
	copied := *ins
	return &copied, nil
}

// ListActiveByOrg returns all active instruments for an organization.
func (r *InMemoryInstrumentRepository) ListActiveByOrg(ctx context.Context, orgID string) ([]*PaymentInstrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*PaymentInstrument
	for _, ins := range r.instruments {
		if ins.OrgID == orgID && ins.Active() {
			copied := *ins
			result = append(result, &copied)
		}
	}
	return result, nil
}

// RecordSuccess increments the success usage counter.
func (r *InMemoryInstrumentRepository) RecordSuccess(ctx context.Context, id string) error {
	return r.tick(id, func(ins *PaymentInstrument) { ins.SuccessCount++ })
}

// RecordFailure increments the failure usage counter.
func (r *InMemoryInstrumentRepository) RecordFailure(ctx context.Context, id string) error {
	return r.tick(id, func(ins *PaymentInstrument) { ins.FailureCount++ })
}

// Deactivate soft-removes an instrument.
func (r *InMemoryInstrumentRepository) Deactivate(ctx context.Context, id string) error {
	return r.tick(id, func(ins *PaymentInstrument) { ins.Status = InstrumentInactive })
}

func (r *InMemoryInstrumentRepository) tick(id string, mutate func(*PaymentInstrument)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ins, ok := r.instruments[id]
	if !ok {
		return ErrInstrumentNotFound
	}
	mutate(ins)
	ins.UpdatedAt = time.Now()
	return nil
}
