package org

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository with in-memory storage.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu   sync.RWMutex
	orgs map[string]*Organization
}

// NewInMemoryRepository creates a new in-memory organization repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		orgs: make(map[string]*Organization),
	}
}

// Insert adds a new organization.
func (r *InMemoryRepository) Insert(ctx context.Context, o *Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	copied := *o
	r.orgs[o.ID] = &copied
	return nil
}

// GetByID retrieves an organization by ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orgs[id]
	if !ok {
		return nil, ErrOrganizationNotFound
	}
	copied := *o
	return &copied, nil
}

// UpdateMerchantStatus applies merchant onboarding side effects.
func (r *InMemoryRepository) UpdateMerchantStatus(ctx context.Context, orgID string, update MerchantStatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orgs[orgID]
	if !ok {
		return ErrOrganizationNotFound
	}
	o.MerchantStatus = update.Status
	if update.AccountID != nil {
		o.MerchantAccountID = update.AccountID
	}
	o.PaymentsReady = update.PaymentsReady
	o.UpdatedAt = time.Now()
	return nil
}

// UpdateSubscriptionTier applies a tier change, leaving CustomDomain intact.
func (r *InMemoryRepository) UpdateSubscriptionTier(ctx context.Context, orgID string, update TierUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orgs[orgID]
	if !ok {
		return ErrOrganizationNotFound
	}
	o.Tier = update.Tier
	o.SubscriptionStatus = update.Status
	o.UpdatedAt = time.Now()
	return nil
}
