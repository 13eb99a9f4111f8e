// Package org provides the organization collaborator consumed by merchant
// onboarding and billing: merchant-status propagation on approval and
// subscription-tier changes on downgrade.
package org

import (
	"context"
	"errors"
	"time"
)

// Tier is an organization's subscription tier.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// ErrOrganizationNotFound is returned when an organization is not found.
var ErrOrganizationNotFound = errors.New("organization not found")

// Organization represents a nonprofit tenant on the platform.
type Organization struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Tier               Tier      `json:"tier"`
	SubscriptionStatus string    `json:"subscription_status"`
	MerchantStatus     string    `json:"merchant_status"`
	MerchantAccountID  *string   `json:"merchant_account_id,omitempty"`
	PaymentsReady      bool      `json:"payments_ready"`
	// CustomDomain is tier-gated configuration. Downgrades revoke the
	// entitlement but preserve the value so the organization can
	// reactivate without reconfiguration.
	CustomDomain *string   `json:"custom_domain,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MerchantStatusUpdate carries the merchant-side fields propagated to the
// organization when its application advances.
type MerchantStatusUpdate struct {
	Status string
	// AccountID is the gateway merchant account, set on approval.
	AccountID *string
	// PaymentsReady flags the organization as able to accept charges.
	PaymentsReady bool
}

// TierUpdate carries a subscription tier change.
type TierUpdate struct {
	Tier   Tier
	Status string
}

// Service is the organization contract consumed by the webhook processor
// and the billing state machine.
type Service interface {
	// UpdateMerchantStatus applies merchant onboarding side effects.
	UpdateMerchantStatus(ctx context.Context, orgID string, update MerchantStatusUpdate) error

	// UpdateSubscriptionTier applies a tier change. Tier-gated
	// configuration such as CustomDomain is never cleared here.
	UpdateSubscriptionTier(ctx context.Context, orgID string, update TierUpdate) error
}

// Repository defines persistence for organizations.
type Repository interface {
	Service

	Insert(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id string) (*Organization, error)
}
