package org

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresRepository implements Repository using the organizations table.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository creates a new Postgres-backed organization repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *PostgresRepository) WithTx(tx *sql.Tx) *PostgresRepository {
	return &PostgresRepository{db: tx}
}

// Insert adds a new organization.
func (r *PostgresRepository) Insert(ctx context.Context, o *Organization) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	query := `INSERT INTO organizations
		(id, name, tier, subscription_status, merchant_status, merchant_account_id,
		 payments_ready, custom_domain, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		o.ID, o.Name, o.Tier, o.SubscriptionStatus, o.MerchantStatus,
		o.MerchantAccountID, o.PaymentsReady, o.CustomDomain,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert organization: %w", err)
	}
	return nil
}

// GetByID retrieves an organization by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Organization, error) {
	query := `SELECT id, name, tier, subscription_status, merchant_status,
		merchant_account_id, payments_ready, custom_domain, created_at, updated_at
		FROM organizations WHERE id = $1`
	var o Organization
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&o.ID, &o.Name, &o.Tier, &o.SubscriptionStatus, &o.MerchantStatus,
		&o.MerchantAccountID, &o.PaymentsReady, &o.CustomDomain, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &o, nil
}

// UpdateMerchantStatus applies merchant onboarding side effects.
func (r *PostgresRepository) UpdateMerchantStatus(ctx context.Context, orgID string, update MerchantStatusUpdate) error {
	query := `UPDATE organizations SET
		merchant_status = $2,
		merchant_account_id = COALESCE($3, merchant_account_id),
		payments_ready = $4,
		updated_at = NOW()
		WHERE id = $1`
	return r.exec(ctx, query, orgID, update.Status, update.AccountID, update.PaymentsReady)
}

// UpdateSubscriptionTier applies a tier change. custom_domain is deliberately
// not touched so a downgraded organization keeps its configuration.
func (r *PostgresRepository) UpdateSubscriptionTier(ctx context.Context, orgID string, update TierUpdate) error {
	query := `UPDATE organizations SET
		tier = $2, subscription_status = $3, updated_at = NOW()
		WHERE id = $1`
	return r.exec(ctx, query, orgID, update.Tier, update.Status)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}
