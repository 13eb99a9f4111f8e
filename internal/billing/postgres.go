package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresSubscriptionRepository implements SubscriptionRepository using the
// subscriptions table.
type PostgresSubscriptionRepository struct {
	db querier
}

// NewPostgresSubscriptionRepository creates a new Postgres-backed subscription repository.
func NewPostgresSubscriptionRepository(db *sql.DB) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *PostgresSubscriptionRepository) WithTx(tx *sql.Tx) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: tx}
}

const subscriptionColumns = `id, org_id, plan_id, status, failed_attempts,
	primary_payment_method_id, last_billing_date, next_billing_date,
	next_retry_date, first_failure_at, grace_period_ends_at, created_at, updated_at`

// Insert adds a new subscription.
func (r *PostgresSubscriptionRepository) Insert(ctx context.Context, sub *Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.Status == "" {
		sub.Status = SubscriptionActive
	}
	query := `INSERT INTO subscriptions
		(id, org_id, plan_id, status, failed_attempts, primary_payment_method_id,
		 last_billing_date, next_billing_date, next_retry_date, first_failure_at,
		 grace_period_ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		sub.ID, sub.OrgID, sub.PlanID, sub.Status, sub.FailedAttempts,
		sub.PrimaryPaymentMethodID, sub.LastBillingDate, sub.NextBillingDate,
		sub.NextRetryDate, sub.FirstFailureAt, sub.GracePeriodEndsAt,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

// GetByID retrieves a subscription. Inside a transaction the row is locked,
// which enforces single-flight renewal across processes.
func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, id string) (*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	if _, inTx := r.db.(*sql.Tx); inTx {
		query += ` FOR UPDATE`
	}
	var sub Subscription
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&sub.ID, &sub.OrgID, &sub.PlanID, &sub.Status, &sub.FailedAttempts,
		&sub.PrimaryPaymentMethodID, &sub.LastBillingDate, &sub.NextBillingDate,
		&sub.NextRetryDate, &sub.FirstFailureAt, &sub.GracePeriodEndsAt,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

// Update persists changes to an existing subscription.
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, sub *Subscription) error {
	query := `UPDATE subscriptions SET
		status = $2, failed_attempts = $3, primary_payment_method_id = $4,
		last_billing_date = $5, next_billing_date = $6, next_retry_date = $7,
		first_failure_at = $8, grace_period_ends_at = $9, updated_at = NOW()
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query,
		sub.ID, sub.Status, sub.FailedAttempts, sub.PrimaryPaymentMethodID,
		sub.LastBillingDate, sub.NextBillingDate, sub.NextRetryDate,
		sub.FirstFailureAt, sub.GracePeriodEndsAt)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// ListDue returns ids of non-canceled subscriptions due for billing or retry.
func (r *PostgresSubscriptionRepository) ListDue(ctx context.Context, now time.Time) ([]string, error) {
	query := `SELECT id FROM subscriptions
		WHERE status != $1
		AND (
			(next_retry_date IS NOT NULL AND next_retry_date <= $2)
			OR (next_retry_date IS NULL AND next_billing_date <= $2)
		)
		ORDER BY next_billing_date`
	rows, err := r.db.QueryContext(ctx, query, SubscriptionCanceled, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subscription id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IncrementFailedAttempts bumps the failure counter directly.
func (r *PostgresSubscriptionRepository) IncrementFailedAttempts(ctx context.Context, id string) error {
	query := `UPDATE subscriptions SET failed_attempts = failed_attempts + 1, updated_at = NOW()
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment failed attempts: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// PostgresInstrumentRepository implements InstrumentRepository using the
// payment_instruments table.
type PostgresInstrumentRepository struct {
	db querier
}

// NewPostgresInstrumentRepository creates a new Postgres-backed instrument repository.
func NewPostgresInstrumentRepository(db *sql.DB) *PostgresInstrumentRepository {
	return &PostgresInstrumentRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *PostgresInstrumentRepository) WithTx(tx *sql.Tx) *PostgresInstrumentRepository {
	return &PostgresInstrumentRepository{db: tx}
}

const instrumentColumns = `id, org_id, gateway_ref, priority, is_default, status,
	success_count, failure_count, created_at, updated_at`

// Insert adds a new instrument.
func (r *PostgresInstrumentRepository) Insert(ctx context.Context, ins *PaymentInstrument) error {
	if ins.ID == "" {
		ins.ID = uuid.New().String()
	}
	if ins.Status == "" {
		ins.Status = InstrumentActive
	}
	query := `INSERT INTO payment_instruments
		(id, org_id, gateway_ref, priority, is_default, status, success_count,
		 failure_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		ins.ID, ins.OrgID, ins.GatewayRef, ins.Priority, ins.IsDefault,
		ins.Status, ins.SuccessCount, ins.FailureCount,
	).Scan(&ins.CreatedAt, &ins.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert instrument: %w", err)
	}
	return nil
}

// GetByID retrieves an instrument by ID.
func (r *PostgresInstrumentRepository) GetByID(ctx context.Context, id string) (*PaymentInstrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM payment_instruments WHERE id = $1`
	var ins PaymentInstrument
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&ins.ID, &ins.OrgID, &ins.GatewayRef, &ins.Priority, &ins.IsDefault,
		&ins.Status, &ins.SuccessCount, &ins.FailureCount, &ins.CreatedAt, &ins.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInstrumentNotFound
		}
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}
	return &ins, nil
}

// ListActiveByOrg returns all active instruments for an organization.
func (r *PostgresInstrumentRepository) ListActiveByOrg(ctx context.Context, orgID string) ([]*PaymentInstrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM payment_instruments
		WHERE org_id = $1 AND status = $2`
	rows, err := r.db.QueryContext(ctx, query, orgID, InstrumentActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	defer rows.Close()

	var instruments []*PaymentInstrument
	for rows.Next() {
		var ins PaymentInstrument
		if err := rows.Scan(&ins.ID, &ins.OrgID, &ins.GatewayRef, &ins.Priority,
			&ins.IsDefault, &ins.Status, &ins.SuccessCount, &ins.FailureCount,
			&ins.CreatedAt, &ins.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		instruments = append(instruments, &ins)
	}
	return instruments, rows.Err()
}

// RecordSuccess increments the success usage counter.
func (r *PostgresInstrumentRepository) RecordSuccess(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE payment_instruments
		SET success_count = success_count + 1, updated_at = NOW() WHERE id = $1`, id)
}

// RecordFailure increments the failure usage counter.
func (r *PostgresInstrumentRepository) RecordFailure(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE payment_instruments
		SET failure_count = failure_count + 1, updated_at = NOW() WHERE id = $1`, id)
}

// Deactivate soft-removes an instrument.
func (r *PostgresInstrumentRepository) Deactivate(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE payment_instruments
		SET status = 'inactive', updated_at = NOW() WHERE id = $1`, id)
}

func (r *PostgresInstrumentRepository) exec(ctx context.Context, query, id string) error {
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to update instrument: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrInstrumentNotFound
	}
	return nil
}
