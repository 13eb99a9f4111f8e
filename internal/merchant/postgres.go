package merchant

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// querier abstracts *sql.DB and *sql.Tx so the repository can participate
// in the webhook processor's transactional unit.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresApplicationRepository implements ApplicationRepository using the
// merchant_applications table.
type PostgresApplicationRepository struct {
	db querier
}

// NewPostgresApplicationRepository creates a new Postgres-backed application repository.
func NewPostgresApplicationRepository(db *sql.DB) *PostgresApplicationRepository {
	return &PostgresApplicationRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *PostgresApplicationRepository) WithTx(tx *sql.Tx) *PostgresApplicationRepository {
	return &PostgresApplicationRepository{db: tx}
}

const applicationColumns = `id, external_id, external_account_id, org_id, status,
	submission_status, underwriting_status, submit_attempts, last_error, created_at, updated_at`

// Insert adds a new application.
func (r *PostgresApplicationRepository) Insert(ctx context.Context, app *Application) error {
	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	query := `INSERT INTO merchant_applications
		(id, external_id, external_account_id, org_id, status, submission_status,
		 underwriting_status, submit_attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		app.ID, app.ExternalID, app.ExternalAccountID, app.OrgID, app.Status,
		app.SubmissionStatus, app.UnderwritingStatus, app.SubmitAttempts, app.LastError,
	).Scan(&app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return ErrApplicationExists
		}
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// GetByID retrieves an application by its internal ID.
func (r *PostgresApplicationRepository) GetByID(ctx context.Context, id string) (*Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM merchant_applications WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByExternalID retrieves an application by the gateway's application ID.
// The row is locked for update when called inside a transaction so two
// concurrent deliveries of the same event cannot both apply effects.
func (r *PostgresApplicationRepository) GetByExternalID(ctx context.Context, externalID string) (*Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM merchant_applications WHERE external_id = $1`
	if _, inTx := r.db.(*sql.Tx); inTx {
		query += ` FOR UPDATE`
	}
	return r.scanOne(r.db.QueryRowContext(ctx, query, externalID))
}

// GetByOrgID retrieves the application owned by an organization.
func (r *PostgresApplicationRepository) GetByOrgID(ctx context.Context, orgID string) (*Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM merchant_applications WHERE org_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, orgID))
}

// Update persists changes to an existing application.
func (r *PostgresApplicationRepository) Update(ctx context.Context, app *Application) error {
	query := `UPDATE merchant_applications SET
		external_account_id = $2, status = $3, submission_status = $4,
		underwriting_status = $5, submit_attempts = $6, last_error = $7, updated_at = NOW()
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query,
		app.ID, app.ExternalAccountID, app.Status, app.SubmissionStatus,
		app.UnderwritingStatus, app.SubmitAttempts, app.LastError)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrApplicationNotFound
	}
	return nil
}

func (r *PostgresApplicationRepository) scanOne(row *sql.Row) (*Application, error) {
	var app Application
	err := row.Scan(&app.ID, &app.ExternalID, &app.ExternalAccountID, &app.OrgID,
		&app.Status, &app.SubmissionStatus, &app.UnderwritingStatus,
		&app.SubmitAttempts, &app.LastError, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}
	return &app, nil
}
