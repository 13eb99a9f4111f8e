package webhook

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresLedger implements Ledger using the webhook_events table.
type PostgresLedger struct {
	db querier
}

// NewPostgresLedger creates a new Postgres-backed idempotency ledger.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// WithTx returns a copy of the ledger bound to the given transaction.
func (l *PostgresLedger) WithTx(tx *sql.Tx) *PostgresLedger {
	return &PostgresLedger{db: tx}
}

// Get retrieves the record for an external event id. Inside a transaction
// the row is locked so concurrent deliveries of the same event serialize.
func (l *PostgresLedger) Get(ctx context.Context, eventID string) (*EventRecord, error) {
	query := `SELECT id, event_id, event_type, status, result, retry_count, last_error,
		created_at, updated_at FROM webhook_events WHERE event_id = $1`
	if _, inTx := l.db.(*sql.Tx); inTx {
		query += ` FOR UPDATE`
	}
	var rec EventRecord
	err := l.db.QueryRowContext(ctx, query, eventID).Scan(
		&rec.ID, &rec.EventID, &rec.EventType, &rec.Status, &rec.Result,
		&rec.RetryCount, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	return &rec, nil
}

// MarkProcessed records a successful processing outcome.
func (l *PostgresLedger) MarkProcessed(ctx context.Context, eventID, eventType string, result []byte) error {
	query := `INSERT INTO webhook_events
		(id, event_id, event_type, status, result, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW(), NOW())
		ON CONFLICT (event_id) DO UPDATE SET
			status = EXCLUDED.status, result = EXCLUDED.result,
			last_error = NULL, updated_at = NOW()`
	_, err := l.db.ExecContext(ctx, query, uuid.New().String(), eventID, eventType, EventProcessed, result)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// MarkFailed records a failed processing attempt.
func (l *PostgresLedger) MarkFailed(ctx context.Context, eventID, eventType, lastError string) error {
	query := `INSERT INTO webhook_events
		(id, event_id, event_type, status, retry_count, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, NOW(), NOW())
		ON CONFLICT (event_id) DO UPDATE SET
			status = EXCLUDED.status,
			retry_count = webhook_events.retry_count + 1,
			last_error = EXCLUDED.last_error, updated_at = NOW()`
	_, err := l.db.ExecContext(ctx, query, uuid.New().String(), eventID, eventType, EventFailed, lastError)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}

// PurgeBefore deletes ledger records last touched before the cutoff.
func (l *PostgresLedger) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM webhook_events WHERE updated_at < $1`
	res, err := l.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge webhook events: %w", err)
	}
	return res.RowsAffected()
}
