package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresRepository implements Repository using the audit_logs table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed audit repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const auditColumns = `id, actor_id, entity_type, entity_id, action, outcome,
	request_id, ip_address, user_agent, created_at`

// Log records an admin action.
func (r *PostgresRepository) Log(ctx context.Context, entry LogEntry) (*AuditLog, error) {
	log := &AuditLog{
		ID:         uuid.New().String(),
		ActorID:    entry.ActorID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Outcome:    entry.Outcome,
		RequestID:  entry.RequestID,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
	}

	query := `INSERT INTO audit_logs
		(id, actor_id, entity_type, entity_id, action, outcome,
			request_id, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		log.ID, log.ActorID, log.EntityType, log.EntityID, log.Action, log.Outcome,
		log.RequestID, log.IPAddress, log.UserAgent).Scan(&log.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert audit log: %w", err)
	}
	return log, nil
}

// QueryByEntity retrieves entries for a specific entity, newest first.
func (r *PostgresRepository) QueryByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at DESC`
	args := []any{entityType, entityID}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	return r.queryLogs(ctx, query, args...)
}

// QueryByActor retrieves entries for a specific operator, newest first.
func (r *PostgresRepository) QueryByActor(ctx context.Context, actorID string, limit int) ([]*AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs
		WHERE actor_id = $1 ORDER BY created_at DESC`
	args := []any{actorID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.queryLogs(ctx, query, args...)
}

func (r *PostgresRepository) queryLogs(ctx context.Context, query string, args ...any) ([]*AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var results []*AuditLog
	for rows.Next() {
		var log AuditLog
		if err := rows.Scan(&log.ID, &log.ActorID, &log.EntityType, &log.EntityID,
			&log.Action, &log.Outcome, &log.RequestID, &log.IPAddress,
			&log.UserAgent, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		results = append(results, &log)
	}
	return results, rows.Err()
}
