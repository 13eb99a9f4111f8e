package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for audit log entries.
type Repository interface {
	// Log records an admin action and returns the created entry.
	Log(ctx context.Context, entry LogEntry) (*AuditLog, error)

	// QueryByEntity retrieves entries for a specific entity, newest first.
	// Limit caps the number of entries returned (0 = no limit).
	QueryByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*AuditLog, error)

	// QueryByActor retrieves entries for a specific operator, newest first.
	// Limit caps the number of entries returned (0 = no limit).
	QueryByActor(ctx context.Context, actorID string, limit int) ([]*AuditLog, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu   sync.RWMutex
	logs map[string]*AuditLog
	// Insertion order for queries
	order []string
}

// NewInMemoryRepository creates a new in-memory audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		logs:  make(map[string]*AuditLog),
		order: make([]string, 0),
	}
}

// Log records an admin action.
func (r *InMemoryRepository) Log(ctx context.Context, entry LogEntry) (*AuditLog, error) {
	log := &AuditLog{
		ID:         uuid.New().String(),
		ActorID:    entry.ActorID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Outcome:    entry.Outcome,
		CreatedAt:  time.Now().UTC(),
		RequestID:  entry.RequestID,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
	}

	r.mu.Lock()
	r.logs[log.ID] = log
	r.order = append(r.order, log.ID)
	r.mu.Unlock()

	logCopy := *log
	return &logCopy, nil
}

// QueryByEntity retrieves entries for a specific entity, newest first.
func (r *InMemoryRepository) QueryByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*AuditLog
	for i := len(r.order) - 1; i >= 0; i-- {
		log := r.logs[r.order[i]]
		if log.EntityType == entityType && log.EntityID == entityID {
			logCopy := *log
			results = append(results, &logCopy)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

// QueryByActor retrieves entries for a specific operator, newest first.
func (r *InMemoryRepository) QueryByActor(ctx context.Context, actorID string, limit int) ([]*AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*AuditLog
	for i := len(r.order) - 1; i >= 0; i-- {
		log := r.logs[r.order[i]]
		if log.ActorID == actorID {
			logCopy := *log
			results = append(results, &logCopy)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}
