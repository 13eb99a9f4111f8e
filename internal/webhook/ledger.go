package webhook

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Processing status for a ledger record.
const (
	EventProcessed = "processed"
	EventFailed    = "failed"
)

// Common errors for ledger operations.
var (
	// ErrEventNotFound is returned when an event id has not been seen.
	ErrEventNotFound = errors.New("webhook event not found")
)

// EventRecord tracks one sighting of an external webhook event id.
// A record with EventProcessed status is never reprocessed with side
// effects; only its cached result is returned. A record with EventFailed
// status is retried on redelivery.
type EventRecord struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"` // External event ID, unique
	EventType  string    `json:"event_type"`
	Status     string    `json:"status"` // processed or failed
	Result     []byte    `json:"result,omitempty"` // Cached processing outcome (JSON)
	RetryCount int       `json:"retry_count"`
	LastError  *string   `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Ledger defines persistence for processed-event records.
type Ledger interface {
	// Get retrieves the record for an external event id.
	// Returns ErrEventNotFound on first sighting.
	Get(ctx context.Context, eventID string) (*EventRecord, error)

	// MarkProcessed records a successful processing outcome, caching the
	// result for replays. Upserts: a previously failed record flips to
	// processed.
	MarkProcessed(ctx context.Context, eventID, eventType string, result []byte) error

	// MarkFailed records a failed processing attempt, incrementing the
	// retry count so a future redelivery is retried rather than treated
	// as done.
	MarkFailed(ctx context.Context, eventID, eventType, lastError string) error

	// PurgeBefore deletes records last touched before the cutoff and
	// returns the number removed. The gateway does not redeliver events
	// older than the retention window, so purged ids cannot resurface.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// InMemoryLedger implements Ledger with in-memory storage.
// Thread-safe via RWMutex.
type InMemoryLedger struct {
	mu      sync.RWMutex
	records map[string]*EventRecord // event_id -> record
}

// NewInMemoryLedger creates a new in-memory idempotency ledger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		records: make(map[string]*EventRecord),
	}
}

// Get retrieves the record for an external event id.
func (l *InMemoryLedger) Get(ctx context.Context, eventID string) (*EventRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	copied := *rec
	copied.Result = append([]byte(nil), rec.Result...)
	return &copied, nil
}

// MarkProcessed records a successful processing outcome.
func (l *InMemoryLedger) MarkProcessed(ctx context.Context, eventID, eventType string, result []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	rec, ok := l.records[eventID]
	if !ok {
		rec = &EventRecord{
			ID:        uuid.New().String(),
			EventID:   eventID,
			EventType: eventType,
			CreatedAt: now,
		}
		l.records[eventID] = rec
	}
	rec.Status = EventProcessed
	rec.Result = append([]byte(nil), result...)
	rec.LastError = nil
	rec.UpdatedAt = now
	return nil
}

// MarkFailed records a failed processing attempt.
func (l *InMemoryLedger) MarkFailed(ctx context.Context, eventID, eventType, lastError string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	rec, ok := l.records[eventID]
	if !ok {
		rec = &EventRecord{
			ID:        uuid.New().String(),
			EventID:   eventID,
			EventType: eventType,
			CreatedAt: now,
		}
		l.records[eventID] = rec
	}
	rec.Status = EventFailed
	rec.RetryCount++
	rec.LastError = &lastError
	rec.UpdatedAt = now
	return nil
}

// PurgeBefore deletes records last touched before the cutoff.
func (l *InMemoryLedger) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var deleted int64
	for eventID, rec := range l.records {
		if rec.UpdatedAt.Before(cutoff) {
			delete(l.records, eventID)
			deleted++
		}
	}
	return deleted, nil
}
