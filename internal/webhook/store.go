package webhook

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/lumenfund/lumenfund/internal/merchant"
	"github.com/lumenfund/lumenfund/internal/org"
)

// InMemoryStore implements Store over in-memory repositories. Atomicity is
// approximated by serializing all units behind one mutex, which also gives
// the single-flight property for concurrent deliveries of the same event.
// Effects of a failed unit are not rolled back; tests that need rollback
// semantics exercise the Postgres store.
type InMemoryStore struct {
	mu     sync.Mutex
	stores Stores
}

// NewInMemoryStore creates a Store over the given in-memory collaborators.
func NewInMemoryStore(ledger Ledger, apps merchant.ApplicationRepository, orgs org.Service) *InMemoryStore {
	return &InMemoryStore{
		stores: Stores{Ledger: ledger, Applications: apps, Orgs: orgs},
	}
}

// Execute runs fn while holding the store lock.
func (s *InMemoryStore) Execute(ctx context.Context, fn func(s Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.stores)
}

// FailureLedger returns the underlying ledger.
func (s *InMemoryStore) FailureLedger() Ledger {
	return s.stores.Ledger
}

// PostgresStore implements Store with one database transaction per unit.
// The ledger row lock taken by Get serializes concurrent deliveries of the
// same event id.
type PostgresStore struct {
	db     *sql.DB
	ledger *PostgresLedger
	apps   *merchant.PostgresApplicationRepository
	orgs   *org.PostgresRepository
}

// NewPostgresStore creates a transactional Store over a Postgres database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		ledger: NewPostgresLedger(db),
		apps:   merchant.NewPostgresApplicationRepository(db),
		orgs:   org.NewPostgresRepository(db),
	}
}

// Execute runs fn inside a single database transaction.
func (s *PostgresStore) Execute(ctx context.Context, fn func(s Stores) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin webhook transaction: %w", err)
	}

	stores := Stores{
		Ledger:       s.ledger.WithTx(tx),
		Applications: s.apps.WithTx(tx),
		Orgs:         s.orgs.WithTx(tx),
	}

	if err := fn(stores); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed after %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit webhook transaction: %w", err)
	}
	return nil
}

// FailureLedger returns a non-transactional ledger handle for best-effort
// failure recording after rollback.
func (s *PostgresStore) FailureLedger() Ledger {
	return s.ledger
}
