package billing

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/lumenfund/lumenfund/internal/org"
)

// InMemoryStore implements Store over in-memory repositories. Single-flight
// per subscription is enforced with a keyed mutex; effects of a failed unit
// are not rolled back.
type InMemoryStore struct {
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	stores Stores
}

// NewInMemoryStore creates a Store over the given in-memory collaborators.
func NewInMemoryStore(subs SubscriptionRepository, instruments InstrumentRepository, plans PlanRepository, orgs org.Service) *InMemoryStore {
	return &InMemoryStore{
		locks: make(map[string]*sync.Mutex),
		stores: Stores{
			Subscriptions: subs,
			Instruments:   instruments,
			Plans:         plans,
			Orgs:          orgs,
		},
	}
}

// Execute runs fn while holding the subscription's lock, so no two renewal
// attempts for the same subscription overlap.
func (s *InMemoryStore) Execute(ctx context.Context, subscriptionID string, fn func(s Stores) error) error {
	s.mu.Lock()
	lock, ok := s.locks[subscriptionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[subscriptionID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(s.stores)
}

// FailureCounter returns the underlying subscription repository.
func (s *InMemoryStore) FailureCounter() SubscriptionRepository {
	return s.stores.Subscriptions
}

// PostgresStore implements Store with one database transaction per cycle.
// The subscription row lock taken by GetByID inside the transaction gives
// the single-flight guarantee across processes.
type PostgresStore struct {
	db          *sql.DB
	subs        *PostgresSubscriptionRepository
	instruments *PostgresInstrumentRepository
	plans       PlanRepository
	orgs        *org.PostgresRepository
}

// NewPostgresStore creates a transactional billing Store. Plans are static
// configuration and read outside the transaction.
func NewPostgresStore(db *sql.DB, plans PlanRepository) *PostgresStore {
	return &PostgresStore{
		db:          db,
		subs:        NewPostgresSubscriptionRepository(db),
		instruments: NewPostgresInstrumentRepository(db),
		plans:       plans,
		orgs:        org.NewPostgresRepository(db),
	}
}

// Execute runs fn inside a single database transaction keyed on the
// subscription row.
func (s *PostgresStore) Execute(ctx context.Context, subscriptionID string, fn func(s Stores) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin billing transaction: %w", err)
	}

	stores := Stores{
		Subscriptions: s.subs.WithTx(tx),
		Instruments:   s.instruments.WithTx(tx),
		Plans:         s.plans,
		Orgs:          s.orgs.WithTx(tx),
	}

	if err := fn(stores); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed after %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit billing transaction: %w", err)
	}
	return nil
}

// FailureCounter returns a non-transactional subscription handle.
func (s *PostgresStore) FailureCounter() SubscriptionRepository {
	return s.subs
}
