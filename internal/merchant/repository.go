package merchant

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ApplicationRepository defines persistence for merchant applications.
type ApplicationRepository interface {
	// Insert adds a new application. Returns ErrApplicationExists if the
	// organization already has one.
	Insert(ctx context.Context, app *Application) error

	// GetByID retrieves an application by its internal ID.
	// Returns ErrApplicationNotFound if absent.
	GetByID(ctx context.Context, id string) (*Application, error)

	// GetByExternalID retrieves an application by the gateway's application ID.
	// Returns ErrApplicationNotFound if absent.
	GetByExternalID(ctx context.Context, externalID string) (*Application, error)

	// GetByOrgID retrieves the application owned by an organization.
	// Returns ErrApplicationNotFound if absent.
	GetByOrgID(ctx context.Context, orgID string) (*Application, error)

	// Update persists changes to an existing application.
	// Returns ErrApplicationNotFound if the application does not exist.
	Update(ctx context.Context, app *Application) error
}

// InMemoryApplicationRepository implements ApplicationRepository with
// in-memory storage. Thread-safe via RWMutex.
type InMemoryApplicationRepository struct {
	mu   sync.RWMutex
	apps map[string]*Application // internal ID -> Application
}

// NewInMemoryApplicationRepository creates a new in-memory application repository.
func NewInMemoryApplicationRepository() *InMemoryApplicationRepository {
	return &InMemoryApplicationRepository{
		apps: make(map[string]*Application),
	}
}

// Insert adds a new application.
func (r *InMemoryApplicationRepository) Insert(ctx context.Context, app *Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.apps {
		if existing.OrgID == app.OrgID {
			return ErrApplicationExists
		}
	}

	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	now := time.Now()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now

	// Deep copy to prevent external mutation
	copied := *app
	r.apps[app.ID] = &copied

	return nil
}

// GetByID retrieves an application by its internal ID.
func (r *InMemoryApplicationRepository) GetByID(ctx context.Context, id string) (*Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, ok := r.apps[id]
	if !ok {
		return nil, ErrApplicationNotFound
	}
	copied := *app
	return &copied, nil
}

// GetByExternalID retrieves an application by the gateway's application ID.
func (r *InMemoryApplicationRepository) GetByExternalID(ctx context.Context, externalID string) (*Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, app := range r.apps {
		if app.ExternalID == externalID {
			copied := *app
			return &copied, nil
		}
	}
	return nil, ErrApplicationNotFound
}

// GetByOrgID retrieves the application owned by an organization.
func (r *InMemoryApplicationRepository) GetByOrgID(ctx context.Context, orgID string) (*Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, app := range r.apps {
		if app.OrgID == orgID {
			copied := *app
			return &copied, nil
		}
	}
	return nil, ErrApplicationNotFound
}

// Update persists changes to an existing application.
func (r *InMemoryApplicationRepository) Update(ctx context.Context, app *Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.apps[app.ID]; !ok {
		return ErrApplicationNotFound
	}

	app.UpdatedAt = time.Now()
	copied := *app
	r.apps[app.ID] = &copied

	return nil
}
