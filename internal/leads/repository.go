package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists leads.
type Repository interface {
	Create(ctx context.Context, l *Lead) error
	Get(ctx context.Context, tenantID, id string) (*Lead, error)
	List(ctx context.Context, tenantID string) ([]Lead, error)
	// UpdateQualification refreshes the mutable qualification fields as a
	// conversation keeps going after its lead exists.
	UpdateQualification(ctx context.Context, tenantID, id, intent string, score int) error
	Delete(ctx context.Context, tenantID, id string) error
}

// InMemoryRepository backs tests and local development without Postgres.
type InMemoryRepository struct {
	mu    sync.Mutex
	leads map[string]*Lead
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{leads: make(map[string]*Lead)}
}

func (r *InMemoryRepository) Create(_ context.Context, l *Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	cp := *l
	r.leads[l.ID] = &cp
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, tenantID, id string) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok || l.TenantID != tenantID {
		return nil, ErrLeadNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *InMemoryRepository) List(_ context.Context, tenantID string) ([]Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Lead{}
	for _, l := range r.leads {
		if l.TenantID == tenantID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) UpdateQualification(_ context.Context, tenantID, id, intent string, score int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok || l.TenantID != tenantID {
		return ErrLeadNotFound
	}
	l.Intent = intent
	l.Score = score
	l.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) Delete(_ context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok || l.TenantID != tenantID {
		return ErrLeadNotFound
	}
	delete(r.leads, id)
	return nil
}
