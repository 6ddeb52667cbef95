package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Recorder stores analytics events exactly once per event id.
type Recorder interface {
	// Record inserts the event, returning false if the id was seen before.
	Record(ctx context.Context, e WidgetEvent) (bool, error)
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRecorder persists widget events with ON CONFLICT dedupe.
type PostgresRecorder struct {
	pool rowQuerier
}

func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &PostgresRecorder{pool: pool}
}

func newPostgresRecorderWithExec(exec rowQuerier) *PostgresRecorder {
	if exec == nil {
		panic("events: exec required")
	}
	return &PostgresRecorder{pool: exec}
}

func (r *PostgresRecorder) Record(ctx context.Context, e WidgetEvent) (bool, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	query := `
		INSERT INTO widget_events (event_id, tenant_id, event_type, conversation_id, occurred_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (event_id) DO NOTHING
	`
	ct, err := r.pool.Exec(ctx, query, e.EventID, e.TenantID, e.Type, e.ConversationID, e.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("events: record: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// MemoryRecorder backs tests and local development without Postgres.
type MemoryRecorder struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	Events []WidgetEvent
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{seen: make(map[string]struct{})}
}

func (r *MemoryRecorder) Record(_ context.Context, e WidgetEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.seen[e.EventID]; dup {
		return false, nil
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	r.seen[e.EventID] = struct{}{}
	r.Events = append(r.Events, e)
	return true, nil
}
