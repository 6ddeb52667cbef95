package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores conversations and messages in Postgres.
type PostgresRepository struct {
	pool querier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	if q == nil {
		panic("conversation: querier required")
	}
	return &PostgresRepository{pool: q}
}

func (r *PostgresRepository) CreateConversation(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (id, tenant_id, widget_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.TenantID, c.WidgetID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("conversation: create: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetConversation(ctx context.Context, tenantID, id string) (*Conversation, error) {
	var c Conversation
	var leadID *string
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, widget_id, lead_id, created_at, updated_at
		FROM conversations WHERE id = $1 AND tenant_id = $2`, id, tenantID).Scan(
		&c.ID, &c.TenantID, &c.WidgetID, &leadID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get: %w", err)
	}
	if leadID != nil {
		c.LeadID = *leadID
	}
	return &c, nil
}

func (r *PostgresRepository) AppendMessage(ctx context.Context, m *StoredMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, body, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.ConversationID, string(m.Role), m.Text, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("conversation: append message: %w", err)
	}
	_, err = r.pool.Exec(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`,
		m.ConversationID, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("conversation: touch conversation: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListMessages(ctx context.Context, conversationID string) ([]StoredMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, role, body, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list messages: %w", err)
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		m.Role = roleFromString(role)
		out = append(out, m)
	}
	if out == nil {
		out = []StoredMessage{}
	}
	return out, rows.Err()
}

// LinkLead is the compare-and-set that makes lead creation race-safe when two
// messages for the same conversation qualify concurrently. Only the caller
// whose UPDATE matches the NULL lead_id wins.
func (r *PostgresRepository) LinkLead(ctx context.Context, conversationID, leadID string) (bool, error) {
	ct, err := r.pool.Exec(ctx, `
		UPDATE conversations SET lead_id = $2, updated_at = now()
		WHERE id = $1 AND lead_id IS NULL`, conversationID, leadID)
	if err != nil {
		return false, fmt.Errorf("conversation: link lead: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
