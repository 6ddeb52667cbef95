package conversation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrConversationNotFound = errors.New("conversation: not found")

// Repository persists conversations and their message logs.
type Repository interface {
	CreateConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, tenantID, id string) (*Conversation, error)
	AppendMessage(ctx context.Context, m *StoredMessage) error
	ListMessages(ctx context.Context, conversationID string) ([]StoredMessage, error)
	// LinkLead attaches a lead to a conversation only if none is attached
	// yet. It reports whether this caller won the link; the loser is
	// expected to discard its freshly created lead and reload.
	LinkLead(ctx context.Context, conversationID, leadID string) (bool, error)
}

// InMemoryRepository backs tests and local development without Postgres.
type InMemoryRepository struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	messages      map[string][]StoredMessage
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]StoredMessage),
	}
}

func (r *InMemoryRepository) CreateConversation(_ context.Context, c *Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	cp := *c
	r.conversations[c.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetConversation(_ context.Context, tenantID, id string) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok || c.TenantID != tenantID {
		return nil, ErrConversationNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *InMemoryRepository) AppendMessage(_ context.Context, m *StoredMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[m.ConversationID]; !ok {
		return ErrConversationNotFound
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	r.messages[m.ConversationID] = append(r.messages[m.ConversationID], *m)
	r.conversations[m.ConversationID].UpdatedAt = m.CreatedAt
	return nil
}

func (r *InMemoryRepository) ListMessages(_ context.Context, conversationID string) ([]StoredMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[conversationID]
	out := make([]StoredMessage, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) LinkLead(_ context.Context, conversationID, leadID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[conversationID]
	if !ok {
		return false, ErrConversationNotFound
	}
	if c.LeadID != "" {
		return false, nil
	}
	c.LeadID = leadID
	return true, nil
}
