package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatechat/platform/internal/engine"
	"github.com/estatechat/platform/internal/events"
	"github.com/estatechat/platform/internal/leads"
)

type stubPublisher struct {
	published []leads.Lead
	err       error
}

func (p *stubPublisher) EnqueueLeadCreated(_ context.Context, lead leads.Lead) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, lead)
	return nil
}

type serviceFixture struct {
	service   *Service
	repo      *InMemoryRepository
	leadRepo  *leads.InMemoryRepository
	recorder  *events.MemoryRecorder
	publisher *stubPublisher
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:      NewInMemoryRepository(),
		leadRepo:  leads.NewInMemoryRepository(),
		recorder:  events.NewMemoryRecorder(),
		publisher: &stubPublisher{},
	}
	f.service = NewService(ServiceOptions{
		Repo:      f.repo,
		LeadRepo:  f.leadRepo,
		Recorder:  f.recorder,
		Publisher: f.publisher,
	})
	return f
}

func (f *serviceFixture) start(t *testing.T) string {
	t.Helper()
	res, err := f.service.StartConversation(context.Background(), "tenant-1", "widget-1")
	require.NoError(t, err)
	return res.ConversationID
}

func (f *serviceFixture) say(t *testing.T, convID, text string) *MessageResult {
	t.Helper()
	res, err := f.service.HandleMessage(context.Background(), "tenant-1", convID, text, nil)
	require.NoError(t, err)
	return res
}

func TestStartConversation(t *testing.T) {
	f := newServiceFixture(t)
	res, err := f.service.StartConversation(context.Background(), "tenant-1", "widget-1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.ConversationID)
	assert.NotEmpty(t, res.Greeting)

	require.Len(t, f.recorder.Events, 1)
	assert.Equal(t, events.TypeConversationStarted, f.recorder.Events[0].Type)
	assert.Equal(t, "tenant-1", f.recorder.Events[0].TenantID)

	// The greeting is rendered client-side only; the log starts empty so
	// the first visitor message is turn one.
	msgs, err := f.repo.ListMessages(context.Background(), res.ConversationID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHandleMessageQualifiesAndCreatesLead(t *testing.T) {
	f := newServiceFixture(t)
	convID := f.start(t)

	r1 := f.say(t, convID, "Hi, I'm Sarah")
	assert.True(t, r1.State.HasName)
	assert.False(t, r1.LeadCreated)

	r2 := f.say(t, convID, "I'm selling my condo")
	assert.Equal(t, engine.IntentSelling, r2.State.Intent)
	assert.False(t, r2.LeadCreated)

	r3 := f.say(t, convID, "sure, a@b.com")
	assert.True(t, r3.LeadCreated)
	assert.True(t, r3.State.FullyQualified())
	assert.Equal(t, 100, r3.Score)

	all, err := f.leadRepo.List(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	lead := all[0]
	assert.Equal(t, "Sarah", lead.Name)
	assert.Equal(t, "a@b.com", lead.Email)
	assert.Equal(t, engine.IntentSelling, lead.Intent)
	assert.Equal(t, convID, lead.ConversationID)

	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, lead.ID, f.publisher.published[0].ID)

	var leadEvents int
	for _, e := range f.recorder.Events {
		if e.Type == events.TypeLeadCreated {
			leadEvents++
		}
	}
	assert.Equal(t, 1, leadEvents)
}

func TestHandleMessageAtMostOneLeadPerConversation(t *testing.T) {
	f := newServiceFixture(t)
	convID := f.start(t)

	f.say(t, convID, "I'm Sarah")
	f.say(t, convID, "selling")
	r := f.say(t, convID, "a@b.com")
	require.True(t, r.LeadCreated)

	// Further qualified turns refresh the lead instead of duplicating it.
	r2 := f.say(t, convID, "what do prices look like?")
	assert.False(t, r2.LeadCreated)

	all, err := f.leadRepo.List(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, r2.Score, all[0].Score)
}

// losingLinkRepo simulates losing the link race: another writer attached a
// lead between this turn's read and its compare-and-set.
type losingLinkRepo struct {
	*InMemoryRepository
	winnerLeadID string
}

func (r *losingLinkRepo) LinkLead(ctx context.Context, conversationID, leadID string) (bool, error) {
	_, _ = r.InMemoryRepository.LinkLead(ctx, conversationID, r.winnerLeadID)
	return false, nil
}

func TestHandleMessageLinkRaceLoserDeletesItsLead(t *testing.T) {
	base := NewInMemoryRepository()
	leadRepo := leads.NewInMemoryRepository()

	winner := &leads.Lead{TenantID: "tenant-1", ConversationID: "", Name: "Sarah", Email: "a@b.com", Intent: engine.IntentSelling, Score: 80}
	require.NoError(t, leadRepo.Create(context.Background(), winner))

	repo := &losingLinkRepo{InMemoryRepository: base, winnerLeadID: winner.ID}
	publisher := &stubPublisher{}
	svc := NewService(ServiceOptions{
		Repo:      repo,
		LeadRepo:  leadRepo,
		Publisher: publisher,
	})

	res, err := svc.StartConversation(context.Background(), "tenant-1", "widget-1")
	require.NoError(t, err)
	convID := res.ConversationID

	for _, text := range []string{"I'm Sarah", "selling"} {
		_, err := svc.HandleMessage(context.Background(), "tenant-1", convID, text, nil)
		require.NoError(t, err)
	}
	r, err := svc.HandleMessage(context.Background(), "tenant-1", convID, "a@b.com", nil)
	require.NoError(t, err)

	assert.False(t, r.LeadCreated)
	assert.Empty(t, publisher.published, "the losing side must not notify")

	all, err := leadRepo.List(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, all, 1, "the loser's lead must be deleted")
	assert.Equal(t, winner.ID, all[0].ID)
	assert.Equal(t, r.Score, all[0].Score, "the winner's lead is refreshed instead")
}

// failingLeadRepo injects lead write failures while delegating everything
// else to the in-memory repository.
type failingLeadRepo struct {
	*leads.InMemoryRepository
	createErr error
	updateErr error
}

func (r *failingLeadRepo) Create(ctx context.Context, l *leads.Lead) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.InMemoryRepository.Create(ctx, l)
}

func (r *failingLeadRepo) UpdateQualification(ctx context.Context, tenantID, id, intent string, score int) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	return r.InMemoryRepository.UpdateQualification(ctx, tenantID, id, intent, score)
}

func TestHandleMessageLeadCreateFailureAbortsTurn(t *testing.T) {
	leadRepo := &failingLeadRepo{InMemoryRepository: leads.NewInMemoryRepository()}
	publisher := &stubPublisher{}
	svc := NewService(ServiceOptions{
		Repo:      NewInMemoryRepository(),
		LeadRepo:  leadRepo,
		Publisher: publisher,
	})

	res, err := svc.StartConversation(context.Background(), "tenant-1", "widget-1")
	require.NoError(t, err)
	convID := res.ConversationID
	for _, text := range []string{"I'm Sarah", "selling"} {
		_, err := svc.HandleMessage(context.Background(), "tenant-1", convID, text, nil)
		require.NoError(t, err)
	}

	leadRepo.createErr = errors.New("db down")
	_, err = svc.HandleMessage(context.Background(), "tenant-1", convID, "a@b.com", nil)
	require.Error(t, err, "a lead write failure must fail the turn")

	assert.Empty(t, publisher.published, "no notification without a persisted lead")
	all, listErr := leadRepo.List(context.Background(), "tenant-1")
	require.NoError(t, listErr)
	assert.Empty(t, all)
}

func TestHandleMessageLeadRefreshFailureAbortsTurn(t *testing.T) {
	leadRepo := &failingLeadRepo{InMemoryRepository: leads.NewInMemoryRepository()}
	svc := NewService(ServiceOptions{
		Repo:     NewInMemoryRepository(),
		LeadRepo: leadRepo,
	})

	res, err := svc.StartConversation(context.Background(), "tenant-1", "widget-1")
	require.NoError(t, err)
	convID := res.ConversationID
	for _, text := range []string{"I'm Sarah", "selling", "a@b.com"} {
		_, err := svc.HandleMessage(context.Background(), "tenant-1", convID, text, nil)
		require.NoError(t, err)
	}

	leadRepo.updateErr = errors.New("db down")
	_, err = svc.HandleMessage(context.Background(), "tenant-1", convID, "what about prices?", nil)
	require.Error(t, err, "a failed lead refresh must fail the turn")
}

func TestHandleMessageServesCachedState(t *testing.T) {
	cache, _ := newTestStateCache(t)
	svc := NewService(ServiceOptions{
		Repo:     NewInMemoryRepository(),
		LeadRepo: leads.NewInMemoryRepository(),
		Cache:    cache,
	})

	res, err := svc.StartConversation(context.Background(), "tenant-1", "widget-1")
	require.NoError(t, err)
	convID := res.ConversationID

	// Seed a state the empty log cannot produce. The reply greeting proves
	// the policy ran on the cached entry rather than a fresh derivation.
	seeded := engine.State{HasName: true, Name: "Cached"}
	require.NoError(t, cache.Save(context.Background(), convID, seeded))

	r, err := svc.HandleMessage(context.Background(), "tenant-1", convID, "hello", nil)
	require.NoError(t, err)
	assert.Contains(t, r.Reply, "Cached")

	// The message log stays authoritative: the persisted state is re-derived
	// and the stale cache entry overwritten.
	assert.False(t, r.State.HasName)
	got, ok, err := cache.Load(context.Background(), convID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r.State, got)
}

func TestHandleMessagePublisherFailureDoesNotFailTurn(t *testing.T) {
	f := newServiceFixture(t)
	f.publisher.err = errors.New("queue down")
	convID := f.start(t)

	f.say(t, convID, "I'm Sarah")
	f.say(t, convID, "selling")
	r := f.say(t, convID, "a@b.com")

	assert.True(t, r.LeadCreated, "notification failures are logged, not surfaced")
	all, err := f.leadRepo.List(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestHandleMessageValidation(t *testing.T) {
	f := newServiceFixture(t)
	convID := f.start(t)

	_, err := f.service.HandleMessage(context.Background(), "tenant-1", convID, "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.service.HandleMessage(context.Background(), "tenant-1", convID, strings.Repeat("a", 2001), nil)
	assert.ErrorIs(t, err, ErrMessageTooLong)

	_, err = f.service.HandleMessage(context.Background(), "tenant-1", "nope", "hello", nil)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = f.service.HandleMessage(context.Background(), "other-tenant", convID, "hello", nil)
	assert.ErrorIs(t, err, ErrConversationNotFound, "tenants must not see each other's conversations")
}

func TestHandleMessageIgnoresClientHint(t *testing.T) {
	f := newServiceFixture(t)
	convID := f.start(t)

	// A lying hint claims the visitor already gave everything. The server
	// still derives from its own log.
	hint := &engine.State{HasName: true, Name: "Mallory", HasIntent: true, Intent: engine.IntentBuying, HasEmail: true, Email: "m@example.com"}
	res, err := f.service.HandleMessage(context.Background(), "tenant-1", convID, "hello", hint)
	require.NoError(t, err)
	assert.False(t, res.State.HasName)
	assert.False(t, res.LeadCreated)
}

func TestHistory(t *testing.T) {
	f := newServiceFixture(t)
	convID := f.start(t)
	f.say(t, convID, "I'm Sarah")

	msgs, err := f.service.History(context.Background(), "tenant-1", convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, engine.RoleVisitor, msgs[0].Role)
	assert.Equal(t, engine.RoleAssistant, msgs[1].Role)

	_, err = f.service.History(context.Background(), "other-tenant", convID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}
