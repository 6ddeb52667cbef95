package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/estatechat/platform/internal/engine"
	"github.com/estatechat/platform/internal/events"
	"github.com/estatechat/platform/internal/leads"
	"github.com/estatechat/platform/internal/observability/metrics"
	"github.com/estatechat/platform/pkg/logging"
)

var (
	ErrEmptyMessage   = errors.New("conversation: message is empty")
	ErrMessageTooLong = errors.New("conversation: message too long")
)

// LeadPublisher hands a freshly created lead to the notification pipeline.
// Publishing is best-effort: a queue outage must never fail the chat turn.
type LeadPublisher interface {
	EnqueueLeadCreated(ctx context.Context, lead leads.Lead) error
}

// Service owns the conversation lifecycle: it persists the message log,
// runs the qualification engine over it, and creates or updates the lead.
type Service struct {
	repo      Repository
	leadRepo  leads.Repository
	recorder  events.Recorder
	publisher LeadPublisher
	cache     *StateCache
	metrics   *metrics.ChatMetrics
	logger    *logging.Logger

	maxMessageLength int
}

type ServiceOptions struct {
	Repo      Repository
	LeadRepo  leads.Repository
	Recorder  events.Recorder
	Publisher LeadPublisher
	// Cache is optional; without it every turn derives from the full log.
	Cache   *StateCache
	Metrics *metrics.ChatMetrics
	Logger  *logging.Logger

	MaxMessageLength int
}

func NewService(opts ServiceOptions) *Service {
	if opts.Repo == nil {
		panic("conversation: repository required")
	}
	if opts.LeadRepo == nil {
		panic("conversation: lead repository required")
	}
	if opts.Recorder == nil {
		opts.Recorder = events.NewMemoryRecorder()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 2000
	}
	return &Service{
		repo:             opts.Repo,
		leadRepo:         opts.LeadRepo,
		recorder:         opts.Recorder,
		publisher:        opts.Publisher,
		cache:            opts.Cache,
		metrics:          opts.Metrics,
		logger:           opts.Logger,
		maxMessageLength: opts.MaxMessageLength,
	}
}

// StartResult is what a widget needs to open a chat: the conversation id and
// the greeting it should render. The greeting is not part of the message log,
// so it never influences qualification or scoring.
type StartResult struct {
	ConversationID string `json:"conversationId"`
	Greeting       string `json:"greeting"`
}

func (s *Service) StartConversation(ctx context.Context, tenantID, widgetID string) (*StartResult, error) {
	conv := &Conversation{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		WidgetID: widgetID,
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	if _, err := s.recorder.Record(ctx, events.WidgetEvent{
		EventID:        "conversation_started:" + conv.ID,
		TenantID:       tenantID,
		Type:           events.TypeConversationStarted,
		ConversationID: conv.ID,
	}); err != nil {
		s.logger.Warn("failed to record conversation start", "conversation_id", conv.ID, "error", err)
	}

	return &StartResult{
		ConversationID: conv.ID,
		Greeting:       engine.Greeting(),
	}, nil
}

// MessageResult is the outcome of one visitor turn.
type MessageResult struct {
	ConversationID string       `json:"conversationId"`
	Reply          string       `json:"reply"`
	State          engine.State `json:"state"`
	Score          int          `json:"score"`
	LeadCreated    bool         `json:"leadCreated"`
}

// HandleMessage runs one visitor message through the dialogue policy.
//
// The widget may send its locally mirrored state as a hint; it is only used
// to spot drift between the embedded JavaScript and this engine. The reply
// and the persisted state always come from the server-side derivation.
func (s *Service) HandleMessage(ctx context.Context, tenantID, conversationID, text string, hint *engine.State) (*MessageResult, error) {
	started := time.Now()

	text = strings.TrimSpace(text)
	if text == "" {
		s.metrics.ObserveMessage("rejected", time.Since(started).Seconds())
		return nil, ErrEmptyMessage
	}
	if len(text) > s.maxMessageLength {
		s.metrics.ObserveMessage("rejected", time.Since(started).Seconds())
		return nil, ErrMessageTooLong
	}

	conv, err := s.repo.GetConversation(ctx, tenantID, conversationID)
	if err != nil {
		s.metrics.ObserveMessage("error", time.Since(started).Seconds())
		return nil, err
	}

	history, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		s.metrics.ObserveMessage("error", time.Since(started).Seconds())
		return nil, err
	}

	prior := s.loadPriorState(ctx, conversationID, history)
	if hint != nil && *hint != prior {
		s.logger.Warn("widget state hint diverges from derived state",
			"conversation_id", conversationID, "hint", *hint, "derived", prior)
	}

	visitorTurn := countVisitorMessages(history) + 1
	reply, next := engine.Respond(prior, text, visitorTurn)

	visitorMsg := &StoredMessage{ConversationID: conversationID, Role: engine.RoleVisitor, Text: text}
	if err := s.repo.AppendMessage(ctx, visitorMsg); err != nil {
		s.metrics.ObserveMessage("error", time.Since(started).Seconds())
		return nil, err
	}
	assistantMsg := &StoredMessage{ConversationID: conversationID, Role: engine.RoleAssistant, Text: reply}
	if err := s.repo.AppendMessage(ctx, assistantMsg); err != nil {
		s.metrics.ObserveMessage("error", time.Since(started).Seconds())
		return nil, err
	}
	history = append(history, *visitorMsg, *assistantMsg)

	// The message log is authoritative. If the cached prior was stale the
	// policy ran on the wrong state; re-deriving here corrects the record.
	engineHistory := EngineHistory(history)
	authoritative := engine.Derive(engineHistory)
	if authoritative != next {
		s.logger.Warn("cached state was stale, using derived state",
			"conversation_id", conversationID, "cached_next", next, "derived", authoritative)
		next = authoritative
	}
	s.savePriorState(ctx, conversationID, next)

	score := engine.Score(engineHistory, next)

	// Lead persistence failures abort the turn like any other storage error;
	// only notification delivery is best-effort.
	leadCreated := false
	switch {
	case conv.LeadID != "":
		if err := s.leadRepo.UpdateQualification(ctx, tenantID, conv.LeadID, next.Intent, score); err != nil {
			s.logger.Error("failed to refresh lead qualification",
				"conversation_id", conversationID, "lead_id", conv.LeadID, "error", err)
			s.metrics.ObserveMessage("error", time.Since(started).Seconds())
			return nil, err
		}
	case next.FullyQualified():
		leadCreated, err = s.createLead(ctx, conv, next, score)
		if err != nil {
			s.logger.Error("failed to create lead", "conversation_id", conversationID, "error", err)
			s.metrics.ObserveMessage("error", time.Since(started).Seconds())
			return nil, err
		}
	}

	s.metrics.ObserveMessage("ok", time.Since(started).Seconds())
	return &MessageResult{
		ConversationID: conversationID,
		Reply:          reply,
		State:          next,
		Score:          score,
		LeadCreated:    leadCreated,
	}, nil
}

// createLead inserts the lead and links it to the conversation. When two
// turns for the same conversation qualify concurrently, the compare-and-set
// on the conversation row picks a single winner; the loser deletes its row
// and refreshes the winner's lead instead.
func (s *Service) createLead(ctx context.Context, conv *Conversation, state engine.State, score int) (bool, error) {
	lead := &leads.Lead{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		Name:           state.Name,
		Email:          state.Email,
		Intent:         state.Intent,
		Score:          score,
	}
	if err := s.leadRepo.Create(ctx, lead); err != nil {
		return false, err
	}

	won, err := s.repo.LinkLead(ctx, conv.ID, lead.ID)
	if err != nil {
		return false, err
	}
	if !won {
		if err := s.leadRepo.Delete(ctx, conv.TenantID, lead.ID); err != nil {
			return false, err
		}
		current, err := s.repo.GetConversation(ctx, conv.TenantID, conv.ID)
		if err != nil {
			return false, err
		}
		if current.LeadID != "" {
			if err := s.leadRepo.UpdateQualification(ctx, conv.TenantID, current.LeadID, state.Intent, score); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	if _, err := s.recorder.Record(ctx, events.WidgetEvent{
		EventID:        "lead_created:" + conv.ID,
		TenantID:       conv.TenantID,
		Type:           events.TypeLeadCreated,
		ConversationID: conv.ID,
	}); err != nil {
		s.logger.Warn("failed to record lead creation", "lead_id", lead.ID, "error", err)
	}
	s.metrics.ObserveLeadCreated(lead.Intent)

	if s.publisher != nil {
		if err := s.publisher.EnqueueLeadCreated(ctx, *lead); err != nil {
			s.logger.Error("failed to enqueue lead notification", "lead_id", lead.ID, "error", err)
		}
	}

	s.logger.Info("lead created",
		"tenant_id", conv.TenantID, "conversation_id", conv.ID, "lead_id", lead.ID,
		"intent", lead.Intent, "score", lead.Score)
	return true, nil
}

// History returns the conversation's messages for the widget to re-render
// after a reconnect.
func (s *Service) History(ctx context.Context, tenantID, conversationID string) ([]StoredMessage, error) {
	if _, err := s.repo.GetConversation(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID)
}

// loadPriorState returns the state the policy runs on. A cache hit is served
// directly; the post-append derivation in HandleMessage keeps the message log
// authoritative even when the cached entry turns out stale.
func (s *Service) loadPriorState(ctx context.Context, conversationID string, history []StoredMessage) engine.State {
	if s.cache != nil {
		cached, ok, err := s.cache.Load(ctx, conversationID)
		if err != nil {
			s.logger.Warn("state cache read failed", "conversation_id", conversationID, "error", err)
		} else if ok {
			return cached
		}
	}
	return engine.Derive(EngineHistory(history))
}

func (s *Service) savePriorState(ctx context.Context, conversationID string, state engine.State) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Save(ctx, conversationID, state); err != nil {
		s.logger.Warn("state cache write failed", "conversation_id", conversationID, "error", err)
	}
}
