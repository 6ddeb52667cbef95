package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/estatechat/platform/internal/engine"
)

const stateTTL = 24 * time.Hour

// StateCache keeps derived qualification states in Redis so a busy
// conversation does not replay its whole message log on every turn. A miss
// or a stale entry is never an error: the message log stays authoritative
// and the service re-derives on divergence.
type StateCache struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewStateCache(client *redis.Client, tracer trace.Tracer) *StateCache {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("estatechat.internal.conversation.state")
	}
	return &StateCache{redis: client, tracer: tracer}
}

func (c *StateCache) Save(ctx context.Context, conversationID string, s engine.State) error {
	ctx, span := c.tracer.Start(ctx, "conversation.save_state")
	defer span.End()

	data, err := json.Marshal(s)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: marshal state: %w", err)
	}
	if err := c.redis.Set(ctx, stateKey(conversationID), data, stateTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: persist state: %w", err)
	}
	return nil
}

// Load returns the cached state and whether one was present.
func (c *StateCache) Load(ctx context.Context, conversationID string) (engine.State, bool, error) {
	ctx, span := c.tracer.Start(ctx, "conversation.load_state")
	defer span.End()

	data, err := c.redis.Get(ctx, stateKey(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return engine.State{}, false, nil
		}
		span.RecordError(err)
		return engine.State{}, false, fmt.Errorf("conversation: load state: %w", err)
	}

	var s engine.State
	if err := json.Unmarshal(data, &s); err != nil {
		span.RecordError(err)
		return engine.State{}, false, fmt.Errorf("conversation: decode state: %w", err)
	}
	return s, true, nil
}

func stateKey(id string) string {
	return fmt.Sprintf("conversation_state:%s", id)
}
