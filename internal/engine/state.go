package engine

// Role identifies who authored a message.
type Role string

const (
	RoleVisitor    Role = "visitor"
	RoleAssistant  Role = "assistant"
	RoleSystemNote Role = "system-note"
)

// Message is the engine's view of a chat message. The persistence layer maps
// its own message rows into this shape before calling the engine.
type Message struct {
	Role Role
	Text string
}

// State is the monotonic projection of what a conversation has captured so
// far. It is never stored as independent truth; it is always re-derivable
// from the message log.
type State struct {
	HasName   bool   `json:"hasName"`
	Name      string `json:"name,omitempty"`
	HasIntent bool   `json:"hasIntent"`
	Intent    string `json:"intent,omitempty"`
	HasEmail  bool   `json:"hasEmail"`
	Email     string `json:"email,omitempty"`
}

// FullyQualified reports whether all three facts have been captured.
func (s State) FullyQualified() bool {
	return s.HasName && s.HasIntent && s.HasEmail
}

// Absorb applies a single visitor message to the state, mirroring the
// dialogue policy's priority ladder: only the stage that is currently open
// may consume the message. Flags only ever flip to true and captured values
// are never overwritten, even if a later message contradicts an earlier one.
func (s State) Absorb(text string) State {
	switch {
	case !s.HasName:
		if name, ok := ExtractName(text); ok {
			s.HasName = true
			s.Name = name
		}
	case !s.HasIntent:
		if intent, ok := ExtractIntent(text); ok {
			s.HasIntent = true
			s.Intent = intent
		}
	case !s.HasEmail:
		if email, ok := ExtractEmail(text); ok {
			s.HasEmail = true
			s.Email = email
		}
	}
	return s
}

// Derive folds the visitor messages of a history into a State. The same
// history always yields the same state, and appending messages can only add
// captured facts, never remove them.
func Derive(history []Message) State {
	var s State
	for _, msg := range history {
		if msg.Role != RoleVisitor {
			continue
		}
		s = s.Absorb(msg.Text)
	}
	return s
}
