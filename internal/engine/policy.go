package engine

import (
	"fmt"
	"strings"
)

// nameInsistTurns is how many visitor turns the policy keeps asking for a
// name before it stops insisting. A name offered later is still accepted.
const nameInsistTurns = 2

var namePrompts = []string{
	"Hi there! I'm the assistant for this property site. What's your name?",
	"Happy to help! Could you tell me your name first? You can say something like \"I'm Alex\".",
}

var reengagementPrompts = []string{
	"I'm here whenever you're ready. Is there anything about the local market I can help with?",
	"No rush at all! Feel free to ask me about listings, pricing, or the buying process.",
	"I can help with buying, selling, renting, or investing. What's on your mind?",
	"Just let me know what you're looking for and I'll point you in the right direction.",
}

var intentFollowUps = map[string]string{
	IntentBuying:    "Exciting! Buying is a big step and I can help you get started. What kind of property and area are you interested in?",
	IntentSelling:   "Great, I can help with that. Getting a sense of the market is the right first move when selling. What kind of property is it?",
	IntentRenting:   "Got it, you're looking to rent. I can share what's available. Any particular area you have in mind?",
	IntentInvesting: "Smart move! Investment properties in this area have been performing well. Are you thinking residential or commercial?",
}

// Greeting is the opener a widget renders when a conversation starts. It is
// presentation only and is never appended to the message log.
func Greeting() string {
	return "Hi there! I'm the assistant for this property site. How can I help you today?"
}

// Respond evaluates one visitor message against the current state and
// returns the assistant reply plus the updated state. visitorTurn is
// 1-based: the number of visitor messages including this one.
//
// The ladder is strictly linear: name, then intent, then email, then
// informational routing. There are no backward transitions.
func Respond(s State, message string, visitorTurn int) (string, State) {
	next := s.Absorb(message)

	switch {
	case !s.HasName:
		if next.HasName {
			return fmt.Sprintf("Nice to meet you, %s! Are you looking to buy, sell, rent, or invest in property?", next.Name), next
		}
		if visitorTurn <= nameInsistTurns {
			return pick(namePrompts, visitorTurn), next
		}
		return pick(reengagementPrompts, visitorTurn), next

	case !s.HasIntent:
		if next.HasIntent {
			return withGreeting(next, intentFollowUps[next.Intent]), next
		}
		return withGreeting(next, "Are you interested in buying, selling, renting, or investing? That helps me point you to the right information."), next

	case !s.HasEmail:
		if next.HasEmail {
			return withGreeting(next, fmt.Sprintf("Perfect, I've noted %s — one of our agents will reach out shortly. What's your timeline looking like?", next.Email)), next
		}
		return withGreeting(next, "Could you share your email address so one of our agents can follow up with details?"), next

	default:
		return qualifiedReply(next, message, visitorTurn), next
	}
}

// qualifiedReply routes a fully-qualified visitor's message into one of the
// canned informative replies, always restating the captured name and intent
// for continuity.
func qualifiedReply(s State, message string, visitorTurn int) string {
	lower := strings.ToLower(message)
	lead := fmt.Sprintf("Thanks, %s! Since you're interested in %s, ", s.Name, s.Intent)

	switch {
	case containsAny(lower, "price", "budget", "cost", "afford"):
		return lead + "I'd suggest talking numbers with our agent — they'll walk you through current pricing and what fits your budget."
	case containsAny(lower, "location", "area", "neighborhood", "where"):
		return lead + "location is everything. Our agent can share a breakdown of the neighborhoods that match what you're after."
	case containsAny(lower, "timeline", "when", "soon", "how long"):
		return lead + "timing matters. Our agent will map out a realistic timeline once they connect with you."
	case containsAny(lower, "house", "home", "property", "condo", "apartment", "help", "question"):
		return lead + "you're in good hands — our agent has all your details and will follow up with specifics."
	default:
		return pick(reengagementPrompts, visitorTurn)
	}
}

// withGreeting prefixes a reply with the visitor's name once it is known.
func withGreeting(s State, body string) string {
	if !s.HasName {
		return body
	}
	return fmt.Sprintf("Thanks, %s! %s", s.Name, body)
}

// pick selects deterministically from a pool so the server and the widget
// mirror produce identical replies for identical inputs.
func pick(pool []string, visitorTurn int) string {
	if visitorTurn < 1 {
		visitorTurn = 1
	}
	return pool[(visitorTurn-1)%len(pool)]
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
