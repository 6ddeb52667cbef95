package engine

import "strings"

const (
	baseScore = 25

	nameBonus           = 20
	emailBonus          = 30
	fullyQualifiedBonus = 15
)

// intentBonuses weights the stated goal: investors and transactional
// intents score higher than renters.
var intentBonuses = map[string]int{
	IntentBuying:    30,
	IntentSelling:   30,
	IntentInvesting: 35,
	IntentRenting:   25,
}

// engagementSteps adds points as the conversation grows, keyed by total
// message count thresholds.
var engagementSteps = []struct {
	minMessages int
	bonus       int
}{
	{3, 10},
	{5, 10},
	{8, 5},
}

// keywordBonuses rewards buying signals anywhere in the message history.
// Each group counts at most once.
var keywordBonuses = []struct {
	keywords []string
	bonus    int
}{
	{[]string{"budget", "price", "cost"}, 10},
	{[]string{"timeline", "when", "soon"}, 10},
	{[]string{"location", "area", "neighborhood"}, 5},
	{[]string{"mortgage", "financing", "loan"}, 10},
}

// Score computes the 0-100 qualification score for a conversation.
// Engagement counts every message in the history, and keyword bonuses scan
// the whole history regardless of role. The function is pure: the same
// history and state always produce the same integer.
func Score(history []Message, s State) int {
	score := baseScore

	if s.HasIntent {
		score += intentBonuses[s.Intent]
	}
	if s.HasName {
		score += nameBonus
	}
	if s.HasEmail {
		score += emailBonus
	}

	for _, step := range engagementSteps {
		if len(history) >= step.minMessages {
			score += step.bonus
		}
	}

	var b strings.Builder
	for _, msg := range history {
		b.WriteString(strings.ToLower(msg.Text))
		b.WriteString(" ")
	}
	fullText := b.String()

	for _, group := range keywordBonuses {
		for _, kw := range group.keywords {
			if strings.Contains(fullText, kw) {
				score += group.bonus
				break
			}
		}
	}

	if s.FullyQualified() {
		score += fullyQualifiedBonus
	}

	return clamp(score, 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
