package engine

import (
	"regexp"
	"strings"
	"unicode"
)

// Intent labels form a closed set. Free text never produces anything else.
const (
	IntentBuying    = "buying"
	IntentSelling   = "selling"
	IntentRenting   = "renting"
	IntentInvesting = "investing"
)

// ---------- package-level compiled regexes ----------

var (
	// Name capture is deliberately narrow: a single alphabetic token after a
	// literal trigger phrase. Multi-word names are a known limitation of the
	// widget script and the server mirrors it so replies never diverge.
	nameRE = regexp.MustCompile(`(?i)\b(?:my name is|i'm|im)\s+([a-zA-Z]+)`)

	// RFC-light: local@domain.tld, no MX or deliverability checks here.
	emailRE = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// intentKeywords maps substrings to intent categories. Checked in order;
// the first matching category wins. Negations are not handled ("not selling"
// still matches selling).
var intentKeywords = []struct {
	keyword string
	intent  string
}{
	{"buy", IntentBuying},
	{"purchase", IntentBuying},
	{"sell", IntentSelling},
	{"rent", IntentRenting},
	{"invest", IntentInvesting},
}

// ExtractName scans a message for a self-introduction and returns the first
// single-token name found.
func ExtractName(message string) (string, bool) {
	m := nameRE.FindStringSubmatch(message)
	if len(m) < 2 {
		return "", false
	}
	return capitalize(m[1]), true
}

// ExtractEmail returns the first email-shaped token in the message.
func ExtractEmail(message string) (string, bool) {
	m := emailRE.FindString(message)
	if m == "" {
		return "", false
	}
	return m, true
}

// ExtractIntent matches the message against the intent keyword table.
func ExtractIntent(message string) (string, bool) {
	lower := strings.ToLower(message)
	for _, kw := range intentKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.intent, true
		}
	}
	return "", false
}

func capitalize(word string) string {
	if word == "" {
		return ""
	}
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
