package generation

import (
	"github.com/sweetpotato0/ai-factcheck/message"
)

// TruncationMarker replaces the elided middle of an oversized prompt.
const TruncationMarker = "... [middle truncated] ..."

// minUserChars is the floor kept for user content after the system prompt is budgeted.
const minUserChars = 100

// Truncator shrinks prompts on retry attempts so a context overflow does not
// fail every attempt the same way.
type Truncator struct {
	// Budget is the character budget for system + user content.
	Budget int
	// HeadFraction is the share of a truncated text kept from its start.
	HeadFraction float64
}

// NewTruncator derives the character budget from a token budget.
func NewTruncator(maxContextTokens, reservedOutputTokens, charsPerToken int) Truncator {
	budget := (maxContextTokens - reservedOutputTokens) * charsPerToken
	if budget < 2*minUserChars {
		budget = 2 * minUserChars
	}
	return Truncator{Budget: budget, HeadFraction: 0.5}
}

// Apply returns the messages to send for the given zero-based attempt and
// whether they were modified. Attempt 0 always passes the input through.
func (t Truncator) Apply(msgs []*message.Message, attempt int) ([]*message.Message, bool) {
	if attempt == 0 {
		return msgs, false
	}
	system, _ := message.Find(msgs, message.RoleSystem)
	user, _ := message.Find(msgs, message.RoleUser)

	systemLen := len([]rune(system))
	if systemLen+len([]rune(user)) <= t.Budget {
		return msgs, false
	}

	if systemLen > t.Budget/2 {
		system = t.middle(system, t.Budget/2)
		systemLen = len([]rune(system))
	}
	userChars := t.Budget - systemLen
	if userChars < minUserChars {
		userChars = minUserChars
	}
	user = t.middle(user, userChars)

	return message.Prompt(system, user), true
}

func (t Truncator) middle(text string, maxChars int) string {
	return TruncateMiddle(text, maxChars, t.HeadFraction)
}

// TruncateMiddle keeps the head and tail of text so that maxChars original
// characters survive, joined by TruncationMarker.
func TruncateMiddle(text string, maxChars int, headFraction float64) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	if maxChars < 0 {
		maxChars = 0
	}
	if headFraction <= 0 || headFraction >= 1 {
		headFraction = 0.5
	}
	head := int(float64(maxChars) * headFraction)
	tail := maxChars - head
	return string(runes[:head]) + TruncationMarker + string(runes[len(runes)-tail:])
}
