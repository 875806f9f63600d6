// Package message holds the chat turns exchanged with the generation
// service. Every pipeline stage sends one system prompt and one user prompt,
// so the helpers here are built around that pair.
package message

import "unicode/utf8"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func NewMessage(role Role, content string) *Message {
	return &Message{Role: role, Content: content}
}

// Prompt builds the system+user pair a stage sends. An empty system prompt
// is omitted.
func Prompt(system, user string) []*Message {
	msgs := make([]*Message, 0, 2)
	if system != "" {
		msgs = append(msgs, NewMessage(RoleSystem, system))
	}
	return append(msgs, NewMessage(RoleUser, user))
}

// Text returns the message content; nil-safe.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	return m.Content
}

// Find returns the content of the first message with the given role.
func Find(msgs []*Message, role Role) (string, bool) {
	for _, msg := range msgs {
		if msg != nil && msg.Role == role {
			return msg.Content, true
		}
	}
	return "", false
}

// TotalLength counts runes across all message contents.
func TotalLength(msgs []*Message) int {
	total := 0
	for _, msg := range msgs {
		total += utf8.RuneCountInString(msg.Text())
	}
	return total
}
