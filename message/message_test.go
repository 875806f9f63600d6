package message

import "testing"

func TestPromptOmitsEmptySystem(t *testing.T) {
	msgs := Prompt("", "question")
	if len(msgs) != 1 || msgs[0].Role != RoleUser {
		t.Fatalf("Prompt(\"\", q) = %+v", msgs)
	}

	msgs = Prompt("be brief", "question")
	if len(msgs) != 2 || msgs[0].Role != RoleSystem || msgs[1].Content != "question" {
		t.Fatalf("Prompt(sys, q) = %+v", msgs)
	}
}

func TestFindAndTotalLength(t *testing.T) {
	msgs := Prompt("abc", "héllo")

	user, ok := Find(msgs, RoleUser)
	if !ok || user != "héllo" {
		t.Fatalf("Find(user) = %q, %v", user, ok)
	}
	if _, ok := Find(msgs, RoleAssistant); ok {
		t.Fatalf("expected no assistant message")
	}
	if got := TotalLength(msgs); got != 8 {
		t.Fatalf("TotalLength = %d, want 8", got)
	}
	var nilMsg *Message
	if nilMsg.Text() != "" {
		t.Fatalf("nil Text should be empty")
	}
}
