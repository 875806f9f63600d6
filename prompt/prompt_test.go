package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sweetpotato0/ai-factcheck/message"
)

func TestLibraryRendersEveryStage(t *testing.T) {
	m, err := NewLibrary("")
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	data := map[string]any{
		"Article": "{\"title\": \"t\"}", "History": "{}", "Feedback": "more",
		"FollowUp": true, "Count": 5, "Query": "q", "Candidates": "[]",
		"Shown": 20, "Max": 3, "MaxChars": 300, "Questions": "{}",
		"Allowed": "[a#1]", "Draft": "[]", "WordLimit": 250, "MaxCitations": 3,
		"Limit": 250, "WordCount": 300, "Remove": 60, "Target": 240,
		"Sentences": 4, "Report": "[]",
	}
	for _, stage := range []string{Query, Curator, Evaluator, Questions, Report, ReportPolish, Compress, Critique} {
		msgs, err := m.Messages(stage, data)
		if err != nil {
			t.Fatalf("stage %s: %v", stage, err)
		}
		if len(msgs) != 2 || msgs[0].Role != message.RoleSystem || msgs[1].Role != message.RoleUser {
			t.Fatalf("stage %s: unexpected messages %+v", stage, msgs)
		}
		if strings.TrimSpace(msgs[1].Content) == "" {
			t.Fatalf("stage %s: empty user prompt", stage)
		}
	}
}

func TestQueryPromptSwitchesOnFollowUp(t *testing.T) {
	m, err := NewLibrary("")
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	first, err := m.Render("query_user", map[string]any{"Article": "A", "FollowUp": false})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(first, "previously generated") {
		t.Fatalf("first round must not mention history")
	}
	next, err := m.Render("query_user", map[string]any{"Article": "A", "FollowUp": true, "History": "H", "Feedback": "F"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(next, "H") || !strings.Contains(next, "Feedback on the previously generated queries and retrieved segments: F") {
		t.Fatalf("follow-up prompt missing history or feedback: %q", next)
	}
}

func TestMissingKeyFails(t *testing.T) {
	m := NewManager()
	if err := m.RegisterString("greet", "Hello {{.Name}}"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := m.Render("greet", map[string]any{}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := m.Render("absent", nil); err == nil {
		t.Fatalf("expected not found error")
	}
}

func TestDirectoryOverrides(t *testing.T) {
	dir := t.TempDir()
	override := `{{define "critique_system"}}custom critic{{end}}`
	if err := os.WriteFile(filepath.Join(dir, "critique.tmpl"), []byte(override), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := NewLibrary(dir)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	got, err := m.Render("critique_system", nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "custom critic" {
		t.Fatalf("override not applied: %q", got)
	}
}
