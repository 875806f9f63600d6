package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/sweetpotato0/ai-factcheck/message"
)

//go:embed templates/*.tmpl
var builtin embed.FS

// Stage prompt names. Each stage renders "<name>_system" and "<name>_user".
const (
	Query        = "query"
	Curator      = "curator"
	Evaluator    = "evaluator"
	Questions    = "questions"
	Report       = "report"
	ReportPolish = "report_polish"
	Compress     = "compress"
	Critique     = "critique"
)

// Manager manages prompt templates.
// All operations are thread-safe using RWMutex protection.
type Manager struct {
	mu   sync.RWMutex
	root *template.Template
}

// NewManager creates an empty prompt manager.
func NewManager() *Manager {
	return &Manager{root: newRoot()}
}

// NewLibrary returns a manager preloaded with the built-in stage templates.
// When dir is non-empty, every *.tmpl file in it is parsed afterwards so
// operators can override individual definitions without rebuilding.
func NewLibrary(dir string) (*Manager, error) {
	m := NewManager()
	if err := m.LoadFS(builtin, "templates/*.tmpl"); err != nil {
		return nil, err
	}
	if dir != "" {
		if err := m.LoadFS(os.DirFS(dir), "*.tmpl"); err != nil {
			return nil, fmt.Errorf("load prompt overrides from %s: %w", dir, err)
		}
	}
	return m, nil
}

// LoadFS parses every file matching pattern into the manager. Later
// definitions replace earlier ones with the same name.
func (m *Manager) LoadFS(fsys fs.FS, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.root.ParseFS(fsys, pattern); err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}
	return nil
}

// RegisterString registers a template from string content.
func (m *Manager) RegisterString(name, content string) error {
	if name == "" {
		return fmt.Errorf("template name cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.root.New(name).Parse(content); err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	return nil
}

// Render renders a template by name with the given data.
func (m *Manager) Render(name string, data any) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tmpl := m.root.Lookup(name)
	if tmpl == nil {
		return "", fmt.Errorf("template %s not found", name)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Messages renders the system and user prompts of a stage.
func (m *Manager) Messages(stage string, data any) ([]*message.Message, error) {
	system, err := m.Render(stage+"_system", data)
	if err != nil {
		return nil, err
	}
	user, err := m.Render(stage+"_user", data)
	if err != nil {
		return nil, err
	}
	return message.Prompt(system, user), nil
}

// List returns all defined template names.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0)
	for _, t := range m.root.Templates() {
		if t.Name() != "" && t.Tree != nil {
			names = append(names, t.Name())
		}
	}
	sort.Strings(names)
	return names
}

func newRoot() *template.Template {
	return template.New("").Option("missingkey=error")
}
