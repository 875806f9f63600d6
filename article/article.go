// Package article loads the topic articles and renders the canonical text
// every prompt shows to the model.
package article

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// IDField is the topic field holding the article identifier.
const IDField = "docid"

// Article is one topic: an identifier plus arbitrary metadata fields.
type Article struct {
	ID     string
	fields map[string]any
}

// New builds an article from its identifier and fields. fields is copied.
func New(id string, fields map[string]any) Article {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		if k != IDField {
			copied[k] = v
		}
	}
	return Article{ID: id, fields: copied}
}

// Parse decodes one topic line. Numbers keep their textual form.
func Parse(line []byte) (Article, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Article{}, err
	}
	id, ok := raw[IDField].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return Article{}, fmt.Errorf("missing %q", IDField)
	}
	return New(id, raw), nil
}

// Field returns a metadata field.
func (a Article) Field(name string) (any, bool) {
	v, ok := a.fields[name]
	return v, ok
}

// Title returns the title field when it is a string.
func (a Article) Title() string {
	s, _ := a.fields["title"].(string)
	return s
}

// Canonical renders every field except the identifier as JSON indented four
// spaces with sorted keys.
func (a Article) Canonical() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(a.fields); err != nil {
		return "", fmt.Errorf("render article %s: %w", a.ID, err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// LoadOption customises topic loading.
type LoadOption func(*loadConfig)

type loadConfig struct {
	clean bool
}

// WithHTMLCleaning converts HTML-bearing string fields to plain text.
func WithHTMLCleaning(enabled bool) LoadOption {
	return func(c *loadConfig) { c.clean = enabled }
}

// LoadTopics reads a JSONL topics stream in file order. Blank lines are skipped.
func LoadTopics(r io.Reader, opts ...LoadOption) ([]Article, error) {
	cfg := &loadConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var (
		articles []Article
		seen     = make(map[string]int)
		line     int
	)
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		a, err := Parse(text)
		if err != nil {
			return nil, fmt.Errorf("topics line %d: %w", line, err)
		}
		if prev, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("topics line %d: duplicate article %s (first on line %d)", line, a.ID, prev)
		}
		seen[a.ID] = line
		if cfg.clean {
			a = a.cleaned()
		}
		articles = append(articles, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read topics: %w", err)
	}
	return articles, nil
}

// LoadTopicsFile opens path and calls LoadTopics.
func LoadTopicsFile(path string, opts ...LoadOption) ([]Article, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadTopics(f, opts...)
}

// IDs returns the article identifiers in order.
func IDs(articles []Article) []string {
	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	return ids
}
