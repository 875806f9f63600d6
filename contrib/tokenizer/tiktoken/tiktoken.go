// Package tiktoken counts prompt tokens with OpenAI's BPE encodings. It
// satisfies generation.TokenCounter.
package tiktoken

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when a model name is unknown to tiktoken, which is
// the case for most locally served models.
const DefaultEncoding = "cl100k_base"

var (
	mu    sync.Mutex
	cache = map[string]*tiktoken.Tiktoken{}
)

// Counter approximates the prompt size the generation service will see.
// Counts for non-OpenAI models are estimates.
type Counter struct {
	name string
	enc  *tiktoken.Tiktoken
}

// New resolves name as a model first, then as an encoding name. Loaded
// encodings are shared between counters.
func New(name string) (*Counter, error) {
	mu.Lock()
	defer mu.Unlock()
	if enc, ok := cache[name]; ok {
		return &Counter{name: name, enc: enc}, nil
	}
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		if enc, err = tiktoken.GetEncoding(name); err != nil {
			return nil, fmt.Errorf("tiktoken: no encoding for %q: %w", name, err)
		}
	}
	cache[name] = enc
	return &Counter{name: name, enc: enc}, nil
}

// ForModel is New with a DefaultEncoding fallback.
func ForModel(model string) (*Counter, error) {
	if c, err := New(model); err == nil {
		return c, nil
	}
	return New(DefaultEncoding)
}

func (c *Counter) Name() string { return c.name }

func (c *Counter) Encode(text string) []int {
	return c.enc.Encode(text, nil, nil)
}

func (c *Counter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(c.Encode(text))
}

func (c *Counter) Decode(ids []int) string {
	return c.enc.Decode(ids)
}
