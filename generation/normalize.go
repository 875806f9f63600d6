package generation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/sjson"
)

var (
	boldPattern   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern = regexp.MustCompile(`\*(.*?)\*`)
	fencePattern  = regexp.MustCompile("(?s)```[ \t]*(?:json|JSON)?[ \t]*\r?\n?(.*?)```")
)

// Normalize turns raw model text into a JSON object string ready for validation.
// A bare top-level array is wrapped as {arrayKey: array}.
func Normalize(raw, arrayKey string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	text = boldPattern.ReplaceAllString(text, "$1")
	text = italicPattern.ReplaceAllString(text, "$1")

	if body, ok := fencedBody(text); ok {
		text = body
	} else if span, ok := firstJSONSpan(text); ok {
		text = span
	}

	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return "", fmt.Errorf("repair JSON: %w", err)
	}
	repaired = strings.TrimSpace(repaired)

	if strings.HasPrefix(repaired, "[") {
		if arrayKey == "" {
			return "", fmt.Errorf("model returned a bare array and no wrapping key is configured")
		}
		wrapped, err := sjson.SetRaw("{}", escapeKey(arrayKey), repaired)
		if err != nil {
			return "", fmt.Errorf("wrap array: %w", err)
		}
		return wrapped, nil
	}
	return repaired, nil
}

// fencedBody returns the contents of the first markdown code fence. An
// unterminated fence (truncated output) yields everything after the opener.
func fencedBody(text string) (string, bool) {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	idx := strings.Index(text, "```")
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimPrefix(text[idx+3:], "json")
	rest = strings.TrimPrefix(rest, "JSON")
	return strings.TrimSpace(rest), true
}

// firstJSONSpan extracts the first balanced {...} span or, failing that, the
// first [...] span. An array is still preferred when the object sits inside
// it, so bare arrays of objects survive; a bracketed preamble such as
// "[Answer]" before the object does not. When the span never closes, the
// remainder is returned so the repair pass can complete it.
func firstJSONSpan(text string) (string, bool) {
	obj := strings.IndexByte(text, '{')
	arr := strings.IndexByte(text, '[')
	switch {
	case obj < 0 && arr < 0:
		return "", false
	case obj < 0:
		return balancedSpan(text, arr), true
	case arr >= 0 && arr < obj:
		if span := balancedSpan(text, arr); arr+len(span) > obj {
			return span, true
		}
	}
	return balancedSpan(text, obj), true
}

// balancedSpan returns text from start up to the bracket that closes it,
// ignoring brackets inside strings.
func balancedSpan(text string, start int) string {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}
