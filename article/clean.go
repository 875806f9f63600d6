package article

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	htmlTagPattern  = regexp.MustCompile(`(?i)<(p|div|br|span|a|h[1-6]|li|ul|ol|table|article|section)\b[^>]*>`)
	spacesPattern   = regexp.MustCompile(`[ \t]+`)
	newlinesPattern = regexp.MustCompile(`\n{3,}`)
)

// cleaned returns a copy whose HTML-bearing string fields are plain text.
func (a Article) cleaned() Article {
	fields := make(map[string]any, len(a.fields))
	for k, v := range a.fields {
		if s, ok := v.(string); ok && LooksLikeHTML(s) {
			if text, err := HTMLToText(s); err == nil {
				v = NormalizeSpace(text)
			}
		}
		fields[k] = v
	}
	return Article{ID: a.ID, fields: fields}
}

// LooksLikeHTML reports whether s contains common block or inline tags.
func LooksLikeHTML(s string) bool {
	return htmlTagPattern.MatchString(s)
}

// NormalizeSpace drops control characters other than newlines, collapses
// runs of spaces and limits blank lines to one.
func NormalizeSpace(text string) string {
	b := strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	b = spacesPattern.ReplaceAllString(b, " ")
	b = newlinesPattern.ReplaceAllString(b, "\n\n")
	return strings.TrimSpace(b)
}

// HTMLToText keeps headings, paragraphs and list items of an HTML fragment,
// dropping scripts, styles and navigation. Repeated paragraphs are kept once.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script,style,nav,footer,aside,form").Remove()

	var (
		out  []string
		seen = make(map[string]struct{})
	)
	doc.Find("h1,h2,h3,h4,h5,h6,p,li,blockquote").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("li,blockquote").Length() > 0 {
			return
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		if _, dup := seen[text]; dup {
			return
		}
		seen[text] = struct{}{}
		if goquery.NodeName(s) == "li" {
			text = "- " + text
		}
		out = append(out, text)
	})
	if len(out) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.Join(out, "\n\n"), nil
}
