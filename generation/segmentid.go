package generation

import "strings"

// DefaultSegmentPrefix is the stem that precedes the document number in
// corpus segment ids such as msmarco_v2.1_doc_04_420132660#3_1234.
const DefaultSegmentPrefix = "msmarco_v2.1_doc_"

const docMarker = "doc_"

// ScanSegmentIDs recovers segment identifiers from free text using the grammar
//
//	id     = prefix docnum "#" suffix
//	docnum = [A-Za-z0-9_]+
//	suffix = [A-Za-z0-9_]+
//
// With an empty prefix any stem ending in "doc_" is accepted. Results are
// deduplicated and keep their order of appearance.
func ScanSegmentIDs(text, prefix string) []string {
	anchor := prefix
	if anchor == "" {
		anchor = docMarker
	}
	var ids []string
	seen := make(map[string]struct{})
	offset := 0
	for offset < len(text) {
		idx := strings.Index(text[offset:], anchor)
		if idx < 0 {
			break
		}
		pos := offset + idx
		start := pos
		if prefix == "" {
			for start > 0 && isStemByte(text[start-1]) {
				start--
			}
		}
		id, end, ok := scanTail(text, start, pos+len(anchor))
		if !ok {
			offset = pos + len(anchor)
			continue
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		offset = end
	}
	return ids
}

// scanTail reads docnum "#" suffix starting at i and returns the id spanning from start.
func scanTail(text string, start, i int) (string, int, bool) {
	numStart := i
	for i < len(text) && isWordByte(text[i]) {
		i++
	}
	if i == numStart || i >= len(text) || text[i] != '#' {
		return "", i, false
	}
	i++
	suffixStart := i
	for i < len(text) && isWordByte(text[i]) {
		i++
	}
	end := i
	for end > suffixStart && text[end-1] == '_' {
		end--
	}
	if end == suffixStart {
		return "", i, false
	}
	return text[start:end], i, true
}

func isWordByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isStemByte(c byte) bool {
	return isWordByte(c) || c == '.' || c == '-'
}
