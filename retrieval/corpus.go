package retrieval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// CorpusRecord is one line of a segmented corpus file.
type CorpusRecord struct {
	DocID string `json:"docid"`
	StoredSegment
}

// ReadCorpus streams JSON lines from r and calls fn for each record.
// Blank lines are skipped; a malformed line aborts with its line number.
func ReadCorpus(r io.Reader, fn func(CorpusRecord) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec CorpusRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return fmt.Errorf("corpus line %d: %w", line, err)
		}
		if rec.DocID == "" {
			return fmt.Errorf("corpus line %d: missing docid", line)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}
