package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
)

// FileStore keeps every record in a single JSON object keyed by article id.
// The whole file is rewritten after each Save so a crash never leaves a
// half-written document behind.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu  sync.Mutex
	ids []string
	raw map[string]json.RawMessage
}

// OpenFile opens path, reading any records already in it. A missing file is
// an empty store.
func OpenFile(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("tracking: file path is required")
	}
	s := &FileStore{
		path:   path,
		logger: logging.WithComponent("tracking.file"),
		raw:    make(map[string]json.RawMessage),
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("tracking: read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("tracking: %s is not valid json", path)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("tracking: %s must hold a json object", path)
	}
	root.ForEach(func(key, value gjson.Result) bool {
		id := key.String()
		if _, dup := s.raw[id]; !dup {
			s.ids = append(s.ids, id)
		}
		s.raw[id] = json.RawMessage(value.Raw)
		return true
	})
	s.logger.Info("tracking file loaded", "path", path, "articles", len(s.ids))
	return s, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load implements Store.
func (s *FileStore) Load(ctx context.Context) (*Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := NewData()
	for _, id := range s.ids {
		rec, err := DecodeRecord(s.raw[id])
		if err != nil {
			return nil, fmt.Errorf("tracking: article %s: %w", id, err)
		}
		data.Put(id, rec)
	}
	return data, nil
}

// Has implements Store.
func (s *FileStore) Has(ctx context.Context, articleID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.raw[articleID]
	return ok, nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, articleID string, rec Record) error {
	raw, err := EncodeRecord(rec)
	if err != nil {
		return fmt.Errorf("tracking: encode %s: %w", articleID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.raw[articleID]; !ok {
		s.ids = append(s.ids, articleID)
	}
	s.raw[articleID] = raw
	return s.flush()
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// flush writes the document to a temp file in the same directory and renames
// it over the old one.
func (s *FileStore) flush() error {
	var doc bytes.Buffer
	doc.WriteByte('{')
	for i, id := range s.ids {
		if i > 0 {
			doc.WriteByte(',')
		}
		key, err := marshal(id)
		if err != nil {
			return err
		}
		doc.Write(key)
		doc.WriteByte(':')
		doc.Write(s.raw[id])
	}
	doc.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, doc.Bytes(), "", "    "); err != nil {
		return fmt.Errorf("tracking: indent: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("tracking: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("tracking: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(out.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("tracking: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tracking: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("tracking: replace %s: %w", s.path, err)
	}
	s.logger.Debug("tracking file written", "path", s.path, "articles", len(s.ids))
	return nil
}
