package tracking

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. Records are stored encoded so
// callers never share slices with the store.
type MemoryStore struct {
	mu  sync.RWMutex
	ids []string
	raw map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{raw: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context) (*Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data := NewData()
	for _, id := range s.ids {
		rec, err := DecodeRecord(s.raw[id])
		if err != nil {
			return nil, err
		}
		data.Put(id, rec)
	}
	return data, nil
}

func (s *MemoryStore) Has(ctx context.Context, articleID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.raw[articleID]
	return ok, nil
}

func (s *MemoryStore) Save(ctx context.Context, articleID string, rec Record) error {
	raw, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.raw[articleID]; !ok {
		s.ids = append(s.ids, articleID)
	}
	s.raw[articleID] = raw
	return nil
}

func (s *MemoryStore) Close() error { return nil }
