package tracking

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store persists one Record per article id.
type Store interface {
	// Load returns every stored record in insertion order.
	Load(ctx context.Context) (*Data, error)
	Has(ctx context.Context, articleID string) (bool, error)
	// Save inserts or replaces the record for articleID. A replaced record
	// keeps its original position.
	Save(ctx context.Context, articleID string, rec Record) error
	Close() error
}

// Data is an insertion-ordered set of records keyed by article id.
type Data struct {
	ids     []string
	records map[string]Record
}

// NewData returns an empty Data.
func NewData() *Data {
	return &Data{records: make(map[string]Record)}
}

// Put inserts or replaces a record.
func (d *Data) Put(articleID string, rec Record) {
	if _, ok := d.records[articleID]; !ok {
		d.ids = append(d.ids, articleID)
	}
	d.records[articleID] = rec
}

// Get returns the record for an article.
func (d *Data) Get(articleID string) (Record, bool) {
	if d == nil {
		return Record{}, false
	}
	rec, ok := d.records[articleID]
	return rec, ok
}

// IDs lists article ids in insertion order.
func (d *Data) IDs() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.ids...)
}

// Len returns the number of records.
func (d *Data) Len() int {
	if d == nil {
		return 0
	}
	return len(d.ids)
}

// EncodeRecord renders a record the way every backend stores it.
func EncodeRecord(rec Record) ([]byte, error) {
	return marshal(rec)
}

// DecodeRecord parses a stored record.
func DecodeRecord(raw []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
