package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"ciphermesh/internal/domain"
)

const sentFile = "sent.json"

// SentFileStore persists outbound message records to disk.
type SentFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewSentFileStore returns a SentFileStore rooted at dir.
func NewSentFileStore(dir string) *SentFileStore {
	return &SentFileStore{dir: dir}
}

// SaveSent stores record. Item ids are unique; saving the same id twice is
// an error.
func (s *SentFileStore) SaveSent(_ context.Context, record domain.SentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, sentFile)
	records := make(map[domain.ItemID]domain.SentRecord)
	if err := readJSON(path, &records); err != nil {
		return err
	}
	if _, ok := records[record.ItemID]; ok {
		return fmt.Errorf("sent record %s: %w", record.ItemID, domain.ErrAlreadyExists)
	}
	records[record.ItemID] = record
	return writeJSON(path, records, 0o600)
}

// LoadSent retrieves the record for id.
func (s *SentFileStore) LoadSent(_ context.Context, id domain.ItemID) (domain.SentRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make(map[domain.ItemID]domain.SentRecord)
	if err := readJSON(filepath.Join(s.dir, sentFile), &records); err != nil {
		return domain.SentRecord{}, false, err
	}
	r, ok := records[id]
	return r, ok, nil
}

// ListSent returns every record ordered by send time.
func (s *SentFileStore) ListSent(_ context.Context) ([]domain.SentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make(map[domain.ItemID]domain.SentRecord)
	if err := readJSON(filepath.Join(s.dir, sentFile), &records); err != nil {
		return nil, err
	}
	out := make([]domain.SentRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

// Compile-time assertion that SentFileStore implements domain.SentStore.
var _ domain.SentStore = (*SentFileStore)(nil)
