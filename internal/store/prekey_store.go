package store

import (
	"path/filepath"
	"sort"
	"sync"

	"ciphermesh/internal/domain"
)

const preKeysFile = "prekeys.json"

// preKeyFile is the on-disk layout. LastID survives removal so ids are
// never reissued before wraparound. Unpublished lists saved ids, oldest
// first, that the directory has not acknowledged yet.
type preKeyFile struct {
	LastID      domain.PreKeyID                         `json:"last_id"`
	HasLast     bool                                    `json:"has_last"`
	Records     map[domain.PreKeyID]domain.PreKeyRecord `json:"records"`
	Unpublished []domain.PreKeyID                       `json:"unpublished,omitempty"`
}

func (f *preKeyFile) dropUnpublished(drop map[domain.PreKeyID]bool) {
	kept := f.Unpublished[:0]
	for _, id := range f.Unpublished {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	f.Unpublished = kept
}

// PreKeyFileStore persists one-time pre-keys to disk.
type PreKeyFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewPreKeyFileStore returns a PreKeyFileStore rooted at dir.
func NewPreKeyFileStore(dir string) *PreKeyFileStore {
	return &PreKeyFileStore{dir: dir}
}

func (s *PreKeyFileStore) path() string { return filepath.Join(s.dir, preKeysFile) }

func (s *PreKeyFileStore) load() (preKeyFile, error) {
	f := preKeyFile{Records: map[domain.PreKeyID]domain.PreKeyRecord{}}
	if err := readJSON(s.path(), &f); err != nil {
		return f, err
	}
	if f.Records == nil {
		f.Records = map[domain.PreKeyID]domain.PreKeyRecord{}
	}
	return f, nil
}

// SavePreKeys merges records into the store, marks them unpublished and
// advances LastID to the id of the final record saved.
func (s *PreKeyFileStore) SavePreKeys(records []domain.PreKeyRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	saved := make(map[domain.PreKeyID]bool, len(records))
	for _, r := range records {
		f.Records[r.ID] = r
		saved[r.ID] = true
	}
	f.dropUnpublished(saved)
	for _, r := range records {
		if saved[r.ID] {
			f.Unpublished = append(f.Unpublished, r.ID)
			delete(saved, r.ID)
		}
	}
	f.LastID, f.HasLast = records[len(records)-1].ID, true
	return writeJSON(s.path(), f, 0o600)
}

// LoadPreKey returns the record for id without removing it.
func (s *PreKeyFileStore) LoadPreKey(id domain.PreKeyID) (domain.PreKeyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return domain.PreKeyRecord{}, false, err
	}
	r, ok := f.Records[id]
	return r, ok, nil
}

// ConsumePreKey removes and returns a single pre-key by id.
func (s *PreKeyFileStore) ConsumePreKey(id domain.PreKeyID) (domain.PreKeyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return domain.PreKeyRecord{}, false, err
	}
	r, ok := f.Records[id]
	if !ok {
		return domain.PreKeyRecord{}, false, nil
	}
	delete(f.Records, id)
	f.dropUnpublished(map[domain.PreKeyID]bool{id: true})
	if err := writeJSON(s.path(), f, 0o600); err != nil {
		return domain.PreKeyRecord{}, false, err
	}
	return r, true, nil
}

// RemovePreKey deletes id; removing an absent id is not an error.
func (s *PreKeyFileStore) RemovePreKey(id domain.PreKeyID) error {
	_, _, err := s.ConsumePreKey(id)
	return err
}

// ListPreKeys returns every stored record ordered by id.
func (s *PreKeyFileStore) ListPreKeys() ([]domain.PreKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.PreKeyRecord, 0, len(f.Records))
	for _, r := range f.Records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountPreKeys returns the number of unconsumed pre-keys.
func (s *PreKeyFileStore) CountPreKeys() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(f.Records), nil
}

// LastPreKeyID returns the id of the most recently issued pre-key.
func (s *PreKeyFileStore) LastPreKeyID() (domain.PreKeyID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return 0, false, err
	}
	return f.LastID, f.HasLast, nil
}

// UnpublishedPreKeys returns the stored records not yet marked published,
// in the order they were saved.
func (s *PreKeyFileStore) UnpublishedPreKeys() ([]domain.PreKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.PreKeyRecord, 0, len(f.Unpublished))
	for _, id := range f.Unpublished {
		if r, ok := f.Records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// MarkPreKeysPublished records that the directory holds ids.
func (s *PreKeyFileStore) MarkPreKeysPublished(ids []domain.PreKeyID) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	drop := make(map[domain.PreKeyID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	f.dropUnpublished(drop)
	return writeJSON(s.path(), f, 0o600)
}

// Compile-time assertion that PreKeyFileStore implements domain.PreKeyStore.
var _ domain.PreKeyStore = (*PreKeyFileStore)(nil)
