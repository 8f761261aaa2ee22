package store

import (
	"path/filepath"
	"sort"
	"sync"

	"ciphermesh/internal/domain"
)

const signedPreKeysFile = "signed_prekeys.json"

type signedPreKeyFile struct {
	Current    domain.SignedPreKeyID                               `json:"current"`
	HasCurrent bool                                                `json:"has_current"`
	Records    map[domain.SignedPreKeyID]domain.SignedPreKeyRecord `json:"records"`
}

// SignedPreKeyFileStore persists signed pre-keys, current and retired.
type SignedPreKeyFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewSignedPreKeyFileStore returns a SignedPreKeyFileStore rooted at dir.
func NewSignedPreKeyFileStore(dir string) *SignedPreKeyFileStore {
	return &SignedPreKeyFileStore{dir: dir}
}

func (s *SignedPreKeyFileStore) path() string { return filepath.Join(s.dir, signedPreKeysFile) }

func (s *SignedPreKeyFileStore) load() (signedPreKeyFile, error) {
	f := signedPreKeyFile{Records: map[domain.SignedPreKeyID]domain.SignedPreKeyRecord{}}
	if err := readJSON(s.path(), &f); err != nil {
		return f, err
	}
	if f.Records == nil {
		f.Records = map[domain.SignedPreKeyID]domain.SignedPreKeyRecord{}
	}
	return f, nil
}

func (s *SignedPreKeyFileStore) update(fn func(f *signedPreKeyFile)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	fn(&f)
	return writeJSON(s.path(), f, 0o600)
}

// SaveSignedPreKey stores a signed pre-key by id.
func (s *SignedPreKeyFileStore) SaveSignedPreKey(record domain.SignedPreKeyRecord) error {
	return s.update(func(f *signedPreKeyFile) { f.Records[record.ID] = record })
}

// LoadSignedPreKey retrieves a signed pre-key by id.
func (s *SignedPreKeyFileStore) LoadSignedPreKey(id domain.SignedPreKeyID) (domain.SignedPreKeyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return domain.SignedPreKeyRecord{}, false, err
	}
	r, ok := f.Records[id]
	return r, ok, nil
}

// RemoveSignedPreKey deletes id. The current marker is cleared if it
// pointed at id.
func (s *SignedPreKeyFileStore) RemoveSignedPreKey(id domain.SignedPreKeyID) error {
	return s.update(func(f *signedPreKeyFile) {
		delete(f.Records, id)
		if f.HasCurrent && f.Current == id {
			f.Current, f.HasCurrent = 0, false
		}
	})
}

// ListSignedPreKeys returns every stored record ordered by id.
func (s *SignedPreKeyFileStore) ListSignedPreKeys() ([]domain.SignedPreKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.SignedPreKeyRecord, 0, len(f.Records))
	for _, r := range f.Records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetCurrentSignedPreKeyID records which signed pre-key id is current.
func (s *SignedPreKeyFileStore) SetCurrentSignedPreKeyID(id domain.SignedPreKeyID) error {
	return s.update(func(f *signedPreKeyFile) { f.Current, f.HasCurrent = id, true })
}

// CurrentSignedPreKeyID returns the recorded current signed pre-key id.
func (s *SignedPreKeyFileStore) CurrentSignedPreKeyID() (domain.SignedPreKeyID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return 0, false, err
	}
	return f.Current, f.HasCurrent, nil
}

// Compile-time assertion that SignedPreKeyFileStore implements domain.SignedPreKeyStore.
var _ domain.SignedPreKeyStore = (*SignedPreKeyFileStore)(nil)
