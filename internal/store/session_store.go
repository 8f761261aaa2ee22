package store

import (
	"path/filepath"
	"sort"
	"sync"

	"ciphermesh/internal/domain"
)

const sessionsFilename = "sessions.json"

// SessionFileStore persists ratchet sessions to disk, keyed by device address.
type SessionFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewSessionFileStore returns a SessionFileStore rooted at dir.
func NewSessionFileStore(dir string) *SessionFileStore {
	return &SessionFileStore{dir: dir}
}

func (s *SessionFileStore) path() string { return filepath.Join(s.dir, sessionsFilename) }

func (s *SessionFileStore) load() (map[string]domain.SessionRecord, error) {
	sessions := map[string]domain.SessionRecord{}
	if err := readJSON(s.path(), &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SaveSession writes the record for its address.
func (s *SessionFileStore) SaveSession(record domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load()
	if err != nil {
		return err
	}
	sessions[record.Address.String()] = record
	return writeJSON(s.path(), sessions, 0o600)
}

// LoadSession retrieves the session for addr.
func (s *SessionFileStore) LoadSession(addr domain.DeviceAddress) (domain.SessionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load()
	if err != nil {
		return domain.SessionRecord{}, false, err
	}
	rec, ok := sessions[addr.String()]
	return rec, ok, nil
}

// DeleteSession removes the session for addr if present.
func (s *SessionFileStore) DeleteSession(addr domain.DeviceAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := sessions[addr.String()]; !ok {
		return nil
	}
	delete(sessions, addr.String())
	return writeJSON(s.path(), sessions, 0o600)
}

// ListSessions returns every stored session ordered by address.
func (s *SessionFileStore) ListSessions() ([]domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.SessionRecord, 0, len(sessions))
	for _, r := range sessions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.String() < out[j].Address.String() })
	return out, nil
}

// Compile-time assertion that SessionFileStore implements domain.SessionStore.
var _ domain.SessionStore = (*SessionFileStore)(nil)
