package store

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"ciphermesh/internal/domain"
)

const (
	idFilename       = "identity.json"
	idSealedFilename = "identity.json.age"
)

// IdentityFileStore persists the local identity to disk. With a passphrase
// the identity is sealed with age; without one it is written as plain JSON
// readable only by the owner.
type IdentityFileStore struct {
	dir        string
	passphrase string
	workFactor int
	mu         sync.Mutex
}

// NewIdentityFileStore returns an IdentityFileStore rooted at dir.
func NewIdentityFileStore(dir, passphrase string) *IdentityFileStore {
	return &IdentityFileStore{dir: dir, passphrase: passphrase, workFactor: scryptWorkFactor}
}

// WithWorkFactor overrides the scrypt work factor for newly sealed blobs.
func (s *IdentityFileStore) WithWorkFactor(logN int) *IdentityFileStore {
	s.workFactor = logN
	return s
}

// SaveIdentity writes the identity, sealing it when a passphrase is set.
func (s *IdentityFileStore) SaveIdentity(id domain.IdentityKeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.passphrase == "" {
		return writeJSON(filepath.Join(s.dir, idFilename), id, 0o600)
	}
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	blob, err := seal(s.passphrase, raw, s.workFactor)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, idSealedFilename), blob, 0o600)
}

// LoadIdentity reads the identity. A missing file is reported as ok=false.
func (s *IdentityFileStore) LoadIdentity() (domain.IdentityKeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id domain.IdentityKeyPair
	if s.passphrase == "" {
		b, err := readFile(filepath.Join(s.dir, idFilename))
		if err != nil || b == nil {
			return id, false, err
		}
		if err := json.Unmarshal(b, &id); err != nil {
			return id, false, err
		}
		return id, true, nil
	}

	blob, err := readFile(filepath.Join(s.dir, idSealedFilename))
	if err != nil || blob == nil {
		return id, false, err
	}
	raw, err := unseal(s.passphrase, blob)
	if err != nil {
		return id, false, err
	}
	if err := json.Unmarshal(raw, &id); err != nil {
		return id, false, err
	}
	return id, true, nil
}

// Compile-time assertion that IdentityFileStore implements domain.IdentityStore.
var _ domain.IdentityStore = (*IdentityFileStore)(nil)
