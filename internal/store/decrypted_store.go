package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	"ciphermesh/internal/domain"
)

const decryptedDir = "decrypted"

// DecryptedFileStore keeps one file per item id. Files are published with a
// hard link so an existing entry is never replaced.
type DecryptedFileStore struct {
	dir string
}

// NewDecryptedFileStore returns a DecryptedFileStore under dir, creating the
// cache directory if needed.
func NewDecryptedFileStore(dir string) (*DecryptedFileStore, error) {
	d := filepath.Join(dir, decryptedDir)
	if err := os.MkdirAll(d, 0o700); err != nil {
		return nil, err
	}
	return &DecryptedFileStore{dir: d}, nil
}

func (s *DecryptedFileStore) path(id domain.ItemID) string {
	sum := sha256.Sum256([]byte(id))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:]))
}

// Get returns the cached plaintext for id.
func (s *DecryptedFileStore) Get(_ context.Context, id domain.ItemID) ([]byte, bool, error) {
	b, err := readFile(s.path(id))
	if err != nil || b == nil {
		return nil, false, err
	}
	return b, true, nil
}

// PutIfAbsent writes plaintext for id unless an entry already exists. The
// contents are synced before the link makes them visible.
func (s *DecryptedFileStore) PutIfAbsent(_ context.Context, id domain.ItemID, plaintext []byte) (bool, error) {
	f, err := os.CreateTemp(s.dir, "pending-*")
	if err != nil {
		return false, err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err = f.Write(plaintext); err == nil {
		if err = f.Chmod(0o600); err == nil {
			err = f.Sync()
		}
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return false, err
	}

	if err := os.Link(tmp, s.path(id)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	syncDir(s.dir)
	return true, nil
}

// Compile-time assertion that DecryptedFileStore implements domain.DecryptedCache.
var _ domain.DecryptedCache = (*DecryptedFileStore)(nil)
