package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
)

// errWrongPassphrase is returned when the passphrase is incorrect or the
// sealed blob has been modified.
var errWrongPassphrase = errors.New("wrong passphrase or corrupted identity")

// scryptWorkFactor is log2 of the scrypt N parameter used for new blobs.
const scryptWorkFactor = 15

// seal encrypts raw to an age scrypt recipient derived from passphrase.
func seal(passphrase string, raw []byte, workFactor int) ([]byte, error) {
	r, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, err
	}
	r.SetWorkFactor(workFactor)

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, r)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unseal opens a blob produced by seal.
func unseal(passphrase string, blob []byte) ([]byte, error) {
	id, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	r, err := age.Decrypt(bytes.NewReader(blob), id)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, errWrongPassphrase
		}
		return nil, fmt.Errorf("%w: %v", errWrongPassphrase, err)
	}
	return io.ReadAll(r)
}
