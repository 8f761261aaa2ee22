package identity

import (
	"fmt"
	"sync"
	"unicode"

	"ciphermesh/internal/crypto"
	"ciphermesh/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
)

// Service creates and loads the device identity.
//
// The identity contains:
//   - X25519 key pair for Diffie-Hellman (X3DH and Double Ratchet).
//   - Ed25519 key pair for signing the signed pre-key.
//   - A random registration id, stable for the life of the installation.
type Service struct {
	store domain.IdentityStore
	mu    sync.Mutex
}

// New returns an identity service backed by the given store.
func New(s domain.IdentityStore) *Service { return &Service{store: s} }

// LoadOrCreate returns the stored identity, generating and saving one on
// first use. created reports whether a new identity was made.
func (s *Service) LoadOrCreate() (id domain.IdentityKeyPair, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok, err := s.store.LoadIdentity()
	if err != nil {
		return domain.IdentityKeyPair{}, false, err
	}
	if ok {
		return id, false, nil
	}
	if id, err = Generate(); err != nil {
		return domain.IdentityKeyPair{}, false, err
	}
	if err := s.store.SaveIdentity(id); err != nil {
		return domain.IdentityKeyPair{}, false, err
	}
	return id, true, nil
}

// Load returns the stored identity or domain.ErrNoIdentity.
func (s *Service) Load() (domain.IdentityKeyPair, error) {
	id, ok, err := s.store.LoadIdentity()
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	if !ok {
		return domain.IdentityKeyPair{}, domain.ErrNoIdentity
	}
	return id, nil
}

// Fingerprint returns the fingerprint of the local identity.
func (s *Service) Fingerprint() (domain.Fingerprint, error) {
	id, err := s.Load()
	if err != nil {
		return "", err
	}
	return Fingerprint(id), nil
}

// Fingerprint covers both public halves of id, agreement key first.
func Fingerprint(id domain.IdentityKeyPair) domain.Fingerprint {
	return domain.Fingerprint(crypto.Fingerprint(id.XPub.Slice(), id.EdPub.Slice()))
}

// Generate creates a fresh identity without storing it.
func Generate() (domain.IdentityKeyPair, error) {
	// Generate Diffie-Hellman keypair for X3DH.
	xPriv, xPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	// Generate signing keypair.
	edPriv, edPub, err := crypto.GenerateEd25519()
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	regID, err := crypto.GenerateRegistrationID()
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	return domain.IdentityKeyPair{
		XPub:           xPub,
		XPriv:          xPriv,
		EdPub:          edPub,
		EdPriv:         edPriv,
		RegistrationID: regID,
	}, nil
}

// CheckPassphrase enforces the strength policy on a passphrase used to seal
// the identity at rest. An empty passphrase means no sealing and is allowed.
func CheckPassphrase(passphrase string) error {
	if passphrase == "" || isSecurePassphrase(passphrase) {
		return nil
	}
	return ErrWeakPassphrase
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}
