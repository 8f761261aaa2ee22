package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ciphermesh/internal/domain"
	"ciphermesh/internal/metrics"
	"ciphermesh/internal/protocol/ratchet"
	"ciphermesh/internal/util/keyedmutex"
)

// Config carries the Engine's collaborators. Stores are required; the rest
// default to the ratchet cipher, a nop logger, a private registry and the
// wall clock.
type Config struct {
	Identity      domain.IdentityStore
	PreKeys       domain.PreKeyStore
	SignedPreKeys domain.SignedPreKeyStore
	Sessions      domain.SessionStore

	Cipher  Cipher
	Log     *zap.Logger
	Metrics *metrics.Registry
	Now     func() time.Time
}

// Engine owns the per-address session records. Operations on one address
// are serialised; different addresses proceed concurrently. Every ratchet
// step runs on a copy of the record and the store write is the commit.
type Engine struct {
	ids      domain.IdentityStore
	pks      domain.PreKeyStore
	spks     domain.SignedPreKeyStore
	sessions domain.SessionStore
	cipher   Cipher
	log      *zap.Logger
	metrics  *metrics.Registry
	now      func() time.Time

	locks keyedmutex.Mutex[domain.DeviceAddress]
	loads singleflight.Group

	hookMu     sync.RWMutex
	onConsumed func(ctx context.Context)
}

// New returns an Engine over cfg.
func New(cfg Config) *Engine {
	e := &Engine{
		ids:      cfg.Identity,
		pks:      cfg.PreKeys,
		spks:     cfg.SignedPreKeys,
		sessions: cfg.Sessions,
		cipher:   cfg.Cipher,
		log:      cfg.Log,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}
	if e.cipher == nil {
		e.cipher = RatchetCipher{}
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// OnPreKeyConsumed registers fn to run after a pre-key message consumed a
// local one-time pre-key. fn runs on the decrypting goroutine once the
// address lock is released.
func (e *Engine) OnPreKeyConsumed(fn func(ctx context.Context)) {
	e.hookMu.Lock()
	e.onConsumed = fn
	e.hookMu.Unlock()
}

// HasSession reports whether a session exists for addr. Concurrent calls for
// the same address share one store read.
func (e *Engine) HasSession(ctx context.Context, addr domain.DeviceAddress) (bool, error) {
	v, err, _ := e.loads.Do("session:"+addr.String(), func() (any, error) {
		_, ok, err := e.sessions.LoadSession(addr)
		return ok, err
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// KnownDevices returns the addresses of users with a stored session, in
// store order.
func (e *Engine) KnownDevices(ctx context.Context, users ...domain.UserID) ([]domain.DeviceAddress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs, err := e.sessions.ListSessions()
	if err != nil {
		return nil, err
	}
	want := make(map[domain.UserID]bool, len(users))
	for _, u := range users {
		want[u] = true
	}
	var out []domain.DeviceAddress
	for _, r := range recs {
		if want[r.Address.UserID] {
			out = append(out, r.Address)
		}
	}
	return out, nil
}

// DeleteSession removes the session for addr.
func (e *Engine) DeleteSession(ctx context.Context, addr domain.DeviceAddress) error {
	unlock, err := e.locks.Lock(ctx, addr)
	if err != nil {
		return err
	}
	defer unlock()
	return e.sessions.DeleteSession(addr)
}

// Establish verifies bundle and replaces any session for its address.
func (e *Engine) Establish(ctx context.Context, bundle domain.PreKeyBundle) error {
	addr := bundle.Address()
	unlock, err := e.locks.Lock(ctx, addr)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := e.initiate(bundle)
	if err != nil {
		return err
	}
	return e.commit(ctx, rec)
}

// Encrypt encrypts plaintext on the existing session for addr.
func (e *Engine) Encrypt(ctx context.Context, addr domain.DeviceAddress, plaintext []byte) ([]byte, domain.CipherType, error) {
	unlock, err := e.locks.Lock(ctx, addr)
	if err != nil {
		return nil, domain.CipherUnknown, err
	}
	defer unlock()

	stored, ok, err := e.sessions.LoadSession(addr)
	if err != nil {
		return nil, domain.CipherUnknown, err
	}
	if !ok {
		return nil, domain.CipherUnknown, fmt.Errorf("encrypt for %s: %w", addr, domain.ErrNoSession)
	}
	rec := stored.Clone()
	payload, ct, err := e.cipher.Encrypt(&rec, plaintext)
	if err != nil {
		return nil, domain.CipherUnknown, fmt.Errorf("encrypt for %s: %w", addr, err)
	}
	if err := e.commit(ctx, rec); err != nil {
		return nil, domain.CipherUnknown, err
	}
	return payload, ct, nil
}

// EncryptFor establishes a session from bundle when none exists and
// encrypts plaintext for the bundle's address.
//
// A pre-key ciphertext from a session that existed before the call means
// the ratchet did not advance. The session is then rebuilt from bundle and
// the plaintext encrypted again, once. A failed rebuild returns
// ErrSessionCorrupted.
func (e *Engine) EncryptFor(ctx context.Context, bundle domain.PreKeyBundle, plaintext []byte) ([]byte, domain.CipherType, error) {
	addr := bundle.Address()
	unlock, err := e.locks.Lock(ctx, addr)
	if err != nil {
		return nil, domain.CipherUnknown, err
	}
	defer unlock()

	stored, existed, err := e.sessions.LoadSession(addr)
	if err != nil {
		return nil, domain.CipherUnknown, err
	}
	var rec domain.SessionRecord
	switch {
	case !existed:
		if rec, err = e.initiate(bundle); err != nil {
			return nil, domain.CipherUnknown, err
		}
	case stored.PeerIdentity != bundle.IdentityKey:
		e.metrics.Inc(metrics.KeyMismatch)
		e.log.Warn("peer identity changed, replacing session", zap.String("address", addr.String()))
		if rec, err = e.initiate(bundle); err != nil {
			return nil, domain.CipherUnknown, err
		}
		existed = false
	default:
		rec = stored.Clone()
	}

	payload, ct, err := e.cipher.Encrypt(&rec, plaintext)
	if err != nil {
		return nil, domain.CipherUnknown, fmt.Errorf("encrypt for %s: %w", addr, err)
	}
	if existed && ct == domain.PreKeyInit {
		payload, ct, err = e.rebuild(ctx, bundle, plaintext)
		if err != nil {
			return nil, domain.CipherUnknown, err
		}
		return payload, ct, nil
	}
	if err := e.commit(ctx, rec); err != nil {
		return nil, domain.CipherUnknown, err
	}
	return payload, ct, nil
}

// rebuild runs with the address lock held.
func (e *Engine) rebuild(ctx context.Context, bundle domain.PreKeyBundle, plaintext []byte) ([]byte, domain.CipherType, error) {
	addr := bundle.Address()
	e.metrics.Inc(metrics.SessionRebuilt)
	e.log.Warn("session corrupted, rebuilding", zap.String("address", addr.String()))

	if err := e.sessions.DeleteSession(addr); err != nil {
		return nil, domain.CipherUnknown, fmt.Errorf("%w: delete %s: %v", domain.ErrSessionCorrupted, addr, err)
	}
	rec, err := e.initiate(bundle)
	if err != nil {
		return nil, domain.CipherUnknown, fmt.Errorf("%w: rebuild %s: %v", domain.ErrSessionCorrupted, addr, err)
	}
	payload, ct, err := e.cipher.Encrypt(&rec, plaintext)
	if err != nil {
		return nil, domain.CipherUnknown, fmt.Errorf("%w: re-encrypt %s: %v", domain.ErrSessionCorrupted, addr, err)
	}
	if err := e.commit(ctx, rec); err != nil {
		return nil, domain.CipherUnknown, err
	}
	return payload, ct, nil
}

// Decrypt opens payload from addr. Pre-key messages create the session,
// consume the named one-time pre-key and replace any prior session for
// addr. Every failure wraps ErrDecryptFailed and is counted.
func (e *Engine) Decrypt(ctx context.Context, from domain.DeviceAddress, payload []byte, ct domain.CipherType) ([]byte, error) {
	pt, consumed, err := e.decrypt(ctx, from, payload, ct)
	if consumed {
		e.hookMu.RLock()
		fn := e.onConsumed
		e.hookMu.RUnlock()
		if fn != nil {
			fn(ctx)
		}
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			e.metrics.Inc(metrics.DecryptFailed)
		}
		e.log.Debug("decrypt failed", zap.String("address", from.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrDecryptFailed, err)
	}
	return pt, nil
}

func (e *Engine) decrypt(ctx context.Context, from domain.DeviceAddress, payload []byte, ct domain.CipherType) ([]byte, bool, error) {
	if ct != domain.PreKeyInit && ct != domain.Established {
		return nil, false, domain.ErrUnknownCipherType
	}
	msg, err := ratchet.DecodeMessage(payload)
	if err != nil {
		return nil, false, err
	}
	if msg.CipherType() != ct {
		return nil, false, fmt.Errorf("payload is %s, item says %s", msg.CipherType(), ct)
	}

	unlock, err := e.locks.Lock(ctx, from)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	if ct == domain.PreKeyInit {
		return e.acceptPreKey(ctx, from, msg)
	}

	stored, ok, err := e.sessions.LoadSession(from)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, domain.ErrNoSession
	}
	rec := stored.Clone()
	pt, err := e.cipher.Decrypt(&rec, msg)
	if err != nil {
		return nil, false, err
	}
	if err := e.commit(ctx, rec); err != nil {
		return nil, false, err
	}
	return pt, false, nil
}

// acceptPreKey runs with the address lock held. consumed reports whether the
// one-time pre-key was removed, which stays true when the session write
// after it fails.
func (e *Engine) acceptPreKey(ctx context.Context, from domain.DeviceAddress, msg ratchet.Message) (pt []byte, consumed bool, err error) {
	pm := msg.PreKey
	id, err := e.identity()
	if err != nil {
		return nil, false, err
	}
	spk, ok, err := e.spks.LoadSignedPreKey(pm.SignedPreKeyID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("%w: id %d", domain.ErrSignedPreKeyNotFound, pm.SignedPreKeyID)
	}
	opk, ok, err := e.pks.LoadPreKey(pm.PreKeyID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("%w: id %d", domain.ErrPreKeyNotFound, pm.PreKeyID)
	}

	rec, err := e.cipher.Respond(id, spk, opk, from, msg)
	if err != nil {
		return nil, false, err
	}
	pt, err = e.cipher.Decrypt(&rec, msg)
	if err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	if prior, ok, err := e.sessions.LoadSession(from); err == nil && ok && prior.PeerIdentity != rec.PeerIdentity {
		e.metrics.Inc(metrics.KeyMismatch)
		e.log.Warn("peer identity changed on pre-key message", zap.String("address", from.String()))
	}
	// The pre-key goes first so it can never be used twice, even if the
	// session write below fails.
	if _, _, err := e.pks.ConsumePreKey(pm.PreKeyID); err != nil {
		return nil, false, fmt.Errorf("consume pre-key %d: %w", pm.PreKeyID, err)
	}
	e.metrics.Inc(metrics.PreKeyConsumed)
	if err := e.commit(ctx, rec); err != nil {
		return nil, true, err
	}
	return pt, true, nil
}

func (e *Engine) initiate(bundle domain.PreKeyBundle) (domain.SessionRecord, error) {
	if err := bundle.Validate(); err != nil {
		e.metrics.Inc(metrics.BundleRejected)
		return domain.SessionRecord{}, err
	}
	id, err := e.identity()
	if err != nil {
		return domain.SessionRecord{}, err
	}
	rec, err := e.cipher.Initiate(id, bundle)
	if err != nil {
		if errors.Is(err, domain.ErrBadSignature) {
			e.metrics.Inc(metrics.BundleRejected)
		}
		return domain.SessionRecord{}, fmt.Errorf("establish %s: %w", bundle.Address(), err)
	}
	rec.CreatedAt = e.now()
	return rec, nil
}

// commit persists rec unless ctx was cancelled first.
func (e *Engine) commit(ctx context.Context, rec domain.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.UpdatedAt = e.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
	return e.sessions.SaveSession(rec)
}

func (e *Engine) identity() (domain.IdentityKeyPair, error) {
	v, err, _ := e.loads.Do("identity", func() (any, error) {
		id, ok, err := e.ids.LoadIdentity()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrNoIdentity
		}
		return id, nil
	})
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	return v.(domain.IdentityKeyPair), nil
}

var _ domain.SessionEngine = (*Engine)(nil)
