package prekey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ciphermesh/internal/crypto"
	"ciphermesh/internal/domain"
	"ciphermesh/internal/metrics"
	"ciphermesh/internal/services/identity"
)

const (
	DefaultLowWater  = 20
	DefaultBatchSize = 110
	DefaultRotation  = 24 * time.Hour
	DefaultRetention = 30 * 24 * time.Hour

	// MaxPreKeyID is the largest one-time pre-key id; the next id wraps to 0.
	MaxPreKeyID domain.PreKeyID = 0xFFFFFF
	// MaxSignedPreKeyID is the largest signed pre-key id; the next wraps to 1.
	MaxSignedPreKeyID domain.SignedPreKeyID = 0xFFFFFF
)

// Config carries the Manager's collaborators and thresholds. Zero
// thresholds take the defaults above.
type Config struct {
	Identity      *identity.Service
	PreKeys       domain.PreKeyStore
	SignedPreKeys domain.SignedPreKeyStore
	Directory     domain.Directory

	LowWater  int
	BatchSize int
	Rotation  time.Duration
	Retention time.Duration

	Log     *zap.Logger
	Metrics *metrics.Registry
	Now     func() time.Time
}

// Manager keeps this device's key material published: identity, a fresh
// signed pre-key and a pool of one-time pre-keys.
type Manager struct {
	ids  *identity.Service
	pks  domain.PreKeyStore
	spks domain.SignedPreKeyStore
	dir  domain.Directory

	lowWater  int
	batchSize int
	rotation  time.Duration
	retention time.Duration

	log     *zap.Logger
	metrics *metrics.Registry
	now     func() time.Time

	flight singleflight.Group
}

func New(cfg Config) *Manager {
	m := &Manager{
		ids:       cfg.Identity,
		pks:       cfg.PreKeys,
		spks:      cfg.SignedPreKeys,
		dir:       cfg.Directory,
		lowWater:  cfg.LowWater,
		batchSize: cfg.BatchSize,
		rotation:  cfg.Rotation,
		retention: cfg.Retention,
		log:       cfg.Log,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
	}
	if m.lowWater <= 0 {
		m.lowWater = DefaultLowWater
	}
	if m.batchSize <= 0 {
		m.batchSize = DefaultBatchSize
	}
	if m.rotation <= 0 {
		m.rotation = DefaultRotation
	}
	if m.retention <= 0 {
		m.retention = DefaultRetention
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.metrics == nil {
		m.metrics = metrics.New()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Bootstrap makes sure a local identity and signed pre-key exist, then
// runs Probe. Local failures are returned as is; a failed probe is wrapped
// so callers can continue offline.
func (m *Manager) Bootstrap(ctx context.Context) error {
	id, created, err := m.ids.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	if created {
		m.log.Info("generated identity", zap.String("fingerprint", identity.Fingerprint(id).String()))
	}
	if _, ok, err := m.currentSignedPreKey(); err != nil {
		return err
	} else if !ok {
		if _, err := m.newSignedPreKey(id); err != nil {
			return err
		}
	}
	if err := m.Probe(ctx); err != nil {
		return fmt.Errorf("probe directory: %w", err)
	}
	return nil
}

// Probe queries the directory once and runs every check against it.
func (m *Manager) Probe(ctx context.Context) error {
	st, err := m.dir.QueryStatus(ctx)
	if err != nil {
		return err
	}
	return errors.Join(
		m.CheckIdentity(ctx, st),
		m.CheckSignedPreKey(ctx, &st),
		m.CheckPreKeys(ctx, &st.PreKeyCount),
	)
}

// CheckIdentity uploads the public identity when the directory has none.
func (m *Manager) CheckIdentity(ctx context.Context, st domain.DirectoryStatus) error {
	if st.HasIdentity {
		return nil
	}
	id, err := m.ids.Load()
	if err != nil {
		return err
	}
	if err := m.dir.UploadIdentity(ctx, id.XPub, id.EdPub, id.RegistrationID); err != nil {
		return fmt.Errorf("upload identity: %w", err)
	}
	m.metrics.Inc(metrics.IdentityUploaded)
	m.log.Info("uploaded identity", zap.Uint32("registration_id", id.RegistrationID))
	return nil
}

// CheckSignedPreKey rotates the current signed pre-key when it is older
// than the rotation interval, republishes it when the directory disagrees,
// and prunes retired records past the retention window. st may be nil when
// no directory status is at hand.
func (m *Manager) CheckSignedPreKey(ctx context.Context, st *domain.DirectoryStatus) error {
	_, err, _ := m.flight.Do("signed", func() (any, error) {
		return nil, m.checkSignedPreKey(ctx, st)
	})
	return err
}

func (m *Manager) checkSignedPreKey(ctx context.Context, st *domain.DirectoryStatus) error {
	cur, ok, err := m.currentSignedPreKey()
	if err != nil {
		return err
	}
	switch {
	case !ok || m.now().Sub(cur.CreatedAt) >= m.rotation:
		if err := m.rotate(ctx, cur, ok); err != nil {
			return err
		}
	case st != nil && (!st.HasSignedPreKey || st.SignedPreKeyID != cur.ID):
		if st.HasSignedPreKey {
			m.metrics.Inc(metrics.KeyMismatch)
			m.log.Warn("directory holds a different signed pre-key",
				zap.Uint32("remote", uint32(st.SignedPreKeyID)),
				zap.Uint32("local", uint32(cur.ID)))
		}
		if err := m.dir.UploadSignedPreKey(ctx, cur.Public()); err != nil {
			return fmt.Errorf("upload signed pre-key: %w", err)
		}
	}
	return m.prune()
}

func (m *Manager) rotate(ctx context.Context, old domain.SignedPreKeyRecord, hadOld bool) error {
	id, err := m.ids.Load()
	if err != nil {
		return err
	}
	rec, err := m.newSignedPreKey(id)
	if err != nil {
		return err
	}
	if err := m.dir.UploadSignedPreKey(ctx, rec.Public()); err != nil {
		return fmt.Errorf("upload signed pre-key: %w", err)
	}
	m.metrics.Inc(metrics.SignedPreKeyRotated)
	m.log.Info("rotated signed pre-key", zap.Uint32("id", uint32(rec.ID)))
	if hadOld {
		// The local copy stays until pruned so in-flight pre-key messages
		// naming it still decrypt.
		if err := m.dir.RemoveSignedPreKey(ctx, old.ID); err != nil {
			return fmt.Errorf("remove signed pre-key %d: %w", old.ID, err)
		}
	}
	return nil
}

// newSignedPreKey generates, signs, stores and marks current a new record.
func (m *Manager) newSignedPreKey(id domain.IdentityKeyPair) (domain.SignedPreKeyRecord, error) {
	cur, ok, err := m.spks.CurrentSignedPreKeyID()
	if err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	next := domain.SignedPreKeyID(1)
	if ok && cur < MaxSignedPreKeyID {
		next = cur + 1
	}
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	rec := domain.SignedPreKeyRecord{
		ID:        next,
		Priv:      priv,
		Pub:       pub,
		Signature: crypto.SignSignedPreKey(id.EdPriv, next, pub),
		CreatedAt: m.now(),
	}
	if err := m.spks.SaveSignedPreKey(rec); err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	if err := m.spks.SetCurrentSignedPreKeyID(rec.ID); err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	return rec, nil
}

func (m *Manager) currentSignedPreKey() (domain.SignedPreKeyRecord, bool, error) {
	id, ok, err := m.spks.CurrentSignedPreKeyID()
	if err != nil || !ok {
		return domain.SignedPreKeyRecord{}, false, err
	}
	return m.spks.LoadSignedPreKey(id)
}

func (m *Manager) prune() error {
	cur, _, err := m.spks.CurrentSignedPreKeyID()
	if err != nil {
		return err
	}
	all, err := m.spks.ListSignedPreKeys()
	if err != nil {
		return err
	}
	cutoff := m.now().Add(-m.retention)
	for _, r := range all {
		if r.ID == cur || r.CreatedAt.After(cutoff) {
			continue
		}
		if err := m.spks.RemoveSignedPreKey(r.ID); err != nil {
			return err
		}
		m.metrics.Inc(metrics.SignedPreKeyPruned)
	}
	return nil
}

// CheckPreKeys tops up the one-time pre-key pool when it falls below the
// low-water mark. Keys saved by an earlier run whose upload failed are
// published first. remoteCount is the directory's count when known; the
// lower of it and the local published count decides. Concurrent calls
// share one run.
func (m *Manager) CheckPreKeys(ctx context.Context, remoteCount *int) error {
	_, err, _ := m.flight.Do("prekeys", func() (any, error) {
		return nil, m.checkPreKeys(ctx, remoteCount)
	})
	return err
}

func (m *Manager) checkPreKeys(ctx context.Context, remoteCount *int) error {
	pending, err := m.pks.UnpublishedPreKeys()
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		if err := m.publish(ctx, pending); err != nil {
			return err
		}
		m.log.Info("published pending pre-keys", zap.Int("count", len(pending)))
	}

	available, err := m.pks.CountPreKeys()
	if err != nil {
		return err
	}
	if remoteCount != nil {
		remote := *remoteCount + len(pending)
		if remote > available {
			m.metrics.Inc(metrics.KeyMismatch)
			m.log.Warn("directory advertises pre-keys this device no longer holds",
				zap.Int("remote", remote), zap.Int("local", available))
		}
		available = min(available, remote)
	}
	if available >= m.lowWater {
		return nil
	}

	last, hasLast, err := m.pks.LastPreKeyID()
	if err != nil {
		return err
	}
	batch := make([]domain.PreKeyRecord, 0, m.batchSize)
	next := domain.PreKeyID(1)
	if hasLast {
		next = nextPreKeyID(last)
	}
	for i := 0; i < m.batchSize; i++ {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return err
		}
		batch = append(batch, domain.PreKeyRecord{ID: next, Priv: priv, Pub: pub})
		next = nextPreKeyID(next)
	}
	// Saved before the upload so LastID never rewinds; a failed upload
	// leaves the batch unpublished for the next run.
	if err := m.pks.SavePreKeys(batch); err != nil {
		return err
	}
	m.metrics.Add(metrics.PreKeysGenerated, int64(len(batch)))
	m.metrics.Inc(metrics.PreKeyBatches)
	m.log.Info("generated pre-keys",
		zap.Int("count", len(batch)),
		zap.Uint32("first_id", uint32(batch[0].ID)),
		zap.Int("available_before", available))
	return m.publish(ctx, batch)
}

// publish uploads the public halves of recs and marks them published.
func (m *Manager) publish(ctx context.Context, recs []domain.PreKeyRecord) error {
	publics := make([]domain.PreKeyPublic, len(recs))
	ids := make([]domain.PreKeyID, len(recs))
	for i, r := range recs {
		publics[i], ids[i] = r.Public(), r.ID
	}
	if err := m.dir.UploadPreKeys(ctx, publics); err != nil {
		return fmt.Errorf("upload pre-keys: %w", err)
	}
	return m.pks.MarkPreKeysPublished(ids)
}

func nextPreKeyID(id domain.PreKeyID) domain.PreKeyID {
	if id >= MaxPreKeyID {
		return 0
	}
	return id + 1
}

// OnPreKeyConsumed is the session engine's consumption hook.
func (m *Manager) OnPreKeyConsumed(ctx context.Context) {
	if err := m.CheckPreKeys(ctx, nil); err != nil {
		m.log.Warn("pre-key replenishment failed", zap.Error(err))
	}
}

// Run probes every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Probe(ctx); err != nil {
				m.log.Warn("key probe failed", zap.Error(err))
			}
		}
	}
}
