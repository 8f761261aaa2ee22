package directory

import (
	"sort"
	"sync"

	"ciphermesh/internal/domain"
)

type deviceKeys struct {
	registrationID uint32
	identityKey    domain.X25519Public
	signingKey     domain.Ed25519Public
	hasIdentity    bool
	preKeys        []domain.PreKeyPublic
	signed         *domain.SignedPreKeyPublic
}

// MemoryStore keeps public key material and undelivered items in memory.
// All state is lost on exit.
type MemoryStore struct {
	mu      sync.Mutex
	devices map[domain.DeviceAddress]*deviceKeys
	queues  map[domain.DeviceAddress][][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[domain.DeviceAddress]*deviceKeys),
		queues:  make(map[domain.DeviceAddress][][]byte),
	}
}

func (s *MemoryStore) device(addr domain.DeviceAddress) *deviceKeys {
	d, ok := s.devices[addr]
	if !ok {
		d = &deviceKeys{}
		s.devices[addr] = d
	}
	return d
}

// PutIdentity registers or replaces the identity of addr. A changed
// identity invalidates every pre-key uploaded under the old one.
func (s *MemoryStore) PutIdentity(addr domain.DeviceAddress, ik domain.X25519Public, sk domain.Ed25519Public, regID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.device(addr)
	if d.hasIdentity && (d.identityKey != ik || d.signingKey != sk) {
		d.preKeys = nil
		d.signed = nil
	}
	d.identityKey, d.signingKey, d.registrationID, d.hasIdentity = ik, sk, regID, true
}

// AddPreKeys appends keys, replacing any stored key with the same id.
func (s *MemoryStore) AddPreKeys(addr domain.DeviceAddress, keys []domain.PreKeyPublic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.device(addr)
	byID := make(map[domain.PreKeyID]int, len(d.preKeys))
	for i, k := range d.preKeys {
		byID[k.ID] = i
	}
	for _, k := range keys {
		if i, ok := byID[k.ID]; ok {
			d.preKeys[i] = k
			continue
		}
		byID[k.ID] = len(d.preKeys)
		d.preKeys = append(d.preKeys, k)
	}
}

func (s *MemoryStore) PutSignedPreKey(addr domain.DeviceAddress, k domain.SignedPreKeyPublic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device(addr).signed = &k
}

// RemoveSignedPreKey clears the signed pre-key of addr when its id matches.
func (s *MemoryStore) RemoveSignedPreKey(addr domain.DeviceAddress, id domain.SignedPreKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[addr]
	if !ok || d.signed == nil || d.signed.ID != id {
		return domain.ErrNotFound
	}
	d.signed = nil
	return nil
}

func (s *MemoryStore) Status(addr domain.DeviceAddress) domain.DirectoryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[addr]
	if !ok {
		return domain.DirectoryStatus{}
	}
	st := domain.DirectoryStatus{HasIdentity: d.hasIdentity, PreKeyCount: len(d.preKeys)}
	if d.signed != nil {
		st.HasSignedPreKey = true
		st.SignedPreKeyID = d.signed.ID
	}
	return st
}

// Bundles returns a bundle for every registered device of user and of the
// caller's own user, except the caller itself. One one-time pre-key is
// handed out and removed per bundle, unless the caller lists the device as
// known: those bundles carry the oldest pre-key without claiming it.
// Devices that have run out get a bundle without one.
func (s *MemoryStore) Bundles(user domain.UserID, caller domain.DeviceAddress, known map[domain.DeviceAddress]bool) []domain.PreKeyBundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var addrs []domain.DeviceAddress
	for addr, d := range s.devices {
		if !d.hasIdentity || d.signed == nil || addr == caller {
			continue
		}
		if addr.UserID == user || addr.UserID == caller.UserID {
			addrs = append(addrs, addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool {
		if addrs[i].UserID != addrs[j].UserID {
			return addrs[i].UserID < addrs[j].UserID
		}
		return addrs[i].DeviceID < addrs[j].DeviceID
	})
	out := make([]domain.PreKeyBundle, 0, len(addrs))
	for _, addr := range addrs {
		d := s.devices[addr]
		b := domain.PreKeyBundle{
			UserID:                addr.UserID,
			DeviceID:              addr.DeviceID,
			RegistrationID:        d.registrationID,
			IdentityKey:           d.identityKey,
			SigningKey:            d.signingKey,
			SignedPreKeyID:        d.signed.ID,
			SignedPreKey:          d.signed.Pub,
			SignedPreKeySignature: d.signed.Signature,
		}
		if len(d.preKeys) > 0 {
			pk := d.preKeys[0]
			if !known[addr] {
				d.preKeys = d.preKeys[1:]
			}
			b.PreKey = &pk
		}
		out = append(out, b)
	}
	return out
}

// Enqueue holds an item for an offline device.
func (s *MemoryStore) Enqueue(addr domain.DeviceAddress, msg []byte) {
	s.mu.Lock()
	s.queues[addr] = append(s.queues[addr], msg)
	s.mu.Unlock()
}

// Drain removes and returns everything queued for addr.
func (s *MemoryStore) Drain(addr domain.DeviceAddress) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[addr]
	delete(s.queues, addr)
	return q
}
