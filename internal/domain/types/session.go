package types

import "time"

// SessionRecord is the per-address ratchet session.
type SessionRecord struct {
	Address        DeviceAddress  `json:"address"`
	PeerIdentity   X25519Public   `json:"peer_identity"`
	PeerSigningKey Ed25519Public  `json:"peer_signing_key"`
	LocalIdentity  X25519Public   `json:"local_identity"`
	State          RatchetState   `json:"state"`
	PendingPreKey  *PreKeyMessage `json:"pending_pre_key,omitempty"`
	Initiator      bool           `json:"initiator"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r SessionRecord) Clone() SessionRecord {
	out := r
	out.State = r.State.Clone()
	if r.PendingPreKey != nil {
		pk := *r.PendingPreKey
		out.PendingPreKey = &pk
	}
	return out
}
