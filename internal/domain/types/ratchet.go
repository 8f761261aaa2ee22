package types

// RatchetHeader is sent alongside every ciphertext.
type RatchetHeader struct {
	DiffieHellmanPublicKey []byte `json:"dh_pub" cbor:"1,keyasint"`
	PreviousChainLength    uint32 `json:"pn" cbor:"2,keyasint"`
	MessageIndex           uint32 `json:"n" cbor:"3,keyasint"`
}

// RatchetState contains all fields the Double Ratchet needs to track.
type RatchetState struct {
	RootKey                 []byte            `json:"root_key"`
	DiffieHellmanPrivate    X25519Private     `json:"dh_priv"`
	DiffieHellmanPublic     X25519Public      `json:"dh_pub"`
	PeerDiffieHellmanPublic X25519Public      `json:"peer_dh_pub"`
	SendChainKey            []byte            `json:"send_ck,omitempty"`
	ReceiveChainKey         []byte            `json:"recv_ck,omitempty"`
	SendMessageIndex        uint32            `json:"ns"`
	ReceiveMessageIndex     uint32            `json:"nr"`
	PreviousChainLength     uint32            `json:"pn"`
	SkippedKeys             map[string][]byte `json:"skipped_keys"`
}

// Clone returns a deep copy so a failed operation cannot leak partial
// mutation into the stored state.
func (s RatchetState) Clone() RatchetState {
	out := s
	out.RootKey = cloneBytes(s.RootKey)
	out.SendChainKey = cloneBytes(s.SendChainKey)
	out.ReceiveChainKey = cloneBytes(s.ReceiveChainKey)
	out.SkippedKeys = make(map[string][]byte, len(s.SkippedKeys))
	for k, v := range s.SkippedKeys {
		out.SkippedKeys[k] = cloneBytes(v)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
