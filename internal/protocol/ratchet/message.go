package ratchet

import (
	"fmt"

	"ciphermesh/internal/codec"
	"ciphermesh/internal/domain"
)

// Message is the serialized ciphertext carried in a wire item payload.
// PreKey is set only on pre-key-type messages.
type Message struct {
	Header domain.RatchetHeader  `cbor:"1,keyasint"`
	PreKey *domain.PreKeyMessage `cbor:"2,keyasint,omitempty"`
	Body   []byte                `cbor:"3,keyasint"`
}

// CipherType reports how the receiver must treat the message.
func (m Message) CipherType() domain.CipherType {
	if m.PreKey != nil {
		return domain.PreKeyInit
	}
	return domain.Established
}

// Encode serializes m.
func (m Message) Encode() ([]byte, error) {
	return codec.Marshal(m)
}

// DecodeMessage parses a payload produced by Message.Encode.
func DecodeMessage(b []byte) (Message, error) {
	var m Message
	if err := codec.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decode ratchet message: %w", err)
	}
	if len(m.Header.DiffieHellmanPublicKey) != 32 {
		return Message{}, fmt.Errorf("decode ratchet message: bad header key length %d", len(m.Header.DiffieHellmanPublicKey))
	}
	return m, nil
}
