package events

import (
	"encoding/json"

	"ciphermesh/internal/domain"
)

// Known application message kinds.
const (
	KindMessage = "message"
	KindReceipt = "receipt"
	KindTyping  = "typing"
)

// Event is one decoded application message. The concrete type is one of
// Message, Receipt, Typing or Raw.
type Event interface {
	Kind() string
	isEvent()
}

// Message is a chat text.
type Message struct {
	Text string
}

// Receipt acknowledges earlier items.
type Receipt struct {
	ItemIDs []domain.ItemID `json:"item_ids"`
}

// Typing signals composing state.
type Typing struct {
	Active bool `json:"active"`
}

// Raw carries any type this build does not know, or a known type whose
// body failed to parse.
type Raw struct {
	Type string
	Body []byte
}

func (Message) Kind() string { return KindMessage }
func (Receipt) Kind() string { return KindReceipt }
func (Typing) Kind() string  { return KindTyping }
func (r Raw) Kind() string   { return r.Type }

func (Message) isEvent() {}
func (Receipt) isEvent() {}
func (Typing) isEvent()  {}
func (Raw) isEvent()     {}

// Decode maps a type tag and plaintext to an Event.
func Decode(typ string, plaintext []byte) Event {
	switch typ {
	case KindMessage:
		return Message{Text: string(plaintext)}
	case KindReceipt:
		var r Receipt
		if err := json.Unmarshal(plaintext, &r); err == nil {
			return r
		}
	case KindTyping:
		var ty Typing
		if err := json.Unmarshal(plaintext, &ty); err == nil {
			return ty
		}
	}
	return Raw{Type: typ, Body: append([]byte(nil), plaintext...)}
}

// Meta describes where an event came from.
type Meta struct {
	ItemID     domain.ItemID
	From       domain.DeviceAddress
	CipherType domain.CipherType
	// Local marks the sender's own echo of an outbound message.
	Local bool
}
