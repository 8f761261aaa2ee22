package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// CipherType tells the receiver how to treat a ciphertext.
type CipherType int

const (
	// CipherUnknown is the zero value and is never sent.
	CipherUnknown CipherType = iota
	// PreKeyInit carries the handshake needed to create the receiver's session.
	PreKeyInit
	// Established is an ordinary message on an existing session.
	Established
)

// String returns the wire name of the cipher type.
func (c CipherType) String() string {
	switch c {
	case PreKeyInit:
		return "prekey"
	case Established:
		return "whisper"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the cipher type by name.
func (c CipherType) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

// UnmarshalJSON decodes a cipher type name. Unknown names decode to
// CipherUnknown so the pipeline can reject them per item.
func (c *CipherType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("cipher type: %w", err)
	}
	switch s {
	case "prekey":
		*c = PreKeyInit
	case "whisper":
		*c = Established
	default:
		*c = CipherUnknown
	}
	return nil
}

// WireItem is the unit handed to the transport: one ciphertext for one
// recipient device.
type WireItem struct {
	ItemID            ItemID     `json:"item_id"`
	Sender            UserID     `json:"sender"`
	SenderDeviceID    DeviceID   `json:"sender_device_id"`
	Recipient         UserID     `json:"recipient"`
	RecipientDeviceID DeviceID   `json:"recipient_device_id"`
	Type              string     `json:"type"`
	Payload           []byte     `json:"payload"`
	CipherType        CipherType `json:"cipher_type"`
}

// SenderAddress returns the address the item was encrypted from.
func (w WireItem) SenderAddress() DeviceAddress {
	return DeviceAddress{UserID: w.Sender, DeviceID: w.SenderDeviceID}
}

// RecipientAddress returns the address the item is destined for.
func (w WireItem) RecipientAddress() DeviceAddress {
	return DeviceAddress{UserID: w.Recipient, DeviceID: w.RecipientDeviceID}
}

// SentRecord is persisted before any network activity of a send.
type SentRecord struct {
	ItemID    ItemID    `json:"item_id" bson:"_id"`
	Recipient UserID    `json:"recipient" bson:"recipient"`
	Type      string    `json:"type" bson:"type"`
	Payload   string    `json:"payload" bson:"payload"`
	SentAt    time.Time `json:"sent_at" bson:"sent_at"`
}
