package types

import (
	"fmt"
	"strconv"
	"strings"
)

// UserID identifies an account registered with the directory.
type UserID string

// String returns the string form of the user id.
func (u UserID) String() string { return string(u) }

// DeviceID identifies one device of a user. Valid ids start at 1.
type DeviceID uint32

// String returns the decimal form of the device id.
func (d DeviceID) String() string { return strconv.FormatUint(uint64(d), 10) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// PreKeyID identifies a one-time pre-key.
type PreKeyID uint32

// SignedPreKeyID identifies a signed pre-key.
type SignedPreKeyID uint32

// ItemID is the sender-generated idempotence key of a wire item.
type ItemID string

// String returns the string form of the item id.
func (id ItemID) String() string { return string(id) }

// DeviceAddress names one cryptographic endpoint. It is a lookup key only.
type DeviceAddress struct {
	UserID   UserID   `json:"user_id"`
	DeviceID DeviceID `json:"device_id"`
}

// String renders the address as "user.device".
func (a DeviceAddress) String() string {
	return a.UserID.String() + "." + a.DeviceID.String()
}

// Valid reports whether both halves of the address are set.
func (a DeviceAddress) Valid() bool { return a.UserID != "" && a.DeviceID > 0 }

// ParseDeviceAddress is the inverse of DeviceAddress.String.
func ParseDeviceAddress(s string) (DeviceAddress, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return DeviceAddress{}, fmt.Errorf("malformed device address %q", s)
	}
	n, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil || n == 0 {
		return DeviceAddress{}, fmt.Errorf("malformed device id in %q", s)
	}
	return DeviceAddress{UserID: UserID(s[:i]), DeviceID: DeviceID(n)}, nil
}
