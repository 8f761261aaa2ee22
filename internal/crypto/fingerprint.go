package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	fingerprintLabel = "ciphermesh-fingerprint-v1"
	fingerprintBytes = 15
	fingerprintGroup = 5
)

// Fingerprint returns a display fingerprint over one or more public keys.
//
// Keys are length-prefixed and hashed with SHA-256 in the order given. The
// first 15 bytes are rendered as six space-separated groups of five hex
// digits.
func Fingerprint(keys ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(fingerprintLabel))
	for _, k := range keys {
		h.Write([]byte{byte(len(k))})
		h.Write(k)
	}
	digits := hex.EncodeToString(h.Sum(nil)[:fingerprintBytes])

	var b strings.Builder
	for i := 0; i < len(digits); i += fingerprintGroup {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(digits[i : i+fingerprintGroup])
	}
	return b.String()
}
