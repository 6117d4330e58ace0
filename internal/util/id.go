package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random 32-hex-character identifier, optionally prefixed
// ("usr_..."), used for user ids and token JTIs.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
