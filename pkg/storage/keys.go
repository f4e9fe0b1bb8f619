package storage

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HashSessionKey derives the value persisted for a visitor session key so raw
// cookie material never reaches a store.
func HashSessionKey(sessionKey string) string {
	sum := blake2b.Sum256([]byte(sessionKey))
	return hex.EncodeToString(sum[:16])
}
