package crypto

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// fingerprintLen is the number of hex characters kept from the digest
const fingerprintLen = 12

// HashBytes returns the hex encoded BLAKE2b-256 digest of data
func HashBytes(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short, stable, non-reversible identifier for a bearer token
// so requests from the same caller can be correlated in logs without logging the token.
func Fingerprint(token string) string {
	if token == "" {
		return "anonymous"
	}
	return HashBytes([]byte(token))[:fingerprintLen]
}
