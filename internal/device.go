package internal

import "crypto/sha256"

// HashClientValue hashes one fingerprint component. An empty value hashes
// to the zero array so "unknown" never matches a real value.
func HashClientValue(v string) [32]byte {
	if v == "" {
		return [32]byte{}
	}
	return sha256.Sum256([]byte(v))
}
