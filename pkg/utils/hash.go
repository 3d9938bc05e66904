package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// ShortHash is the first n hex characters of HashString.
func ShortHash(input string, n int) string {
	h := HashString(input)
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}
