package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// HashParts hashes parts joined by a separator that cannot occur in text
// input, so ("ab", "c") and ("a", "bc") differ.
func HashParts(parts ...string) string {
	return HashString(strings.Join(parts, "\x1f"))
}
