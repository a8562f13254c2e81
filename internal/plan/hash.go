package plan

import (
	"crypto/sha256"
	"encoding/hex"
)

// contentHash digests each part separately so that moving bytes from one
// part to the next still changes the result.
func contentHash(parts ...string) string {
	hash := sha256.New()
	for _, p := range parts {
		sum := sha256.Sum256([]byte(p))
		hash.Write([]byte(hex.EncodeToString(sum[:])))
	}
	return hex.EncodeToString(hash.Sum(nil))
}
