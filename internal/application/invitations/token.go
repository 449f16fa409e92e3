package invitations

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HashToken returns the keyed BLAKE2b-256 digest stored in token_hash. Keys
// longer than 64 bytes are folded to 32 first.
func HashToken(key []byte, token string) string {
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		// only reachable with an oversized key, handled above
		panic(err)
	}
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
