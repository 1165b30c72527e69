package util

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// RandomFrom returns an n-character string drawn uniformly from alphabet.
func RandomFrom(alphabet string, n int) string {
	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand only errors when the platform source is unusable
			idx = big.NewInt(0)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out)
}
