package embedding

import (
	"encoding/binary"
	"math"
	"regexp"

	"golang.org/x/crypto/blake2b"
)

// localDim is the dimensionality of the fallback embedding. Vectors from
// the remote model are longer; Cosine compares over the shared prefix.
const localDim = 256

var tokenSplit = regexp.MustCompile(`\W+`)

// localEmbed computes a deterministic hashed bag-of-tokens embedding.
// Same text always yields the same vector, so fallback vectors stored on
// old tickets remain comparable across calls and restarts.
func localEmbed(text string) []float64 {
	vec := make([]float64, localDim)
	for _, token := range tokenSplit.Split(text, -1) {
		if token == "" {
			continue
		}
		sum := blake2b.Sum256([]byte(token))
		idx := binary.BigEndian.Uint32(sum[:4]) % localDim
		sign := 1.0
		if sum[4]&1 == 1 {
			sign = -1.0
		}
		vec[idx] += sign
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
