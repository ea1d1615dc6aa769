package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/resourceburglar/localqa/internal/vector"
)

// HashEmbedder is a deterministic embedder for tests. Identical texts always
// embed to the same unit vector and distinct texts to different ones, so
// exact-match searches score 0 while unrelated texts land far apart. No model
// API is involved.
type HashEmbedder struct{}

// Embed derives a unit vector from the SHA-256 of the text.
func (HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))

	vec := make([]float32, vector.Dimension)
	var norm float64
	for i := range vec {
		// Stretch the digest across the dimension by re-hashing with the
		// component index.
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(i))
		h := sha256.Sum256(append(sum[:], buf[:]...))
		v := float64(int32(binary.BigEndian.Uint32(h[:4]))) / math.MaxInt32
		vec[i] = float32(v)
		norm += v * v
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
