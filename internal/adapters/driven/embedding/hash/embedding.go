// Package hash provides an offline embedding service based on signed
// feature hashing. It needs no model and no network, and identical text
// always yields the identical vector.
package hash

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"

	"github.com/custodia-labs/bastion/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultDimensions matches the all-minilm model so the two providers can
// share an index configuration.
const DefaultDimensions = 384

// ModelName identifies vectors produced by this embedder.
const ModelName = "blake3-feature-hash"

// Word tokens weigh more than character trigrams.
const (
	wordWeight    = 1.0
	trigramWeight = 0.5
)

// EmbeddingService hashes word tokens and character trigrams into a fixed
// number of buckets with a sign bit, then L2-normalises the result.
type EmbeddingService struct {
	dimensions int
}

// NewEmbeddingService creates a hashing embedder of the given dimension.
func NewEmbeddingService(dimensions int) *EmbeddingService {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &EmbeddingService{dimensions: dimensions}
}

// Embed returns the hashed feature vector for text. Text without any
// letters or digits yields the zero vector.
func (s *EmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	acc := make([]float64, s.dimensions)

	for _, word := range Tokenize(text) {
		s.add(acc, "w:"+word, wordWeight)
		padded := []rune(" " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			s.add(acc, "t:"+string(padded[i:i+3]), trigramWeight)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	out := make([]float32, s.dimensions)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// add hashes one feature. The first four bytes of the digest pick the
// bucket and the fifth byte's low bit picks the sign.
func (s *EmbeddingService) add(acc []float64, feature string, weight float64) {
	sum := blake3.Sum256([]byte(feature))
	bucket := binary.LittleEndian.Uint32(sum[:4]) % uint32(len(acc))
	if sum[4]&1 == 1 {
		weight = -weight
	}
	acc[bucket] += weight
}

// EmbedBatch embeds each text in order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding scheme.
func (s *EmbeddingService) ModelName() string {
	return ModelName
}

// Ping always succeeds.
func (s *EmbeddingService) Ping(_ context.Context) error {
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}

// Tokenize lower-cases text and splits it into runs of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
