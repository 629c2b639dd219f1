package memory

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf16"
)

// VocabularySize is the dimension of local term-frequency vectors.
func VocabularySize() int { return len(domainKeywords) }

// vectorize builds an L2-normalized term-frequency vector over the keyword
// vocabulary. Text with no keywords yields the zero vector.
func vectorize(text string) []float32 {
	vec := make([]float32, len(domainKeywords))
	for idx, n := range keywordCounts(text) {
		vec[idx] = float32(n)
	}
	normalizeVector(vec)
	return vec
}

func normalizeVector(vec []float32) {
	norm := vectorNorm(vec)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// NormalizeVector returns a unit-length copy of vec.
func NormalizeVector(vec []float32) []float32 {
	out := append([]float32(nil), vec...)
	normalizeVector(out)
	return out
}

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// dot is cosine similarity for unit vectors. Mismatched lengths score 0.
func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// StableID derives the entry id from whitespace-normalized content, so
// re-adding the same memory overwrites it. The hash runs over UTF-16 code
// units to keep ids stable for indexes written by earlier clients.
func StableID(content string) string {
	normalized := strings.Join(strings.Fields(content), " ")
	hash := uint32(0x811c9dc5)
	for _, unit := range utf16.Encode([]rune(normalized)) {
		hash ^= uint32(unit)
		hash *= 0x01000193
	}
	return fmt.Sprintf("mem_%08x", hash)
}
