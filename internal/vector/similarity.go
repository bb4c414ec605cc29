package vector

import "math"

// Cosine returns the cosine similarity of two vectors in [-1, 1]. Length
// mismatches and zero-norm inputs yield NaN so callers can discard the
// pair the same way they discard any other non-finite score.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return math.NaN()
	}
	return dot / denom
}
