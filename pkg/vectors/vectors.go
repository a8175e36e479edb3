// Package vectors provides similarity math over embedding vectors.
package vectors

import "math"

// Cosine computes the cosine similarity between two vectors.
// It returns 0 when the vectors differ in length, are empty, or when
// either has zero magnitude, so callers never divide by zero.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
