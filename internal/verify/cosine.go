package verify

import "math"

// normEpsilon guards the cosine similarity against division by zero on
// degenerate (near-silent) embeddings.
const normEpsilon = 1e-9

// Cosine returns the cosine similarity between a and b in [-1, 1]. If either
// vector's norm is below [normEpsilon], it returns exactly 0 rather than
// producing NaN or Inf. Vectors of different lengths score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	na = math.Sqrt(na)
	nb = math.Sqrt(nb)
	if na < normEpsilon || nb < normEpsilon {
		return 0
	}
	return dot / (na * nb)
}
