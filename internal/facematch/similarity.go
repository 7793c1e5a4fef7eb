package facematch

import "math"

// Normalize returns v scaled to unit length. Zero vectors are rejected.
func Normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, false
	}
	n := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out, true
}

// Centroid returns the normalized mean of the given vectors, which must share one length.
func Centroid(vectors [][]float32) ([]float32, bool) {
	if len(vectors) == 0 {
		return nil, false
	}
	if len(vectors) == 1 {
		return Normalize(vectors[0])
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, false
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	mean := make([]float32, dim)
	for i := range sum {
		mean[i] = float32(sum[i] / float64(len(vectors)))
	}
	return Normalize(mean)
}

// dot assumes both vectors are unit length, which makes it the cosine similarity.
func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
