package similarity

import "math"

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector,
// so its similarity to anything is 0 rather than NaN.
func NormalizeVector(v []float32) []float32 {
	result := make([]float32, len(v))
	if len(v) == 0 {
		return result
	}

	// Accumulate in float64 so large dimensions don't lose precision
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	if sumSquares == 0 {
		return result
	}

	magnitude := math.Sqrt(sumSquares)
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}

// NormalizeAll normalizes every vector, preserving order and indices.
func NormalizeAll(vectors [][]float32) [][]float32 {
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		normalized[i] = NormalizeVector(v)
	}
	return normalized
}
