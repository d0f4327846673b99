package textvec

import (
	"errors"
	"fmt"
	"math"
)

// ErrZeroVector is returned when a vector has no magnitude.
var ErrZeroVector = errors.New("textvec: zero-magnitude vector")

// Normalize returns v scaled to unit length in float64.
func Normalize(v []float32) ([]float64, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("textvec: empty vector: %w", ErrZeroVector)
	}
	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("textvec: non-finite component %v", x)
		}
		sum += f * f
	}
	if sum == 0 {
		return nil, ErrZeroVector
	}
	norm := math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x) / norm
	}
	return out, nil
}

// UnitDot returns the cosine similarity of two unit vectors of equal length.
func UnitDot(a, b []float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return clamp(dot)
}
