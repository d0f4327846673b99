package textvec

// SparseVector is a vector stored as ascending term indices and their weights.
type SparseVector struct {
	Indices []int
	Values  []float64
}

// Dot returns the dot product and the number of shared terms.
func Dot(a, b SparseVector) (dot float64, shared int) {
	i, j := 0, 0
	for i < len(a.Indices) && j < len(b.Indices) {
		switch {
		case a.Indices[i] == b.Indices[j]:
			dot += a.Values[i] * b.Values[j]
			shared++
			i++
			j++
		case a.Indices[i] < b.Indices[j]:
			i++
		default:
			j++
		}
	}
	return dot, shared
}

func clamp(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
