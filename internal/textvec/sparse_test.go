package textvec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDot_SharedTerms(t *testing.T) {
	a := SparseVector{Indices: []int{0, 2, 5}, Values: []float64{1, 2, 3}}
	b := SparseVector{Indices: []int{2, 3, 5}, Values: []float64{4, 1, 1}}

	dot, shared := Dot(a, b)
	assert.Equal(t, 11.0, dot)
	assert.Equal(t, 2, shared)
}

func TestDot_NoSharedTerms(t *testing.T) {
	a := SparseVector{Indices: []int{0}, Values: []float64{1}}
	b := SparseVector{Indices: []int{1}, Values: []float64{1}}

	dot, shared := Dot(a, b)
	assert.Equal(t, 0.0, dot)
	assert.Equal(t, 0, shared)

	_, shared = Dot(a, SparseVector{})
	assert.Equal(t, 0, shared)
}
