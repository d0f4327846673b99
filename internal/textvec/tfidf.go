package textvec

import (
	"math"
	"sort"
)

// Vectorizer holds a vocabulary and idf weights fitted on a corpus.
type Vectorizer struct {
	vocab map[string]int
	idf   []float64
}

// Fit learns the vocabulary and smoothed idf weights from docs.
// An empty vocabulary is allowed; every document then maps to the zero vector.
func Fit(docs []string) *Vectorizer {
	df := make(map[string]int)
	for _, d := range docs {
		seen := make(map[string]struct{})
		for _, tok := range Tokenize(d) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for t := range df {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v := &Vectorizer{
		vocab: make(map[string]int, len(terms)),
		idf:   make([]float64, len(terms)),
	}
	for i, t := range terms {
		v.vocab[t] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}
	return v
}

// Transform maps a document to its L2-normalised TF-IDF vector.
// Out-of-vocabulary tokens are ignored.
func (v *Vectorizer) Transform(doc string) SparseVector {
	counts := make(map[int]int)
	for _, tok := range Tokenize(doc) {
		if idx, ok := v.vocab[tok]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return SparseVector{}
	}

	indices := make([]int, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	values := make([]float64, len(indices))
	var norm float64
	for k, idx := range indices {
		w := float64(counts[idx]) * v.idf[idx]
		values[k] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for k := range values {
		values[k] /= norm
	}
	return SparseVector{Indices: indices, Values: values}
}

// FitTransform fits on docs and returns one vector per document, in order.
func FitTransform(docs []string) (*Vectorizer, []SparseVector) {
	v := Fit(docs)
	out := make([]SparseVector, len(docs))
	for i, d := range docs {
		out[i] = v.Transform(d)
	}
	return v, out
}
