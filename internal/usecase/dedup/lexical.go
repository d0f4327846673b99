package dedup

import (
	"context"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
)

// LexicalSignal scores pairs by normalised Levenshtein similarity over code points.
type LexicalSignal struct{}

// NewLexicalSignal creates the edit-distance signal.
func NewLexicalSignal() *LexicalSignal { return &LexicalSignal{} }

// Name implements Signal.
func (*LexicalSignal) Name() domdedup.SignalName { return domdedup.SignalEdit }

// Prepare implements Signal. It only measures rune lengths; distances are per pair.
func (*LexicalSignal) Prepare(_ context.Context, texts []string) (Scorer, error) {
	lens := make([]int, len(texts))
	for i, t := range texts {
		lens[i] = utf8.RuneCountInString(t)
	}
	return &lexicalScorer{texts: texts, lens: lens}, nil
}

type lexicalScorer struct {
	texts []string
	lens  []int
}

func (s *lexicalScorer) Score(i, j int) (float64, bool) {
	return editSimilarity(s.texts[i], s.texts[j], s.lens[i], s.lens[j])
}

// editSimilarity returns 1 - lev(a,b)/max(len(a),len(b)) with lengths in code points.
// Two empty strings are degenerate and score 0.
func editSimilarity(a, b string, la, lb int) (float64, bool) {
	longest := max(la, lb)
	if longest == 0 {
		return 0, true
	}
	if a == b {
		return 1, false
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest), false
}
