package dedup

// Duplicate is one removed record together with the surviving record that justified it.
type Duplicate struct {
	Index       int     `json:"index"`
	DuplicateOf int     `json:"duplicate_of"`
	Score       float64 `json:"score"`
}

// Result is the outcome of a deduplication run.
type Result struct {
	RunID      string
	Records    int
	Kept       []int       // ascending, original order
	Duplicates []Duplicate // ascending by Index
	Signals    []SignalName
	Weights    Weights // weights actually applied, after any renormalisation
	Dropped    []SignalName
	Pairs      int64 // pairwise scores evaluated
	Degenerate map[SignalName]int
}

// DuplicateIndices returns the removed indices in ascending order.
func (r *Result) DuplicateIndices() []int {
	out := make([]int, len(r.Duplicates))
	for i, d := range r.Duplicates {
		out[i] = d.Index
	}
	return out
}

// Removed returns the number of removed records.
func (r *Result) Removed() int { return len(r.Duplicates) }
