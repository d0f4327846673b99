package domain

// DefaultVectorDimensions is the embedding length expected when a vectorizer
// leaves it unset; it matches paraphrase-MiniLM-L6-v2.
const DefaultVectorDimensions = 384
