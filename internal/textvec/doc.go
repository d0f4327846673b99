// Package textvec builds and compares the vectors behind the statistical and
// semantic similarity signals: corpus-fitted TF-IDF sparse vectors and dense
// embedding vectors.
//
// TF-IDF follows the common scikit-learn defaults so that scores match the
// reference tooling: lowercase input, tokens are runs of two or more
// letter/digit/underscore code points, smoothed idf ln((1+n)/(1+df))+1, raw
// term counts and L2-normalised rows.
package textvec
