// Package similarity compares fingerprint vectors by cosine similarity.
//
// A pair involving an all-zero vector scores 0, including a zero vector
// compared with itself. The self-similarity of any other vector is exactly 1.
// Rankings are ordered by score descending with ties broken by ascending
// index, so identical input always yields identical output.
package similarity

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrInvalidInput is wrapped by every error this package returns.
var ErrInvalidInput = errors.New("similarity: invalid input")

// DimensionMismatchError reports a vector whose length differs from the first one.
type DimensionMismatchError struct {
	Index    int
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch at vector %d: expected %d, got %d", e.Index, e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrInvalidInput }

// Neighbor is one ranked candidate for a query period.
type Neighbor struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Cosine returns the cosine similarity of a and b, or 0 if either has zero
// norm or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	return cosine(a, b, norm(a), norm(b))
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func cosine(a, b []float64, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}

	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}

	s := dot / (na * nb)
	// Rounding can push parallel vectors slightly past 1.
	return max(-1, min(1, s))
}

// Validate checks that vectors is non-empty, rectangular, of non-zero
// dimension and free of NaN or infinite entries.
func Validate(vectors [][]float64) error {
	if len(vectors) == 0 {
		return fmt.Errorf("%w: no vectors", ErrInvalidInput)
	}

	dim := len(vectors[0])
	if dim == 0 {
		return fmt.Errorf("%w: zero-dimensional vectors", ErrInvalidInput)
	}

	for i, v := range vectors {
		if len(v) != dim {
			return &DimensionMismatchError{Index: i, Expected: dim, Actual: len(v)}
		}
		for j, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("%w: non-finite value at vector %d entry %d", ErrInvalidInput, i, j)
			}
		}
	}
	return nil
}

func checkQuery(n, query int) error {
	if query < 0 || query >= n {
		return fmt.Errorf("%w: query index %d out of range [0, %d)", ErrInvalidInput, query, n)
	}
	return nil
}

// Matrix is a square, symmetric table of pairwise similarities.
type Matrix [][]float64

// ComputeMatrix builds the full N×N similarity matrix in O(N²·D).
func ComputeMatrix(vectors [][]float64) (Matrix, error) {
	if err := Validate(vectors); err != nil {
		return nil, err
	}

	n := len(vectors)
	norms := make([]float64, n)
	for i, v := range vectors {
		norms[i] = norm(v)
	}

	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		if norms[i] != 0 {
			m[i][i] = 1
		}
		for j := i + 1; j < n; j++ {
			s := cosine(vectors[i], vectors[j], norms[i], norms[j])
			m[i][j] = s
			m[j][i] = s
		}
	}
	return m, nil
}

func (m Matrix) Len() int { return len(m) }

func (m Matrix) At(i, j int) float64 { return m[i][j] }

// Rank orders every index except query by its similarity to query.
func (m Matrix) Rank(query int) ([]Neighbor, error) {
	if err := checkQuery(len(m), query); err != nil {
		return nil, err
	}

	out := make([]Neighbor, 0, len(m)-1)
	for j, s := range m[query] {
		if j == query {
			continue
		}
		out = append(out, Neighbor{Index: j, Score: s})
	}
	sortNeighbors(out)
	return out, nil
}

// Rank computes the similarity of vectors[query] to every other vector on
// demand, in O(N·D), and returns them best first.
func Rank(vectors [][]float64, query int) ([]Neighbor, error) {
	if err := Validate(vectors); err != nil {
		return nil, err
	}
	if err := checkQuery(len(vectors), query); err != nil {
		return nil, err
	}

	q := vectors[query]
	nq := norm(q)

	out := make([]Neighbor, 0, len(vectors)-1)
	for j, v := range vectors {
		if j == query {
			continue
		}
		out = append(out, Neighbor{Index: j, Score: cosine(q, v, nq, norm(v))})
	}
	sortNeighbors(out)
	return out, nil
}

// TopK returns at most k neighbors of query.
func TopK(vectors [][]float64, query, k int) ([]Neighbor, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidInput, k)
	}

	ranked, err := Rank(vectors, query)
	if err != nil {
		return nil, err
	}
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

func sortNeighbors(ns []Neighbor) {
	slices.SortFunc(ns, func(a, b Neighbor) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
}
