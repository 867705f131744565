// Package geneset translates external gene-identifier lists into row indices
// of a filtered count matrix.
package geneset

import (
	"sort"

	"godex/domain/core"
	"godex/domain/expr"
)

// Index maps one gene set onto the feature order of m. Identifiers missing
// from the matrix are silently dropped and duplicates collapse to one row, so
// the result is order-independent in its input: shuffling the member list
// yields the same index set. An entirely unmatched set is not an error; it
// produces an empty index that downstream tests report as NA.
func Index(set expr.GeneSet, m *expr.CountMatrix) expr.SetIndex {
	lookup := m.FeatureIndex()
	seen := make(map[int]bool)
	var rows []int
	for _, member := range set.Members {
		if r, ok := lookup[member]; ok && !seen[r] {
			seen[r] = true
			rows = append(rows, r)
		}
	}
	sort.Ints(rows)
	return expr.SetIndex{
		Name:      set.Name,
		Rows:      rows,
		NInput:    len(set.Members),
		NFeatures: m.NFeatures(),
	}
}

// IndexAll translates every set against the same matrix, preserving the
// given set order.
func IndexAll(sets []expr.GeneSet, m *expr.CountMatrix) []expr.SetIndex {
	out := make([]expr.SetIndex, len(sets))
	for i, s := range sets {
		out[i] = Index(s, m)
	}
	return out
}

// Validate checks that an index was built against a matrix of the same
// feature count; a refiltered matrix invalidates previously built indices.
func Validate(idx expr.SetIndex, m *expr.CountMatrix) error {
	if idx.NFeatures != m.NFeatures() {
		return core.InvalidInput("gene-set index was built against a different matrix; re-index after filtering")
	}
	for _, r := range idx.Rows {
		if r < 0 || r >= m.NFeatures() {
			return core.InvalidInput("gene-set index row out of range")
		}
	}
	return nil
}
