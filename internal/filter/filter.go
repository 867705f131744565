// Package filter removes features with insufficient expression before
// normalization and model fitting.
package filter

import (
	"godex/domain/core"
	"godex/domain/expr"
)

// Options configures the expression filter
type Options struct {
	MinCPM     float64 // per-sample counts-per-million threshold
	MinSamples int     // number of samples that must reach MinCPM
}

// KeepRows returns the row indices, in matrix order, of features expressed
// at or above MinCPM in at least MinSamples samples. Library sizes are taken
// from the matrix as given.
func KeepRows(m *expr.CountMatrix, opts Options) ([]int, error) {
	if opts.MinSamples < 1 {
		return nil, core.InvalidInput("filter requires at least one qualifying sample")
	}
	if opts.MinSamples > m.NSamples() {
		return nil, core.InvalidInput("filter requires more qualifying samples than the matrix has")
	}

	libSizes := m.LibSizes()
	var keep []int
	for i, row := range m.Counts {
		qualifying := 0
		for j, v := range row {
			if expr.CPM(v, libSizes[j]) >= opts.MinCPM {
				qualifying++
			}
		}
		if qualifying >= opts.MinSamples {
			keep = append(keep, i)
		}
	}
	return keep, nil
}

// Apply returns a new matrix holding only sufficiently expressed features,
// with row order preserved. The filter is idempotent: removing rows can only
// shrink library sizes, which can only raise the CPM of every retained
// feature, so a second application keeps every row the first one kept.
func Apply(m *expr.CountMatrix, opts Options) (*expr.CountMatrix, error) {
	keep, err := KeepRows(m, opts)
	if err != nil {
		return nil, err
	}
	if len(keep) == 0 {
		return nil, core.DegenerateInput("no features pass the expression filter")
	}
	return m.SubsetRows(keep)
}
