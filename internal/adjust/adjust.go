// Package adjust implements multiple-testing corrections shared by the
// per-feature and per-set result tables.
package adjust

import (
	"math"
	"sort"

	"godex/domain/expr"
)

// PValues applies the given correction to a vector of raw p-values and
// returns the adjusted values in the original order. NaN entries (untested
// hypotheses, e.g. empty gene sets) are passed through unchanged and do not
// count toward the number of tests.
func PValues(p []float64, method expr.AdjustMethod) []float64 {
	switch method {
	case expr.AdjustHolm:
		return holm(p)
	case expr.AdjustNone:
		return append([]float64(nil), p...)
	default:
		return benjaminiHochberg(p)
	}
}

// benjaminiHochberg computes FDR q-values: step-up with cumulative minima.
func benjaminiHochberg(p []float64) []float64 {
	idx := testedIndices(p)
	n := float64(len(idx))
	out := passthrough(p)
	if len(idx) == 0 {
		return out
	}

	// Sort tested indices by descending p-value.
	sort.Slice(idx, func(i, j int) bool { return p[idx[i]] > p[idx[j]] })

	cumMin := math.Inf(1)
	for rank, i := range idx {
		// rank 0 holds the largest p-value, at position len(idx) in BH order.
		q := p[i] * n / float64(len(idx)-rank)
		if q < cumMin {
			cumMin = q
		}
		if cumMin > 1 {
			out[i] = 1
		} else {
			out[i] = cumMin
		}
	}
	return out
}

// holm computes step-down Holm-adjusted p-values.
func holm(p []float64) []float64 {
	idx := testedIndices(p)
	n := len(idx)
	out := passthrough(p)
	if n == 0 {
		return out
	}

	sort.Slice(idx, func(i, j int) bool { return p[idx[i]] < p[idx[j]] })

	cumMax := 0.0
	for rank, i := range idx {
		adj := p[i] * float64(n-rank)
		if adj > cumMax {
			cumMax = adj
		}
		if cumMax > 1 {
			out[i] = 1
		} else {
			out[i] = cumMax
		}
	}
	return out
}

func testedIndices(p []float64) []int {
	idx := make([]int, 0, len(p))
	for i, v := range p {
		if !math.IsNaN(v) {
			idx = append(idx, i)
		}
	}
	return idx
}

func passthrough(p []float64) []float64 {
	out := make([]float64, len(p))
	for i, v := range p {
		out[i] = v // NaN stays NaN
	}
	return out
}
