// Package norm computes per-sample scale factors that correct for library
// size and composition differences between samples.
//
// Factors returned by every method are strictly positive and renormalized so
// their geometric mean is 1; effective library sizes are raw totals times the
// factors. A sample with zero total counts has no defined factor and fails
// the run.
package norm

import (
	"math"
	"sort"

	mstats "github.com/montanaflynn/stats"

	"godex/domain/core"
	"godex/domain/expr"
)

// Options configures scale-factor computation
type Options struct {
	Method expr.NormMethod
	// LogRatioTrim and AbsIntensityTrim are the two-sided trim fractions of
	// the TMM method; MinAveLog is the minimum average log2 intensity a
	// feature needs to enter the trimmed mean.
	LogRatioTrim     float64
	AbsIntensityTrim float64
	MinAveLog        float64
}

// DefaultOptions returns TMM with the standard trim fractions
func DefaultOptions() Options {
	return Options{
		Method:           expr.NormTMM,
		LogRatioTrim:     0.3,
		AbsIntensityTrim: 0.05,
		MinAveLog:        -1e10,
	}
}

// Factors computes one scale factor per sample of m and returns them without
// attaching them to the matrix.
func Factors(m *expr.CountMatrix, opts Options) ([]float64, error) {
	libSizes := m.LibSizes()
	for j, size := range libSizes {
		if size <= 0 {
			return nil, core.DegenerateInputf("sample %q has zero total counts; normalization factor undefined", m.Samples[j])
		}
	}

	var f []float64
	var err error
	switch opts.Method {
	case expr.NormNone:
		f = ones(m.NSamples())
	case expr.NormUpperQuartile:
		f, err = upperQuartileFactors(m, libSizes)
	case expr.NormRelativeLog:
		f, err = relativeLogFactors(m, libSizes)
	default:
		f, err = tmmFactors(m, libSizes, opts)
	}
	if err != nil {
		return nil, err
	}

	f = geoMeanScaled(f)
	for j, v := range f {
		if !(v > 0) || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, core.DegenerateInputf("sample %q produced non-positive normalization factor", m.Samples[j])
		}
	}
	return f, nil
}

// Normalize computes factors and returns a copy of m with them attached
func Normalize(m *expr.CountMatrix, opts Options) (*expr.CountMatrix, error) {
	f, err := Factors(m, opts)
	if err != nil {
		return nil, err
	}
	out := *m
	out.NormFactors = f
	return &out, nil
}

func ones(n int) []float64 {
	f := make([]float64, n)
	for i := range f {
		f[i] = 1
	}
	return f
}

// geoMeanScaled rescales factors so their geometric mean is 1, which keeps
// the factors comparable across methods and invariant to a common constant.
func geoMeanScaled(f []float64) []float64 {
	var sumLog float64
	for _, v := range f {
		sumLog += math.Log(v)
	}
	scale := math.Exp(sumLog / float64(len(f)))
	out := make([]float64, len(f))
	for i, v := range f {
		out[i] = v / scale
	}
	return out
}

// sampleColumn extracts one sample's counts as a vector
func sampleColumn(m *expr.CountMatrix, j int) []float64 {
	col := make([]float64, m.NFeatures())
	for i, row := range m.Counts {
		col[i] = row[j]
	}
	return col
}

// refColumn picks the reference sample for TMM: the one whose upper-quartile
// CPM is closest to the mean upper-quartile across samples.
func refColumn(m *expr.CountMatrix, libSizes []float64) (int, error) {
	q75 := make([]float64, m.NSamples())
	for j := range q75 {
		scaled := make([]float64, 0, m.NFeatures())
		for _, row := range m.Counts {
			scaled = append(scaled, row[j]/libSizes[j])
		}
		q, err := mstats.Percentile(scaled, 75)
		if err != nil {
			return 0, core.Wrap(err, "upper quartile of sample failed")
		}
		q75[j] = q
	}

	mean, err := mstats.Mean(q75)
	if err != nil {
		return 0, core.Wrap(err, "mean upper quartile failed")
	}

	ref := 0
	best := math.Abs(q75[0] - mean)
	for j, q := range q75 {
		if d := math.Abs(q - mean); d < best {
			best = d
			ref = j
		}
	}
	return ref, nil
}

// tmmFactors implements the trimmed mean of M-values strategy: per-feature
// log ratios against a reference sample are trimmed by both log fold-change
// and absolute intensity rank, then averaged with asymptotic-variance
// weights.
func tmmFactors(m *expr.CountMatrix, libSizes []float64, opts Options) ([]float64, error) {
	ref, err := refColumn(m, libSizes)
	if err != nil {
		return nil, err
	}
	refCol := sampleColumn(m, ref)
	refSize := libSizes[ref]

	f := make([]float64, m.NSamples())
	for j := range f {
		if j == ref {
			f[j] = 1
			continue
		}
		col := sampleColumn(m, j)
		f[j] = tmmPair(col, refCol, libSizes[j], refSize, opts)
	}
	return f, nil
}

// tmmPair computes the TMM factor of one sample against the reference
func tmmPair(obs, ref []float64, obsSize, refSize float64, opts Options) float64 {
	var logRatio, absIntensity, weight []float64
	for i := range obs {
		if obs[i] <= 0 || ref[i] <= 0 {
			continue
		}
		pObs := obs[i] / obsSize
		pRef := ref[i] / refSize
		lr := math.Log2(pObs / pRef)
		ai := math.Log2(pObs*pRef) / 2
		if ai < opts.MinAveLog || math.IsInf(lr, 0) || math.IsNaN(lr) {
			continue
		}
		logRatio = append(logRatio, lr)
		absIntensity = append(absIntensity, ai)
		weight = append(weight, (obsSize-obs[i])/(obsSize*obs[i])+(refSize-ref[i])/(refSize*ref[i]))
	}
	if len(logRatio) == 0 {
		return 1
	}

	n := float64(len(logRatio))
	loRatio := math.Floor(n*opts.LogRatioTrim) + 1
	hiRatio := n + 1 - loRatio
	loIntensity := math.Floor(n*opts.AbsIntensityTrim) + 1
	hiIntensity := n + 1 - loIntensity

	ratioRank := rank(logRatio)
	intensityRank := rank(absIntensity)

	var num, den float64
	for i := range logRatio {
		if ratioRank[i] < loRatio || ratioRank[i] > hiRatio {
			continue
		}
		if intensityRank[i] < loIntensity || intensityRank[i] > hiIntensity {
			continue
		}
		num += logRatio[i] / weight[i]
		den += 1 / weight[i]
	}
	if den == 0 {
		return 1
	}
	return math.Pow(2, num/den)
}

// upperQuartileFactors scales each sample by its 75th percentile of
// library-size-normalized counts, skipping features that are zero everywhere.
func upperQuartileFactors(m *expr.CountMatrix, libSizes []float64) ([]float64, error) {
	skip := allZeroRows(m)
	f := make([]float64, m.NSamples())
	for j := range f {
		scaled := make([]float64, 0, m.NFeatures())
		for i, row := range m.Counts {
			if skip[i] {
				continue
			}
			scaled = append(scaled, row[j]/libSizes[j])
		}
		if len(scaled) == 0 {
			return nil, core.DegenerateInput("all features are zero in every sample")
		}
		q, err := mstats.Percentile(scaled, 75)
		if err != nil {
			return nil, core.Wrap(err, "upper quartile failed")
		}
		if q <= 0 {
			return nil, core.DegenerateInputf("sample %q has zero upper-quartile count", m.Samples[j])
		}
		f[j] = q
	}
	return f, nil
}

// relativeLogFactors implements the relative log expression strategy: the
// median ratio of each sample's counts to the per-feature geometric mean.
func relativeLogFactors(m *expr.CountMatrix, libSizes []float64) ([]float64, error) {
	skip := allZeroRows(m)

	// Per-feature geometric means across samples.
	geo := make([]float64, m.NFeatures())
	for i, row := range m.Counts {
		if skip[i] {
			continue
		}
		var sumLog float64
		ok := true
		for _, v := range row {
			if v <= 0 {
				ok = false
				break
			}
			sumLog += math.Log(v)
		}
		if !ok {
			skip[i] = true
			continue
		}
		geo[i] = math.Exp(sumLog / float64(m.NSamples()))
	}

	f := make([]float64, m.NSamples())
	for j := range f {
		var ratios []float64
		for i, row := range m.Counts {
			if skip[i] || geo[i] == 0 {
				continue
			}
			ratios = append(ratios, row[j]/geo[i])
		}
		if len(ratios) == 0 {
			return nil, core.DegenerateInputf("sample %q has no features usable for relative log normalization", m.Samples[j])
		}
		med, err := mstats.Median(ratios)
		if err != nil {
			return nil, core.Wrap(err, "median ratio failed")
		}
		if med <= 0 {
			return nil, core.DegenerateInputf("sample %q has non-positive median ratio", m.Samples[j])
		}
		f[j] = med / libSizes[j]
	}
	return f, nil
}

func allZeroRows(m *expr.CountMatrix) []bool {
	skip := make([]bool, m.NFeatures())
	for i, row := range m.Counts {
		skip[i] = true
		for _, v := range row {
			if v != 0 {
				skip[i] = false
				break
			}
		}
	}
	return skip
}

// rank returns 1-based sample ranks with ties resolved as the mean rank of
// coequal values.
func rank(v []float64) []float64 {
	n := len(v)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j < n-1 && v[idx[j+1]] == v[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

