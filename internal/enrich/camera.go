// Package enrich implements gene-set enrichment tests over a fitted model:
// a competitive test that ranks a set's differential-expression signal
// against the background, and a self-contained rotation test that asks
// whether the set's aggregate signal is significant in absolute terms.
package enrich

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"godex/domain/core"
	"godex/domain/expr"
	"godex/internal/adjust"
	"godex/internal/fit"
)

// DefaultInterGeneCor is the fixed inter-feature correlation assumed by the
// statistic-only competitive test. It cannot be overridden in that variant;
// callers wanting a different correlation must supply the expression data so
// it can be estimated.
const DefaultInterGeneCor = 0.01

// CompetitivePR runs the statistic-only competitive test on precomputed
// per-feature statistics. Each set's mean statistic is compared against the
// rest of the features with a variance inflation factor derived from the
// fixed default inter-feature correlation. With two or more sets the FDR
// column holds Benjamini-Hochberg q-values computed across the supplied sets
// only; with a single set it is NaN.
func CompetitivePR(stats []float64, sets []expr.SetIndex, method expr.AdjustMethod) ([]expr.CameraResult, error) {
	if len(stats) < 3 {
		return nil, core.DegenerateInput("competitive test needs at least three features")
	}
	results := make([]expr.CameraResult, len(sets))
	for i, set := range sets {
		results[i] = competitiveOne(stats, set, DefaultInterGeneCor)
	}
	fillFDR(results, method)
	return results, nil
}

// Competitive runs the competitive test against a fitted model. The
// correlation parameter is either a fixed value or the sentinel requesting
// per-set estimation from the residual correlation structure; estimation
// typically yields a larger effective correlation and hence a more
// conservative p-value for correlated sets.
func Competitive(f *fit.Result, coefName string, sets []expr.SetIndex, cor expr.InterGeneCor, method expr.AdjustMethod) ([]expr.CameraResult, error) {
	if !cor.Estimate && (cor.Value < 0 || cor.Value >= 1) {
		return nil, core.InvalidInput("inter-feature correlation must be in [0, 1)")
	}

	t, err := f.CoefStats(coefName)
	if err != nil {
		return nil, err
	}
	z := zScoresT(t, f.DFTotal())

	var residUnit [][]float64
	if cor.Estimate {
		residUnit = unitResiduals(f)
	}

	results := make([]expr.CameraResult, len(sets))
	for i, set := range sets {
		rho := cor.Value
		if cor.Estimate {
			rho = estimateCorrelation(residUnit, set.Rows)
		}
		results[i] = competitiveOne(z, set, rho)
	}
	fillFDR(results, method)
	return results, nil
}

// competitiveOne performs the rank-style two-group comparison for one set.
// An empty set yields an NA row rather than an error.
func competitiveOne(stats []float64, set expr.SetIndex, rho float64) expr.CameraResult {
	res := expr.CameraResult{
		Set:         set.Name,
		NGenes:      set.Size(),
		Correlation: rho,
		PValue:      math.NaN(),
		FDR:         math.NaN(),
	}
	g := len(stats)
	m := set.Size()
	m2 := g - m
	if m == 0 || m2 < 2 {
		return res
	}

	var sumAll, sumIn float64
	for _, v := range stats {
		sumAll += v
	}
	for _, r := range set.Rows {
		sumIn += stats[r]
	}
	meanAll := sumAll / float64(g)

	var ss float64
	for _, v := range stats {
		d := v - meanAll
		ss += d * d
	}
	varAll := ss / float64(g-1)
	if varAll <= 0 {
		return res
	}

	meanIn := sumIn / float64(m)
	meanOut := (sumAll - sumIn) / float64(m2)
	delta := meanIn - meanOut

	// Correlated features inflate the variance of the set mean; treating
	// them as independent would overstate significance.
	vif := 1 + float64(m-1)*rho
	if vif < 1 {
		vif = 1
	}

	se := math.Sqrt(varAll * (vif/float64(m) + 1/float64(m2)))
	tStat := delta / se
	df := float64(g - 2)
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	res.PValue = 2 * dist.CDF(-math.Abs(tStat))
	if delta >= 0 {
		res.Direction = expr.DirectionUp
	} else {
		res.Direction = expr.DirectionDown
	}
	return res
}

// unitResiduals returns each feature's weighted residual vector scaled to
// unit length, the raw material for per-set correlation estimation.
func unitResiduals(f *fit.Result) [][]float64 {
	n := len(f.Weights)
	p := f.Design.NCols()
	out := make([][]float64, len(f.LogCPM))
	for i, y := range f.LogCPM {
		r := make([]float64, n)
		var norm float64
		for k := 0; k < n; k++ {
			fitted := 0.0
			for j := 0; j < p; j++ {
				fitted += f.Design.X.At(k, j) * f.Beta[i][j]
			}
			r[k] = math.Sqrt(f.Weights[k]) * (y[k] - fitted)
			norm += r[k] * r[k]
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for k := range r {
				r[k] /= norm
			}
		}
		out[i] = r
	}
	return out
}

// estimateCorrelation derives the effective inter-feature correlation of a
// set from its mean unit residual vector: independent features give a
// variance inflation factor near 1, perfectly correlated features give m.
func estimateCorrelation(residUnit [][]float64, rows []int) float64 {
	m := len(rows)
	if m < 2 {
		return 0
	}
	n := len(residUnit[rows[0]])
	mean := make([]float64, n)
	for _, r := range rows {
		for k, v := range residUnit[r] {
			mean[k] += v
		}
	}
	var normSq float64
	for k := range mean {
		mean[k] /= float64(m)
		normSq += mean[k] * mean[k]
	}
	vif := float64(m) * normSq
	rho := (vif - 1) / float64(m-1)
	if rho < 0 {
		return 0
	}
	if rho > 0.99 {
		return 0.99
	}
	return rho
}

// fillFDR attaches q-values across the supplied sets when two or more were
// tested.
func fillFDR(results []expr.CameraResult, method expr.AdjustMethod) {
	if len(results) < 2 {
		return
	}
	raw := make([]float64, len(results))
	for i, r := range results {
		raw[i] = r.PValue
	}
	q := adjust.PValues(raw, method)
	for i := range results {
		results[i].FDR = q[i]
	}
}
