package enrich

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// zScoreT converts a t statistic to its standard normal equivalent by
// matching tail probabilities. Working on the smaller tail keeps the
// transform stable for large statistics.
func zScoreT(t, df float64) float64 {
	if math.IsNaN(t) {
		return t
	}
	if math.IsInf(df, 1) || df > 1e6 {
		return t
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	if t < 0 {
		return distuv.UnitNormal.Quantile(clampProb(dist.CDF(t)))
	}
	return -distuv.UnitNormal.Quantile(clampProb(dist.CDF(-t)))
}

// zScoresT converts a vector of t statistics
func zScoresT(t []float64, df float64) []float64 {
	z := make([]float64, len(t))
	for i, v := range t {
		z[i] = zScoreT(v, df)
	}
	return z
}

func clampProb(p float64) float64 {
	const floor = 1e-300
	if p < floor {
		return floor
	}
	if p > 1-1e-16 {
		return 1 - 1e-16
	}
	return p
}
