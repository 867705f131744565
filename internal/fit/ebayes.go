package fit

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"

	"godex/domain/core"
)

// moderate pools residual variances across features, shrinks each toward the
// fitted prior, and fills in moderated t statistics and two-sided p-values.
func (r *Result) moderate(robust bool) error {
	dfPrior, s2Prior, err := fitVariancePrior(r.Sigma2, r.DF, robust)
	if err != nil {
		return err
	}
	r.DFPrior = dfPrior
	r.S2Prior = s2Prior

	r.S2Post = make([]float64, len(r.Sigma2))
	for i, s2 := range r.Sigma2 {
		if math.IsInf(dfPrior, 1) {
			r.S2Post[i] = s2Prior
		} else {
			r.S2Post[i] = (dfPrior*s2Prior + r.DF*s2) / (dfPrior + r.DF)
		}
	}

	dfTotal := r.DFTotal()
	tDist := tDistribution(dfTotal)

	p := len(r.StdevUnscaled)
	r.T = make([][]float64, len(r.Beta))
	r.P = make([][]float64, len(r.Beta))
	for i, beta := range r.Beta {
		ti := make([]float64, p)
		pi := make([]float64, p)
		se := math.Sqrt(r.S2Post[i])
		for j := 0; j < p; j++ {
			ti[j] = beta[j] / (se * r.StdevUnscaled[j])
			pi[j] = 2 * tDist.CDF(-math.Abs(ti[j]))
		}
		r.T[i] = ti
		r.P[i] = pi
	}
	return nil
}

// tDistribution returns the reference distribution for moderated statistics;
// an infinite-df prior degrades gracefully to the normal limit.
func tDistribution(df float64) interface{ CDF(float64) float64 } {
	if math.IsInf(df, 1) || df > 1e6 {
		return distuv.UnitNormal
	}
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
}

// fitVariancePrior estimates the degrees of freedom and scale of the scaled
// inverse-chi-square prior by matching moments of the log sample variances.
// With robust estimation the moments come from the median and MAD, which
// keeps a minority of outlier features from inflating the prior.
func fitVariancePrior(s2 []float64, df float64, robust bool) (dfPrior, s2Prior float64, err error) {
	if len(s2) < 2 {
		return 0, 0, core.DegenerateInput("too few features to fit a variance prior")
	}

	e := make([]float64, len(s2))
	for i, v := range s2 {
		if v <= 0 {
			return 0, 0, core.DegenerateInput("zero residual variance reached the prior fit")
		}
		e[i] = math.Log(v) - digamma(df/2) + math.Log(df/2)
	}

	var eMean, eVar float64
	if robust {
		eMean, eVar = robustMoments(e)
	} else {
		for _, v := range e {
			eMean += v
		}
		eMean /= float64(len(e))
		for _, v := range e {
			d := v - eMean
			eVar += d * d
		}
		eVar /= float64(len(e) - 1)
	}

	eVar -= trigamma(df / 2)
	if eVar > 0 {
		dfPrior = 2 * trigammaInverse(eVar)
		s2Prior = math.Exp(eMean + digamma(dfPrior/2) - math.Log(dfPrior/2))
	} else {
		// Sample variances are no more dispersed than sampling alone
		// explains: fully shrink to the common value.
		dfPrior = math.Inf(1)
		s2Prior = math.Exp(eMean)
	}
	return dfPrior, s2Prior, nil
}

// robustMoments returns a median-based location and a MAD-based spread on
// the scale of mean and variance.
func robustMoments(e []float64) (location, spread float64) {
	sorted := append([]float64(nil), e...)
	sort.Float64s(sorted)
	med := sorted[len(sorted)/2]
	if len(sorted)%2 == 0 {
		med = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}

	dev := make([]float64, len(e))
	for i, v := range e {
		dev[i] = math.Abs(v - med)
	}
	sort.Float64s(dev)
	mad := dev[len(dev)/2]
	if len(dev)%2 == 0 {
		mad = (dev[len(dev)/2-1] + dev[len(dev)/2]) / 2
	}

	// 1.4826 rescales MAD to the standard deviation under normality.
	sd := 1.4826 * mad
	return med, sd * sd
}

func digamma(x float64) float64 {
	return mathext.Digamma(x)
}

// trigamma computes the first derivative of the digamma function using the
// recurrence to push the argument above 6 and the asymptotic series there.
func trigamma(x float64) float64 {
	var acc float64
	for x < 6 {
		acc += 1 / (x * x)
		x++
	}
	inv := 1 / x
	inv2 := inv * inv
	// Asymptotic expansion with Bernoulli-number coefficients.
	series := inv + inv2/2 + inv2*inv/6 - inv2*inv2*inv/30 + inv2*inv2*inv2*inv/42
	return acc + series
}

// trigammaInverse solves trigamma(x) = y by bisection; trigamma is strictly
// decreasing on (0, inf) so the root is unique.
func trigammaInverse(y float64) float64 {
	if y <= 0 {
		return math.Inf(1)
	}
	if y > 1e7 {
		return 1 / math.Sqrt(y)
	}
	if y < 1e-6 {
		return 1 / y
	}

	lo, hi := 1e-8, 1e8
	for i := 0; i < 200; i++ {
		mid := math.Sqrt(lo * hi) // geometric bisection suits the scale range
		if trigamma(mid) > y {
			lo = mid
		} else {
			hi = mid
		}
		if hi/lo < 1+1e-12 {
			break
		}
	}
	return math.Sqrt(lo * hi)
}

// SqueezeVar exposes the variance shrinkage step for consumers that fit
// their own per-feature variances (the rotation test refits in the reduced
// contrast space). It returns the fitted prior and the posterior variances.
func SqueezeVar(s2 []float64, df float64, robust bool) (dfPrior, s2Prior float64, s2Post []float64, err error) {
	dfPrior, s2Prior, err = fitVariancePrior(s2, df, robust)
	if err != nil {
		return 0, 0, nil, err
	}
	s2Post = make([]float64, len(s2))
	for i, v := range s2 {
		if math.IsInf(dfPrior, 1) {
			s2Post[i] = s2Prior
		} else {
			s2Post[i] = (dfPrior*s2Prior + df*v) / (dfPrior + df)
		}
	}
	return dfPrior, s2Prior, s2Post, nil
}
