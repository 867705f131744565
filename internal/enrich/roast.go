package enrich

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"godex/domain/core"
	"godex/domain/expr"
	"godex/internal/adjust"
	"godex/internal/fit"
)

// RotationOptions configures the self-contained rotation test
type RotationOptions struct {
	Rotations int          // resampling iterations, default 9999
	Stat      expr.SetStat // set-summary statistic, default mean
	Adjust    expr.AdjustMethod
	Seed      int64
	Workers   int
	Robust    bool
}

// rotationBatch is the number of iterations a worker claims at a time
const rotationBatch = 500

// activeThreshold classifies a feature as actively shifted when its normal
// equivalent statistic exceeds sqrt(2), for the reported proportions.
var activeThreshold = math.Sqrt2

// Rotation runs the rotation-resampling significance test for each gene set
// and the chosen coefficient. Unlike permutation, rotation resampling stays
// valid at small sample sizes: each feature's response is reduced to one
// contrast coordinate plus its residual-space coordinates, and random unit
// vectors on that sphere generate the null distribution of the set summary.
// The same rotation is applied to every feature within an iteration, so
// inter-feature correlation is preserved under the null.
//
// Per set the returned row carries p-values for three hypotheses - net
// upward shift, net downward shift, and any shift (mixed) - each with the
// (b+1)/(nrot+1) correction, plus adjusted q-values per hypothesis when two
// or more sets are supplied. An empty set produces an NA row, not an error.
func Rotation(f *fit.Result, coefName string, sets []expr.SetIndex, opts RotationOptions) ([]expr.RoastResult, error) {
	coef, err := f.Design.CoefIndex(coefName)
	if err != nil {
		return nil, err
	}
	nrot := opts.Rotations
	if nrot <= 0 {
		nrot = 9999
	}
	setStat := opts.Stat
	if setStat == "" {
		setStat = expr.SetStatMean
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	n := len(f.Weights)
	p := f.Design.NCols()
	d := n - p + 1
	df := float64(n - p)
	if d < 2 {
		return nil, core.DegenerateInput("rotation test needs at least one residual degree of freedom")
	}

	u, normSq, err := contrastEffects(f, coef)
	if err != nil {
		return nil, err
	}

	// Moderated denominators reuse the empirical-Bayes machinery on the
	// reduced-space variances.
	s2 := make([]float64, len(u))
	for i := range u {
		s2[i] = (normSq[i] - u[i][0]*u[i][0]) / df
		if s2[i] <= 0 {
			s2[i] = 1e-12
		}
	}
	dfPrior, s2Prior, s2Post, err := fit.SqueezeVar(s2, df, opts.Robust)
	if err != nil {
		return nil, err
	}
	dfTotal := df + dfPrior
	if math.IsInf(dfPrior, 1) {
		dfTotal = math.Inf(1)
	}

	zObs := make([]float64, len(u))
	for i := range u {
		zObs[i] = zScoreT(u[i][0]/math.Sqrt(s2Post[i]), dfTotal)
	}

	type obsStat struct{ up, down, mixed float64 }
	observed := make([]obsStat, len(sets))
	for si, set := range sets {
		if set.IsEmpty() {
			observed[si] = obsStat{math.NaN(), math.NaN(), math.NaN()}
			continue
		}
		up, down, mixed := setSummary(zObs, set.Rows, setStat)
		observed[si] = obsStat{up, down, mixed}
	}

	// Exceedance counters per set and hypothesis, merged across batches.
	counts := make([][3]int, len(sets))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(workers)
	batches := (nrot + rotationBatch - 1) / rotationBatch
	for b := 0; b < batches; b++ {
		b := b
		iters := rotationBatch
		if b == batches-1 {
			iters = nrot - b*rotationBatch
		}
		g.Go(func() error {
			rng := rand.New(rand.NewSource(opts.Seed + int64(b)))
			local := make([][3]int, len(sets))
			r := make([]float64, d)
			zRot := make([]float64, len(u))
			for it := 0; it < iters; it++ {
				randomUnitVector(rng, r)
				for i := range u {
					u1 := dot(r, u[i])
					s2r := (normSq[i] - u1*u1) / df
					if s2r <= 0 {
						s2r = 1e-12
					}
					var post float64
					if math.IsInf(dfPrior, 1) {
						post = s2Prior
					} else {
						post = (dfPrior*s2Prior + df*s2r) / (dfPrior + df)
					}
					zRot[i] = zScoreT(u1/math.Sqrt(post), dfTotal)
				}
				for si, set := range sets {
					if set.IsEmpty() {
						continue
					}
					up, down, mixed := setSummary(zRot, set.Rows, setStat)
					if up >= observed[si].up {
						local[si][0]++
					}
					if down >= observed[si].down {
						local[si][1]++
					}
					if mixed >= observed[si].mixed {
						local[si][2]++
					}
				}
			}
			mu.Lock()
			for si := range counts {
				for h := 0; h < 3; h++ {
					counts[si][h] += local[si][h]
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]expr.RoastResult, len(sets))
	pUp := make([]float64, len(sets))
	pDown := make([]float64, len(sets))
	pMixed := make([]float64, len(sets))
	for si, set := range sets {
		res := expr.RoastResult{
			Set:      set.Name,
			NGenes:   set.Size(),
			PUp:      math.NaN(),
			PDown:    math.NaN(),
			PMixed:   math.NaN(),
			FDRUp:    math.NaN(),
			FDRDown:  math.NaN(),
			FDRMixed: math.NaN(),
		}
		if !set.IsEmpty() {
			res.PUp = float64(counts[si][0]+1) / float64(nrot+1)
			res.PDown = float64(counts[si][1]+1) / float64(nrot+1)
			res.PMixed = float64(counts[si][2]+1) / float64(nrot+1)

			var nUp, nDown int
			for _, row := range set.Rows {
				if zObs[row] > activeThreshold {
					nUp++
				} else if zObs[row] < -activeThreshold {
					nDown++
				}
			}
			res.PropUp = float64(nUp) / float64(set.Size())
			res.PropDown = float64(nDown) / float64(set.Size())
			if res.PUp <= res.PDown {
				res.Direction = expr.DirectionUp
			} else {
				res.Direction = expr.DirectionDown
			}
		}
		results[si] = res
		pUp[si], pDown[si], pMixed[si] = res.PUp, res.PDown, res.PMixed
	}

	if len(sets) >= 2 {
		qUp := adjust.PValues(pUp, opts.Adjust)
		qDown := adjust.PValues(pDown, opts.Adjust)
		qMixed := adjust.PValues(pMixed, opts.Adjust)
		for si := range results {
			results[si].FDRUp = qUp[si]
			results[si].FDRDown = qDown[si]
			results[si].FDRMixed = qMixed[si]
		}
	}
	return results, nil
}

// contrastEffects reduces each feature's weighted response to the tested
// coefficient's coordinate followed by the residual-space coordinates. The
// design columns are reordered so the tested coefficient comes last, then a
// full QR factorization supplies the orthonormal basis.
func contrastEffects(f *fit.Result, coef int) (u [][]float64, normSq []float64, err error) {
	n := len(f.Weights)
	p := f.Design.NCols()
	d := n - p + 1

	sqrtW := make([]float64, n)
	for k, w := range f.Weights {
		sqrtW[k] = math.Sqrt(w)
	}

	xs := mat.NewDense(n, p, nil)
	dst := 0
	for j := 0; j < p; j++ {
		if j == coef {
			continue
		}
		for k := 0; k < n; k++ {
			xs.Set(k, dst, sqrtW[k]*f.Design.X.At(k, j))
		}
		dst++
	}
	for k := 0; k < n; k++ {
		xs.Set(k, p-1, sqrtW[k]*f.Design.X.At(k, coef))
	}

	var qr mat.QR
	qr.Factorize(xs)
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	rpp := r.At(p-1, p-1)
	if math.Abs(rpp) < 1e-12 {
		return nil, nil, core.RankDeficiency("tested coefficient is confounded with the remaining design columns")
	}
	sign := 1.0
	if rpp < 0 {
		sign = -1
	}

	ys := make([]float64, n)
	u = make([][]float64, len(f.LogCPM))
	normSq = make([]float64, len(f.LogCPM))
	for i, y := range f.LogCPM {
		for k := 0; k < n; k++ {
			ys[k] = sqrtW[k] * y[k]
		}
		ui := make([]float64, d)
		for k := 0; k < n; k++ {
			ui[0] += q.At(k, p-1) * ys[k]
		}
		ui[0] *= sign
		for c := p; c < n; c++ {
			var s float64
			for k := 0; k < n; k++ {
				s += q.At(k, c) * ys[k]
			}
			ui[c-p+1] = s
		}
		var ss float64
		for _, v := range ui {
			ss += v * v
		}
		u[i] = ui
		normSq[i] = ss
	}
	return u, normSq, nil
}

// setSummary computes the up, down, and mixed set statistics over the
// features of one set.
func setSummary(z []float64, rows []int, stat expr.SetStat) (up, down, mixed float64) {
	vals := make([]float64, len(rows))
	for i, r := range rows {
		vals[i] = z[r]
	}
	m := float64(len(vals))

	switch stat {
	case expr.SetStatMean50:
		h := (len(vals) + 1) / 2
		up = topHalfMean(vals, h, func(v float64) float64 { return v })
		down = topHalfMean(vals, h, func(v float64) float64 { return -v })
		mixed = topHalfMean(vals, h, math.Abs)
	case expr.SetStatMSq:
		for _, v := range vals {
			mixed += v * v
			if v > 0 {
				up += v * v
			} else {
				down += v * v
			}
		}
		up /= m
		down /= m
		mixed /= m
	default: // mean
		var sum, sumAbs float64
		for _, v := range vals {
			sum += v
			sumAbs += math.Abs(v)
		}
		up = sum / m
		down = -up
		mixed = sumAbs / m
	}
	return up, down, mixed
}

// topHalfMean averages the h largest transformed values
func topHalfMean(vals []float64, h int, transform func(float64) float64) float64 {
	tr := make([]float64, len(vals))
	for i, v := range vals {
		tr[i] = transform(v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(tr)))
	var sum float64
	for i := 0; i < h; i++ {
		sum += tr[i]
	}
	return sum / float64(h)
}

// randomUnitVector fills r with a uniform draw from the unit sphere
func randomUnitVector(rng *rand.Rand, r []float64) {
	for {
		var norm float64
		for i := range r {
			r[i] = rng.NormFloat64()
			norm += r[i] * r[i]
		}
		if norm > 1e-12 {
			norm = math.Sqrt(norm)
			for i := range r {
				r[i] /= norm
			}
			return
		}
	}
}

func dot(a, b []float64) float64 {
	var s float64
	for i, v := range a {
		s += v * b[i]
	}
	return s
}
