// Package fit estimates per-feature linear models on log-CPM expression
// values and moderates their variances by empirical-Bayes shrinkage across
// features.
package fit

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"godex/domain/core"
	"godex/domain/expr"
	"godex/internal/adjust"
	"godex/internal/design"
)

// Options configures the model fitter
type Options struct {
	// Weights are optional per-sample quality weights; nil means unit
	// weights. They are shared by every feature.
	Weights []float64
	// Workers bounds the parallelism of the per-feature least squares loop;
	// zero means GOMAXPROCS.
	Workers int
	// Robust widens the prior fit against outlier variances by using a
	// median/MAD moment estimate instead of mean/variance.
	Robust bool
}

// Result holds per-feature fits plus the shared empirical-Bayes moderation.
// All per-feature slices follow the feature order of the fitted matrix; that
// ordering is what keeps gene-set indices valid downstream.
type Result struct {
	Features []core.FeatureID
	Design   *design.Matrix

	// Expression matrix actually fitted (log2 CPM) and the per-sample
	// weights used, retained for the enrichment tests.
	LogCPM  [][]float64
	Weights []float64

	Beta          [][]float64 // feature x coefficient
	StdevUnscaled []float64   // per coefficient, shared across features
	Sigma2        []float64   // residual variance per feature
	DF            float64     // residual degrees of freedom
	AveExpr       []float64   // mean log2 CPM per feature

	// Empirical-Bayes moderation.
	DFPrior float64
	S2Prior float64
	S2Post  []float64
	T       [][]float64 // moderated t, feature x coefficient
	P       [][]float64 // two-sided p, feature x coefficient
}

// DFTotal returns the degrees of freedom of the moderated t statistics
func (r *Result) DFTotal() float64 {
	if math.IsInf(r.DFPrior, 1) {
		return math.Inf(1)
	}
	return r.DF + r.DFPrior
}

// LogCPM computes the log2 counts-per-million matrix using effective library
// sizes (raw totals times normalization factors). The 0.5 count and 1.0
// library offsets keep zeros finite.
func LogCPM(m *expr.CountMatrix) [][]float64 {
	eff := m.EffectiveLibSizes()
	y := make([][]float64, m.NFeatures())
	for i, row := range m.Counts {
		yi := make([]float64, len(row))
		for j, v := range row {
			yi[j] = math.Log2((v + 0.5) / (eff[j] + 1) * 1e6)
		}
		y[i] = yi
	}
	return y
}

// Fit runs weighted least squares for every feature of the normalized,
// filtered matrix against the design, then applies empirical-Bayes variance
// shrinkage. A feature with zero residual variance fails the run.
func Fit(m *expr.CountMatrix, d *design.Matrix, opts Options) (*Result, error) {
	n := m.NSamples()
	p := d.NCols()
	if d.NRows() != n {
		return nil, core.DataFormatf("design has %d rows but matrix has %d samples", d.NRows(), n)
	}

	w := opts.Weights
	if w == nil {
		w = make([]float64, n)
		for i := range w {
			w[i] = 1
		}
	} else if len(w) != n {
		return nil, core.InvalidInput("quality weights must have one entry per sample")
	} else {
		for _, v := range w {
			if !(v > 0) {
				return nil, core.InvalidInput("quality weights must be strictly positive")
			}
		}
	}

	logCPM := LogCPM(m)

	// Weighted normal equations share their left side across features:
	// solve (X'WX) b = X'W y with a single factorization.
	xtwx := mat.NewSymDense(p, nil)
	xtw := mat.NewDense(p, n, nil)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			xtw.Set(j, i, d.X.At(i, j)*w[i])
		}
	}
	var xtwxDense mat.Dense
	xtwxDense.Mul(xtw, d.X)
	for a := 0; a < p; a++ {
		for b := a; b < p; b++ {
			xtwx.SetSym(a, b, xtwxDense.At(a, b))
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(xtwx) {
		return nil, core.RankDeficiency("weighted design cross-product is not positive definite")
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil, core.RankDeficiency("weighted design cross-product could not be inverted")
	}

	stdevUnscaled := make([]float64, p)
	for j := 0; j < p; j++ {
		stdevUnscaled[j] = math.Sqrt(cov.At(j, j))
	}

	df := float64(n - p)
	res := &Result{
		Features:      m.Features,
		Design:        d,
		LogCPM:        logCPM,
		Weights:       w,
		Beta:          make([][]float64, len(logCPM)),
		StdevUnscaled: stdevUnscaled,
		Sigma2:        make([]float64, len(logCPM)),
		DF:            df,
		AveExpr:       make([]float64, len(logCPM)),
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < len(logCPM); start += featureChunk {
		end := start + featureChunk
		if end > len(logCPM) {
			end = len(logCPM)
		}
		start, end := start, end
		g.Go(func() error {
			rhs := mat.NewVecDense(p, nil)
			beta := mat.NewVecDense(p, nil)
			for i := start; i < end; i++ {
				y := logCPM[i]

				var sum float64
				for _, v := range y {
					sum += v
				}
				res.AveExpr[i] = sum / float64(n)

				// rhs = X'W y
				for j := 0; j < p; j++ {
					var s float64
					for k := 0; k < n; k++ {
						s += xtw.At(j, k) * y[k]
					}
					rhs.SetVec(j, s)
				}
				if err := chol.SolveVecTo(beta, rhs); err != nil {
					return core.Wrapf(err, "least squares failed for feature %q", m.Features[i])
				}

				b := make([]float64, p)
				for j := 0; j < p; j++ {
					b[j] = beta.AtVec(j)
				}
				res.Beta[i] = b

				var rss float64
				for k := 0; k < n; k++ {
					fitted := 0.0
					for j := 0; j < p; j++ {
						fitted += d.X.At(k, j) * b[j]
					}
					r := y[k] - fitted
					rss += w[k] * r * r
				}
				res.Sigma2[i] = rss / df
				if res.Sigma2[i] <= 0 {
					return core.DegenerateInputf("feature %q has zero residual variance", m.Features[i])
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := res.moderate(opts.Robust); err != nil {
		return nil, err
	}
	return res, nil
}

// featureChunk is the number of features handled per worker task.
const featureChunk = 256

// TopTable returns the per-feature result rows for one coefficient, in the
// fitted feature order, with adjusted p-values computed across all features.
func (r *Result) TopTable(coefName string, method expr.AdjustMethod) ([]expr.DEResult, error) {
	j, err := r.Design.CoefIndex(coefName)
	if err != nil {
		return nil, err
	}

	raw := make([]float64, len(r.Features))
	for i := range r.Features {
		raw[i] = r.P[i][j]
	}
	adjusted := adjust.PValues(raw, method)

	rows := make([]expr.DEResult, len(r.Features))
	for i, f := range r.Features {
		rows[i] = expr.DEResult{
			Feature:   f,
			LogFC:     r.Beta[i][j],
			AveExpr:   r.AveExpr[i],
			T:         r.T[i][j],
			PValue:    raw[i],
			AdjPValue: adjusted[i],
		}
	}
	return rows, nil
}

// CoefStats returns the moderated t statistics of one coefficient, in the
// fitted feature order.
func (r *Result) CoefStats(coefName string) ([]float64, error) {
	j, err := r.Design.CoefIndex(coefName)
	if err != nil {
		return nil, err
	}
	t := make([]float64, len(r.Features))
	for i := range t {
		t[i] = r.T[i][j]
	}
	return t, nil
}
