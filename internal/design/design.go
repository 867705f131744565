// Package design constructs numeric design matrices from categorical sample
// covariates using treatment (reference level) indicator coding.
package design

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"godex/domain/core"
	"godex/domain/expr"
)

// FactorSpec names a covariate column and optionally fixes its level order.
// The first level is the reference level and gets no indicator column, so an
// explicit ordering controls coefficient interpretation (e.g. temperature's
// reference must be the lower value for a "high vs. low" contrast). With no
// explicit order, levels are taken in first-appearance order.
type FactorSpec struct {
	Column string
	Levels []string
}

// Matrix is a design matrix aligned to the sample order of the metadata
// table it was built from: one row per sample, an intercept column, and one
// indicator column per non-reference factor level.
type Matrix struct {
	ColNames []string
	X        *mat.Dense
}

// NRows returns the number of samples
func (d *Matrix) NRows() int {
	r, _ := d.X.Dims()
	return r
}

// NCols returns the number of model coefficients
func (d *Matrix) NCols() int {
	_, c := d.X.Dims()
	return c
}

// CoefIndex resolves a coefficient name to its column, or an
// UnknownCoefficient error.
func (d *Matrix) CoefIndex(name string) (int, error) {
	for j, n := range d.ColNames {
		if n == name {
			return j, nil
		}
	}
	return 0, core.UnknownCoefficient(name)
}

// Build constructs the design matrix for the given factors. It fails with a
// RankDeficiency error if any factor has a single observed level or the
// resulting columns are linearly dependent (e.g. completely confounded
// factors).
func Build(table *expr.SampleTable, factors []FactorSpec) (*Matrix, error) {
	if len(factors) == 0 {
		return nil, core.InvalidInput("at least one factor is required")
	}
	n := len(table.Samples)

	colNames := []string{"(Intercept)"}
	columns := [][]float64{onesColumn(n)}

	for _, spec := range factors {
		values, ok := table.Column(spec.Column)
		if !ok {
			return nil, core.DataFormatf("sample table has no column %q", spec.Column)
		}

		levels := spec.Levels
		if len(levels) == 0 {
			levels = table.Levels(spec.Column)
		}
		if len(levels) < 2 {
			return nil, core.RankDeficiency(fmt.Sprintf("factor %q has fewer than two levels", spec.Column))
		}

		known := make(map[string]bool, len(levels))
		for _, lvl := range levels {
			known[lvl] = true
		}
		for i, v := range values {
			if !known[v] {
				return nil, core.DataFormatf("sample %q has value %q not among the declared levels of factor %q",
					table.Samples[i], v, spec.Column)
			}
		}

		// Reference level is levels[0]; each remaining level contributes an
		// indicator column.
		for _, lvl := range levels[1:] {
			col := make([]float64, n)
			seen := false
			for i, v := range values {
				if v == lvl {
					col[i] = 1
					seen = true
				}
			}
			if !seen {
				return nil, core.RankDeficiency(fmt.Sprintf("level %q of factor %q is not observed", lvl, spec.Column))
			}
			colNames = append(colNames, spec.Column+lvl)
			columns = append(columns, col)
		}
	}

	x := mat.NewDense(n, len(columns), nil)
	for j, col := range columns {
		x.SetCol(j, col)
	}

	d := &Matrix{ColNames: colNames, X: x}
	if err := checkFullRank(d); err != nil {
		return nil, err
	}
	return d, nil
}

// checkFullRank verifies the columns are linearly independent via the ratio
// of extreme singular values.
func checkFullRank(d *Matrix) error {
	var svd mat.SVD
	if !svd.Factorize(d.X, mat.SVDNone) {
		return core.RankDeficiency("design matrix singular value decomposition failed")
	}
	sv := svd.Values(nil)
	if len(sv) == 0 || sv[len(sv)-1] <= 1e-10*sv[0] {
		return core.RankDeficiency("design matrix columns are linearly dependent")
	}
	if d.NRows() <= d.NCols() {
		return core.DegenerateInputf("design has %d coefficients but only %d samples; no residual degrees of freedom",
			d.NCols(), d.NRows())
	}
	return nil
}

func onesColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = 1
	}
	return col
}
