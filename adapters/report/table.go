// Package report writes the pipeline's human-facing outputs: TSV result
// tables, an optional xlsx workbook, a markdown run summary, and the JSON run
// manifest.
package report

import (
	"math"
	"strconv"

	"godex/domain/expr"
)

// Table is a named grid of formatted cells, the common currency of the
// writers in this package.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// DETable formats the per-feature differential expression results
func DETable(results []expr.DEResult) Table {
	t := Table{
		Name:    "differential_expression",
		Headers: []string{"feature", "logFC", "AveExpr", "t", "P.Value", "adj.P.Val"},
	}
	for _, r := range results {
		t.Rows = append(t.Rows, []string{
			string(r.Feature),
			fToStr(r.LogFC),
			fToStr(r.AveExpr),
			fToStr(r.T),
			fToStr(r.PValue),
			fToStr(r.AdjPValue),
		})
	}
	return t
}

// CameraTable formats the competitive enrichment results
func CameraTable(results []expr.CameraResult) Table {
	t := Table{
		Name:    "camera",
		Headers: []string{"set", "NGenes", "Correlation", "Direction", "PValue", "FDR"},
	}
	for _, r := range results {
		t.Rows = append(t.Rows, []string{
			string(r.Set),
			strconv.Itoa(r.NGenes),
			fToStr(r.Correlation),
			string(r.Direction),
			fToStr(r.PValue),
			fToStr(r.FDR),
		})
	}
	return t
}

// RoastTable formats the rotation-test results
func RoastTable(results []expr.RoastResult) Table {
	t := Table{
		Name:    "roast",
		Headers: []string{"set", "NGenes", "PropDown", "PropUp", "Direction", "P.Up", "P.Down", "P.Mixed", "FDR.Up", "FDR.Down", "FDR.Mixed"},
	}
	for _, r := range results {
		t.Rows = append(t.Rows, []string{
			string(r.Set),
			strconv.Itoa(r.NGenes),
			fToStr(r.PropDown),
			fToStr(r.PropUp),
			string(r.Direction),
			fToStr(r.PUp),
			fToStr(r.PDown),
			fToStr(r.PMixed),
			fToStr(r.FDRUp),
			fToStr(r.FDRDown),
			fToStr(r.FDRMixed),
		})
	}
	return t
}

// fToStr formats a value for output tables; NaN becomes NA, matching the
// convention statistical tooling expects.
func fToStr(x float64) string {
	if math.IsNaN(x) {
		return "NA"
	}
	return strconv.FormatFloat(x, 'g', 6, 64)
}
