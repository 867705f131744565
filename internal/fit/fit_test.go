package fit

import (
	"math"
	"testing"

	"godex/domain/core"
	"godex/domain/expr"
	"godex/internal/design"
	"godex/internal/filter"
	"godex/internal/norm"
	"godex/internal/testkit"
)

// fitSynthetic runs filter, normalization, design and fit on a generated
// dataset and returns the fit together with the filtered matrix.
func fitSynthetic(t *testing.T, cfg testkit.Config) (*testkit.Dataset, *expr.CountMatrix, *Result) {
	t.Helper()
	ds, err := testkit.Generate(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	filtered, err := filter.Apply(ds.Matrix, filter.Options{MinCPM: 0.5, MinSamples: 3})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	normalized, err := norm.Normalize(filtered, norm.DefaultOptions())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	d, err := design.Build(ds.Samples, []design.FactorSpec{
		{Column: "group", Levels: []string{"control", "treated"}},
	})
	if err != nil {
		t.Fatalf("design: %v", err)
	}
	res, err := Fit(normalized, d, Options{})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	return ds, normalized, res
}

func TestLogCPMFiniteForZeroCounts(t *testing.T) {
	m, err := expr.NewCountMatrix(
		[]core.FeatureID{"a", "b"},
		[]core.SampleID{"s1", "s2"},
		[][]float64{{0, 10}, {100, 200}},
	)
	if err != nil {
		t.Fatalf("building matrix: %v", err)
	}
	y := LogCPM(m)
	for i, row := range y {
		for j, v := range row {
			if math.IsInf(v, 0) || math.IsNaN(v) {
				t.Errorf("logCPM[%d][%d] = %v, want finite", i, j, v)
			}
		}
	}
	// Higher count in the same sample means higher log-CPM.
	if !(y[1][0] > y[0][0]) {
		t.Errorf("logCPM not monotone in counts: %g vs %g", y[1][0], y[0][0])
	}
}

func TestFitRecoversShiftedFeatures(t *testing.T) {
	cfg := testkit.DefaultConfig()
	cfg.Features = 100
	cfg.SamplesPerGroup = 6
	cfg.NShifted = 10
	cfg.FoldChange = 2.0
	cfg.Seed = 17

	ds, normalized, res := fitSynthetic(t, cfg)

	top, err := res.TopTable("grouptreated", expr.AdjustBH)
	if err != nil {
		t.Fatalf("top table: %v", err)
	}
	if len(top) != normalized.NFeatures() {
		t.Fatalf("top table has %d rows for %d features", len(top), normalized.NFeatures())
	}

	shiftedUp := make(map[core.FeatureID]bool)
	for _, r := range ds.ShiftedUp {
		shiftedUp[ds.Matrix.Features[r]] = true
	}
	shiftedDown := make(map[core.FeatureID]bool)
	for _, r := range ds.ShiftedDown {
		shiftedDown[ds.Matrix.Features[r]] = true
	}

	detected := 0
	falsePositives := 0
	for _, row := range top {
		significant := row.AdjPValue < 0.05
		switch {
		case shiftedUp[row.Feature]:
			if significant && row.LogFC > 0 {
				detected++
			}
		case shiftedDown[row.Feature]:
			if significant && row.LogFC < 0 {
				detected++
			}
		default:
			if significant {
				falsePositives++
			}
		}
	}

	if detected < 7 {
		t.Errorf("detected %d of 10 two-fold features, want at least 7", detected)
	}
	if falsePositives > 5 {
		t.Errorf("%d null features called significant", falsePositives)
	}
}

func TestModerationShrinksTowardPrior(t *testing.T) {
	cfg := testkit.DefaultConfig()
	cfg.Features = 300
	cfg.SamplesPerGroup = 4
	cfg.NShifted = 0
	cfg.Seed = 23

	_, _, res := fitSynthetic(t, cfg)

	if !(res.DFPrior > 0) {
		t.Fatalf("prior df = %g, want positive", res.DFPrior)
	}
	if !(res.S2Prior > 0) {
		t.Fatalf("prior variance = %g, want positive", res.S2Prior)
	}
	for i := range res.Sigma2 {
		lo := math.Min(res.Sigma2[i], res.S2Prior)
		hi := math.Max(res.Sigma2[i], res.S2Prior)
		if res.S2Post[i] < lo-1e-12 || res.S2Post[i] > hi+1e-12 {
			t.Fatalf("posterior variance %g outside [%g, %g]", res.S2Post[i], lo, hi)
		}
	}
}

func TestSqueezeVarEqualVariances(t *testing.T) {
	// When sample variances are exactly as dispersed as chi-square sampling
	// alone predicts or less, shrinkage is complete.
	s2 := []float64{1, 1, 1, 1, 1, 1}
	dfPrior, s2Prior, s2Post, err := SqueezeVar(s2, 10, false)
	if err != nil {
		t.Fatalf("SqueezeVar: %v", err)
	}
	if !math.IsInf(dfPrior, 1) {
		t.Errorf("prior df = %g, want +Inf for identical variances", dfPrior)
	}
	// The log-scale bias correction places the prior slightly above the
	// common sample variance.
	if s2Prior < 1 || s2Prior > 1.5 {
		t.Errorf("prior variance = %g, want near 1", s2Prior)
	}
	for _, v := range s2Post {
		if math.Abs(v-s2Prior) > 1e-9 {
			t.Errorf("posterior variance = %g, want full shrinkage to %g", v, s2Prior)
		}
	}
}

func TestTrigammaInverseRoundTrip(t *testing.T) {
	for _, x := range []float64{0.1, 0.5, 1, 2.5, 10, 100} {
		y := trigamma(x)
		back := trigammaInverse(y)
		if math.Abs(back-x) > 1e-6*x {
			t.Errorf("trigammaInverse(trigamma(%g)) = %g", x, back)
		}
	}
}

func TestTopTableUnknownCoefficient(t *testing.T) {
	cfg := testkit.DefaultConfig()
	cfg.Features = 50
	cfg.SamplesPerGroup = 3
	cfg.Seed = 2

	_, _, res := fitSynthetic(t, cfg)
	_, err := res.TopTable("groupnope", expr.AdjustBH)
	if err == nil {
		t.Fatal("expected an error for an unknown coefficient")
	}
	if !core.HasCode(err, core.CodeUnknownCoefficient) {
		t.Fatalf("expected UNKNOWN_COEFFICIENT, got %v", err)
	}
}

func TestFitRejectsBadWeights(t *testing.T) {
	cfg := testkit.DefaultConfig()
	cfg.Features = 30
	cfg.SamplesPerGroup = 3
	cfg.Seed = 4

	ds, err := testkit.Generate(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	d, err := design.Build(ds.Samples, []design.FactorSpec{{Column: "group"}})
	if err != nil {
		t.Fatalf("design: %v", err)
	}

	if _, err := Fit(ds.Matrix, d, Options{Weights: []float64{1, 1}}); err == nil {
		t.Fatal("expected an error for wrong-length weights")
	}
	bad := make([]float64, ds.Matrix.NSamples())
	for i := range bad {
		bad[i] = 1
	}
	bad[0] = -1
	if _, err := Fit(ds.Matrix, d, Options{Weights: bad}); err == nil {
		t.Fatal("expected an error for non-positive weights")
	}
}
