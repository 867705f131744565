package filter

import (
	"testing"

	"godex/domain/core"
	"godex/domain/expr"
)

func buildMatrix(t *testing.T, counts [][]float64) *expr.CountMatrix {
	t.Helper()
	features := make([]core.FeatureID, len(counts))
	for i := range features {
		features[i] = core.FeatureID(string(rune('a' + i)))
	}
	samples := make([]core.SampleID, len(counts[0]))
	for j := range samples {
		samples[j] = core.SampleID(string(rune('A' + j)))
	}
	m, err := expr.NewCountMatrix(features, samples, counts)
	if err != nil {
		t.Fatalf("building matrix: %v", err)
	}
	return m
}

func TestKeepRowsThreshold(t *testing.T) {
	// Library sizes are 1000 per sample, so count 1 = 1000 CPM.
	m := buildMatrix(t, [][]float64{
		{500, 500, 500}, // well expressed everywhere
		{499, 499, 0},   // expressed in two samples only
		{1, 1, 500},     // low in two samples
		{0, 0, 0},       // absent
	})

	keep, err := KeepRows(m, Options{MinCPM: 100000, MinSamples: 2})
	if err != nil {
		t.Fatalf("KeepRows: %v", err)
	}
	want := []int{0, 1}
	if len(keep) != len(want) {
		t.Fatalf("kept %v, want %v", keep, want)
	}
	for i := range want {
		if keep[i] != want[i] {
			t.Fatalf("kept %v, want %v", keep, want)
		}
	}
}

func TestApplyIdempotent(t *testing.T) {
	m := buildMatrix(t, [][]float64{
		{900, 850, 700, 20},
		{50, 60, 45, 900},
		{2, 1, 0, 1},
		{48, 89, 255, 79},
		{0, 0, 0, 0},
	})
	opts := Options{MinCPM: 10000, MinSamples: 2}

	once, err := Apply(m, opts)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	twice, err := Apply(once, opts)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}

	if twice.NFeatures() != once.NFeatures() {
		t.Fatalf("second pass dropped features: %d -> %d", once.NFeatures(), twice.NFeatures())
	}
	for i := range once.Features {
		if once.Features[i] != twice.Features[i] {
			t.Fatalf("feature order changed at %d: %q vs %q", i, once.Features[i], twice.Features[i])
		}
	}
}

func TestApplyPreservesRowOrder(t *testing.T) {
	m := buildMatrix(t, [][]float64{
		{100, 100},
		{0, 0},
		{200, 200},
	})
	out, err := Apply(m, Options{MinCPM: 1, MinSamples: 1})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.NFeatures() != 2 || out.Features[0] != "a" || out.Features[1] != "c" {
		t.Fatalf("unexpected features %v", out.Features)
	}
}

func TestApplyNothingPasses(t *testing.T) {
	m := buildMatrix(t, [][]float64{
		{1, 1},
		{1, 1},
	})
	_, err := Apply(m, Options{MinCPM: 1e7, MinSamples: 1})
	if err == nil {
		t.Fatal("expected an error when no feature passes")
	}
	if !core.HasCode(err, core.CodeDegenerateInput) {
		t.Fatalf("expected DEGENERATE_INPUT, got %v", err)
	}
}

func TestKeepRowsValidatesOptions(t *testing.T) {
	m := buildMatrix(t, [][]float64{{1, 1}})
	if _, err := KeepRows(m, Options{MinCPM: 1, MinSamples: 0}); err == nil {
		t.Fatal("expected error for MinSamples 0")
	}
	if _, err := KeepRows(m, Options{MinCPM: 1, MinSamples: 3}); err == nil {
		t.Fatal("expected error for MinSamples above sample count")
	}
}
