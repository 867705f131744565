package adjust

import (
	"math"
	"testing"

	"godex/domain/expr"
)

func TestBenjaminiHochbergKnownValues(t *testing.T) {
	p := []float64{0.005, 0.01, 0.03, 0.05}
	got := PValues(p, expr.AdjustBH)
	want := []float64{0.02, 0.02, 0.04, 0.05}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("BH[%d] = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestBenjaminiHochbergCapsAtOne(t *testing.T) {
	got := PValues([]float64{0.9, 0.95}, expr.AdjustBH)
	for i, q := range got {
		if q > 1 {
			t.Errorf("BH[%d] = %g, exceeds 1", i, q)
		}
	}
}

func TestHolmKnownValues(t *testing.T) {
	p := []float64{0.01, 0.02, 0.04}
	got := PValues(p, expr.AdjustHolm)
	want := []float64{0.03, 0.04, 0.04}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("holm[%d] = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestNaNPassthrough(t *testing.T) {
	p := []float64{0.01, math.NaN(), 0.04}
	got := PValues(p, expr.AdjustBH)

	if !math.IsNaN(got[1]) {
		t.Fatalf("NaN entry was adjusted to %g", got[1])
	}
	// NaN entries do not count toward the number of tests.
	if math.Abs(got[0]-0.02) > 1e-12 {
		t.Errorf("got[0] = %g, want 0.02", got[0])
	}
	if math.Abs(got[2]-0.04) > 1e-12 {
		t.Errorf("got[2] = %g, want 0.04", got[2])
	}
}

func TestNoneReturnsCopy(t *testing.T) {
	p := []float64{0.5, 0.1}
	got := PValues(p, expr.AdjustNone)
	if got[0] != 0.5 || got[1] != 0.1 {
		t.Fatalf("none changed values: %v", got)
	}
	got[0] = 0.9
	if p[0] != 0.5 {
		t.Fatal("none aliases the input slice")
	}
}

func TestAdjustedNeverBelowRaw(t *testing.T) {
	p := []float64{0.001, 0.2, 0.8, 0.04, 0.6}
	for _, method := range []expr.AdjustMethod{expr.AdjustBH, expr.AdjustHolm} {
		got := PValues(p, method)
		for i := range p {
			if got[i] < p[i]-1e-15 {
				t.Errorf("%s[%d] = %g below raw %g", method, i, got[i], p[i])
			}
		}
	}
}
