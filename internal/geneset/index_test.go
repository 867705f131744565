package geneset

import (
	"math/rand"
	"testing"

	"godex/domain/core"
	"godex/domain/expr"
)

func matrixWithFeatures(t *testing.T, ids ...string) *expr.CountMatrix {
	t.Helper()
	features := make([]core.FeatureID, len(ids))
	counts := make([][]float64, len(ids))
	for i, id := range ids {
		features[i] = core.FeatureID(id)
		counts[i] = []float64{1, 2}
	}
	m, err := expr.NewCountMatrix(features, []core.SampleID{"s1", "s2"}, counts)
	if err != nil {
		t.Fatalf("building matrix: %v", err)
	}
	return m
}

func TestIndexMatchesAndDrops(t *testing.T) {
	m := matrixWithFeatures(t, "g1", "g2", "g3", "g4")
	set := expr.GeneSet{
		Name:    "pathway",
		Members: []core.FeatureID{"g4", "g2", "absent"},
	}

	idx := Index(set, m)
	if idx.Name != "pathway" {
		t.Errorf("name = %q", idx.Name)
	}
	if idx.NInput != 3 {
		t.Errorf("NInput = %d, want 3", idx.NInput)
	}
	want := []int{1, 3}
	if len(idx.Rows) != len(want) {
		t.Fatalf("rows = %v, want %v", idx.Rows, want)
	}
	for i := range want {
		if idx.Rows[i] != want[i] {
			t.Fatalf("rows = %v, want %v", idx.Rows, want)
		}
	}
}

func TestIndexOrderIndependent(t *testing.T) {
	m := matrixWithFeatures(t, "g1", "g2", "g3", "g4", "g5", "g6")
	members := []core.FeatureID{"g1", "g3", "g5", "g6"}

	base := Index(expr.GeneSet{Name: "s", Members: members}, m)

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 10; trial++ {
		shuffled := append([]core.FeatureID(nil), members...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		idx := Index(expr.GeneSet{Name: "s", Members: shuffled}, m)
		if len(idx.Rows) != len(base.Rows) {
			t.Fatalf("shuffled rows %v differ from %v", idx.Rows, base.Rows)
		}
		for i := range base.Rows {
			if idx.Rows[i] != base.Rows[i] {
				t.Fatalf("shuffled rows %v differ from %v", idx.Rows, base.Rows)
			}
		}
	}
}

func TestIndexDeduplicates(t *testing.T) {
	m := matrixWithFeatures(t, "g1", "g2")
	idx := Index(expr.GeneSet{Name: "s", Members: []core.FeatureID{"g2", "g2", "g2"}}, m)
	if idx.Size() != 1 {
		t.Fatalf("size = %d, want 1", idx.Size())
	}
}

func TestEntirelyUnmatchedSetIsEmptyNotError(t *testing.T) {
	m := matrixWithFeatures(t, "g1", "g2")
	idx := Index(expr.GeneSet{Name: "s", Members: []core.FeatureID{"x", "y"}}, m)
	if !idx.IsEmpty() {
		t.Fatalf("expected an empty index, got rows %v", idx.Rows)
	}
	if idx.NInput != 2 {
		t.Errorf("NInput = %d, want 2", idx.NInput)
	}
}

func TestValidateDetectsStaleIndex(t *testing.T) {
	m := matrixWithFeatures(t, "g1", "g2", "g3")
	idx := Index(expr.GeneSet{Name: "s", Members: []core.FeatureID{"g3"}}, m)

	if err := Validate(idx, m); err != nil {
		t.Fatalf("fresh index failed validation: %v", err)
	}

	refiltered, err := m.SubsetRows([]int{0, 1})
	if err != nil {
		t.Fatalf("subset: %v", err)
	}
	if err := Validate(idx, refiltered); err == nil {
		t.Fatal("expected validation to fail against a refiltered matrix")
	} else if !core.HasCode(err, core.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}
