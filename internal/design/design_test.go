package design

import (
	"testing"

	"godex/domain/core"
	"godex/domain/expr"
)

func sampleTable(t *testing.T, samples []string, columns map[string][]string) *expr.SampleTable {
	t.Helper()
	ids := make([]core.SampleID, len(samples))
	for i, s := range samples {
		ids[i] = core.SampleID(s)
	}
	var names []string
	for name := range columns {
		names = append(names, name)
	}
	table, err := expr.NewSampleTable(ids, names, columns)
	if err != nil {
		t.Fatalf("building sample table: %v", err)
	}
	return table
}

func TestBuildTwoFactorDesign(t *testing.T) {
	table := sampleTable(t,
		[]string{"s1", "s2", "s3", "s4", "s5", "s6"},
		map[string][]string{
			"population":  {"pop1", "pop1", "pop1", "pop2", "pop2", "pop2"},
			"temperature": {"13", "19", "13", "19", "13", "19"},
		})

	d, err := Build(table, []FactorSpec{
		{Column: "population", Levels: []string{"pop1", "pop2"}},
		{Column: "temperature", Levels: []string{"13", "19"}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantCols := []string{"(Intercept)", "populationpop2", "temperature19"}
	if d.NCols() != len(wantCols) {
		t.Fatalf("got %d columns, want %d", d.NCols(), len(wantCols))
	}
	for j, name := range wantCols {
		if d.ColNames[j] != name {
			t.Errorf("column %d named %q, want %q", j, d.ColNames[j], name)
		}
	}
	if d.NRows() != 6 {
		t.Fatalf("got %d rows, want 6", d.NRows())
	}

	// s4 is pop2 at 19C: indicator 1 in both non-intercept columns.
	if d.X.At(3, 0) != 1 || d.X.At(3, 1) != 1 || d.X.At(3, 2) != 1 {
		t.Errorf("row for s4 = [%g %g %g], want [1 1 1]",
			d.X.At(3, 0), d.X.At(3, 1), d.X.At(3, 2))
	}
	// s1 is the double reference: intercept only.
	if d.X.At(0, 1) != 0 || d.X.At(0, 2) != 0 {
		t.Errorf("reference sample has nonzero indicators")
	}
}

func TestReferenceLevelControlsCoding(t *testing.T) {
	table := sampleTable(t,
		[]string{"s1", "s2", "s3", "s4"},
		map[string][]string{"temperature": {"19", "13", "19", "13"}})

	// Explicit ordering overrides first-appearance order.
	d, err := Build(table, []FactorSpec{{Column: "temperature", Levels: []string{"13", "19"}}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := d.CoefIndex("temperature19"); err != nil {
		t.Fatalf("expected coefficient temperature19, have %v", d.ColNames)
	}
}

func TestSingleLevelFactorIsRankDeficient(t *testing.T) {
	table := sampleTable(t,
		[]string{"s1", "s2", "s3"},
		map[string][]string{"group": {"x", "x", "x"}})

	_, err := Build(table, []FactorSpec{{Column: "group"}})
	if err == nil {
		t.Fatal("expected an error for a single-level factor")
	}
	if !core.HasCode(err, core.CodeRankDeficiency) {
		t.Fatalf("expected RANK_DEFICIENCY, got %v", err)
	}
}

func TestConfoundedFactorsAreRankDeficient(t *testing.T) {
	// Treatment is a deterministic function of batch.
	table := sampleTable(t,
		[]string{"s1", "s2", "s3", "s4"},
		map[string][]string{
			"batch":     {"b1", "b1", "b2", "b2"},
			"treatment": {"ctl", "ctl", "trt", "trt"},
		})

	_, err := Build(table, []FactorSpec{
		{Column: "batch"},
		{Column: "treatment"},
	})
	if err == nil {
		t.Fatal("expected an error for confounded factors")
	}
	if !core.HasCode(err, core.CodeRankDeficiency) {
		t.Fatalf("expected RANK_DEFICIENCY, got %v", err)
	}
}

func TestUndeclaredLevelIsDataFormat(t *testing.T) {
	table := sampleTable(t,
		[]string{"s1", "s2", "s3"},
		map[string][]string{"group": {"a", "b", "c"}})

	_, err := Build(table, []FactorSpec{{Column: "group", Levels: []string{"a", "b"}}})
	if err == nil {
		t.Fatal("expected an error for an undeclared level")
	}
	if !core.HasCode(err, core.CodeDataFormat) {
		t.Fatalf("expected DATA_FORMAT, got %v", err)
	}
}

func TestSaturatedDesignIsDegenerate(t *testing.T) {
	table := sampleTable(t,
		[]string{"s1", "s2"},
		map[string][]string{"group": {"a", "b"}})

	_, err := Build(table, []FactorSpec{{Column: "group"}})
	if err == nil {
		t.Fatal("expected an error with no residual degrees of freedom")
	}
	if !core.HasCode(err, core.CodeDegenerateInput) {
		t.Fatalf("expected DEGENERATE_INPUT, got %v", err)
	}
}

func TestCoefIndexUnknownName(t *testing.T) {
	table := sampleTable(t,
		[]string{"s1", "s2", "s3", "s4"},
		map[string][]string{"group": {"a", "b", "a", "b"}})

	d, err := Build(table, []FactorSpec{{Column: "group"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	_, err = d.CoefIndex("groupz")
	if err == nil {
		t.Fatal("expected an error for an unknown coefficient")
	}
	if !core.HasCode(err, core.CodeUnknownCoefficient) {
		t.Fatalf("expected UNKNOWN_COEFFICIENT, got %v", err)
	}
}
