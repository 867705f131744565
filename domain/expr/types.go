package expr

import (
	"fmt"
	"math"

	"godex/domain/core"
)

// ============================================================================
// EXPRESSION DATA (loaded once, never mutated in place)
// ============================================================================

// CountMatrix is a feature-by-sample matrix of non-negative integer read counts.
// Rows are features (genes/isoforms), columns are samples. Counts are stored as
// float64 for downstream arithmetic but hold rounded integer values after load.
// The matrix is never modified in place once constructed: filtering produces a
// new matrix that shares no row slices with its input.
type CountMatrix struct {
	Features []core.FeatureID `json:"features"`
	Samples  []core.SampleID  `json:"samples"`
	Counts   [][]float64      `json:"-"` // row-major, len(Features) x len(Samples)

	// NormFactors holds one positive scale factor per sample. Auxiliary state
	// attached by the normalizer and consumed by the model fitter; nil means
	// unit factors.
	NormFactors []float64 `json:"norm_factors,omitempty"`
}

// NewCountMatrix creates a count matrix with validation
func NewCountMatrix(features []core.FeatureID, samples []core.SampleID, counts [][]float64) (*CountMatrix, error) {
	if len(features) == 0 || len(samples) == 0 {
		return nil, core.DataFormat("count matrix must have at least one feature and one sample")
	}
	if len(counts) != len(features) {
		return nil, core.DataFormatf("count matrix has %d rows but %d feature IDs", len(counts), len(features))
	}
	seenF := make(map[core.FeatureID]bool, len(features))
	for _, f := range features {
		if seenF[f] {
			return nil, core.DataFormatf("duplicate feature ID %q", f)
		}
		seenF[f] = true
	}
	seenS := make(map[core.SampleID]bool, len(samples))
	for _, s := range samples {
		if seenS[s] {
			return nil, core.DataFormatf("duplicate sample ID %q", s)
		}
		seenS[s] = true
	}
	for i, row := range counts {
		if len(row) != len(samples) {
			return nil, core.DataFormatf("feature %q has %d counts but %d samples", features[i], len(row), len(samples))
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, core.DataFormatf("feature %q sample %q has invalid count %v", features[i], samples[j], v)
			}
			counts[i][j] = math.Round(v)
		}
	}
	return &CountMatrix{Features: features, Samples: samples, Counts: counts}, nil
}

// NFeatures returns the number of features (rows)
func (m *CountMatrix) NFeatures() int { return len(m.Features) }

// NSamples returns the number of samples (columns)
func (m *CountMatrix) NSamples() int { return len(m.Samples) }

// LibSizes returns the per-sample total counts
func (m *CountMatrix) LibSizes() []float64 {
	sizes := make([]float64, m.NSamples())
	for _, row := range m.Counts {
		for j, v := range row {
			sizes[j] += v
		}
	}
	return sizes
}

// EffectiveLibSizes returns library sizes multiplied by normalization factors.
// With nil NormFactors this equals LibSizes.
func (m *CountMatrix) EffectiveLibSizes() []float64 {
	sizes := m.LibSizes()
	if m.NormFactors == nil {
		return sizes
	}
	for j := range sizes {
		sizes[j] *= m.NormFactors[j]
	}
	return sizes
}

// CPM returns the counts-per-million value for one entry given a library size
func CPM(count, libSize float64) float64 {
	if libSize <= 0 {
		return 0
	}
	return count / libSize * 1e6
}

// SubsetRows returns a new matrix containing the given rows, in the given
// order. Row data is copied; NormFactors are not carried over because scale
// factors must be recomputed after any row subset.
func (m *CountMatrix) SubsetRows(rows []int) (*CountMatrix, error) {
	features := make([]core.FeatureID, len(rows))
	counts := make([][]float64, len(rows))
	for i, r := range rows {
		if r < 0 || r >= m.NFeatures() {
			return nil, core.InvalidInput(fmt.Sprintf("row index %d out of range", r))
		}
		features[i] = m.Features[r]
		counts[i] = append([]float64(nil), m.Counts[r]...)
	}
	samples := append([]core.SampleID(nil), m.Samples...)
	return &CountMatrix{Features: features, Samples: samples, Counts: counts}, nil
}

// FeatureIndex returns a lookup from feature ID to row position
func (m *CountMatrix) FeatureIndex() map[core.FeatureID]int {
	idx := make(map[core.FeatureID]int, len(m.Features))
	for i, f := range m.Features {
		idx[f] = i
	}
	return idx
}

// ============================================================================
// SAMPLE METADATA (read-only after load)
// ============================================================================

// SampleTable holds one row per sample with categorical covariate columns.
// Row order matches the count matrix's sample columns after loading; the
// loader enforces this alignment.
type SampleTable struct {
	Samples []core.SampleID     `json:"samples"`
	Columns []string            `json:"columns"`
	Values  map[string][]string `json:"values"` // column name -> per-sample values
}

// NewSampleTable creates a sample table with validation
func NewSampleTable(samples []core.SampleID, columns []string, values map[string][]string) (*SampleTable, error) {
	if len(samples) == 0 {
		return nil, core.DataFormat("sample table has no rows")
	}
	seen := make(map[core.SampleID]bool, len(samples))
	for _, s := range samples {
		if seen[s] {
			return nil, core.DataFormatf("duplicate sample ID %q in sample table", s)
		}
		seen[s] = true
	}
	for _, col := range columns {
		vals, ok := values[col]
		if !ok {
			return nil, core.DataFormatf("sample table column %q has no values", col)
		}
		if len(vals) != len(samples) {
			return nil, core.DataFormatf("sample table column %q has %d values but %d samples", col, len(vals), len(samples))
		}
	}
	return &SampleTable{Samples: samples, Columns: columns, Values: values}, nil
}

// Column returns the values of a covariate column
func (t *SampleTable) Column(name string) ([]string, bool) {
	vals, ok := t.Values[name]
	return vals, ok
}

// Levels returns the distinct values of a column in first-appearance order
func (t *SampleTable) Levels(name string) []string {
	vals, ok := t.Values[name]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var levels []string
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			levels = append(levels, v)
		}
	}
	return levels
}

// Reorder returns a new table with rows arranged in the given sample order.
// Every requested sample must be present.
func (t *SampleTable) Reorder(order []core.SampleID) (*SampleTable, error) {
	pos := make(map[core.SampleID]int, len(t.Samples))
	for i, s := range t.Samples {
		pos[s] = i
	}
	values := make(map[string][]string, len(t.Columns))
	for _, col := range t.Columns {
		values[col] = make([]string, len(order))
	}
	samples := make([]core.SampleID, len(order))
	for i, s := range order {
		j, ok := pos[s]
		if !ok {
			return nil, core.DataFormatf("sample %q present in count matrix but missing from sample table", s)
		}
		samples[i] = s
		for _, col := range t.Columns {
			values[col][i] = t.Values[col][j]
		}
	}
	return &SampleTable{Samples: samples, Columns: t.Columns, Values: values}, nil
}

// ============================================================================
// GENE SETS
// ============================================================================

// GeneSet is a named, unordered collection of external gene identifiers
type GeneSet struct {
	Name    core.SetName     `json:"name"`
	Members []core.FeatureID `json:"members"`
}

// SetIndex maps a gene set onto row positions of a specific filtered matrix.
// It becomes stale if the matrix is refiltered after translation; NFeatures
// records the matrix size it was built against so staleness is detectable.
type SetIndex struct {
	Name      core.SetName `json:"name"`
	Rows      []int        `json:"rows"` // deduplicated, ascending
	NInput    int          `json:"n_input"`
	NFeatures int          `json:"n_features"` // feature count of the indexed matrix
}

// Size returns the number of matched rows
func (s SetIndex) Size() int { return len(s.Rows) }

// IsEmpty reports whether no identifiers matched
func (s SetIndex) IsEmpty() bool { return len(s.Rows) == 0 }

// ============================================================================
// RESULT ROWS (human-facing tables)
// ============================================================================

// Direction labels the sign of a set-level or feature-level shift
type Direction string

const (
	DirectionUp   Direction = "Up"
	DirectionDown Direction = "Down"
	DirectionNone Direction = ""
)

// DEResult is one row of the per-feature differential expression table
type DEResult struct {
	Feature   core.FeatureID `json:"feature"`
	LogFC     float64        `json:"log_fc"`
	AveExpr   float64        `json:"ave_expr"`
	T         float64        `json:"t"`
	PValue    float64        `json:"p_value"`
	AdjPValue float64        `json:"adj_p_value"`
}

// CameraResult is one row of the competitive enrichment table
type CameraResult struct {
	Set         core.SetName `json:"set"`
	NGenes      int          `json:"n_genes"`
	Correlation float64      `json:"correlation"` // inter-feature correlation used
	Direction   Direction    `json:"direction"`
	PValue      float64      `json:"p_value"`
	FDR         float64      `json:"fdr"` // NaN when a single set was tested
}

// RoastResult is one row of the self-contained (rotation) enrichment table.
// P-values for an empty set are NaN; the run proceeds with a warning.
type RoastResult struct {
	Set       core.SetName `json:"set"`
	NGenes    int          `json:"n_genes"`
	PropUp    float64      `json:"prop_up"`
	PropDown  float64      `json:"prop_down"`
	Direction Direction    `json:"direction"`
	PUp       float64      `json:"p_up"`
	PDown     float64      `json:"p_down"`
	PMixed    float64      `json:"p_mixed"`
	FDRUp     float64      `json:"fdr_up"`
	FDRDown   float64      `json:"fdr_down"`
	FDRMixed  float64      `json:"fdr_mixed"`
}

// ============================================================================
// CONFIGURATION ENUMS
// ============================================================================

// NormMethod selects the scale-factor computation
type NormMethod string

const (
	NormTMM           NormMethod = "tmm"
	NormUpperQuartile NormMethod = "upperquartile"
	NormRelativeLog   NormMethod = "rle"
	NormNone          NormMethod = "none"
)

// ParseNormMethod validates a normalization method name
func ParseNormMethod(s string) (NormMethod, error) {
	switch NormMethod(s) {
	case NormTMM, NormUpperQuartile, NormRelativeLog, NormNone:
		return NormMethod(s), nil
	}
	return "", core.InvalidInput(fmt.Sprintf("unknown normalization method %q", s))
}

// SetStat selects the set-summary statistic for the rotation test.
// The choice trades power across assumed fractions of truly shifted features:
// "mean" is strongest when most of the set moves together, "mean50" when about
// half does, "msq" when a small subset moves strongly in either direction.
type SetStat string

const (
	SetStatMean   SetStat = "mean"
	SetStatMean50 SetStat = "mean50"
	SetStatMSq    SetStat = "msq"
)

// ParseSetStat validates a set-summary statistic name
func ParseSetStat(s string) (SetStat, error) {
	switch SetStat(s) {
	case SetStatMean, SetStatMean50, SetStatMSq:
		return SetStat(s), nil
	}
	return "", core.InvalidInput(fmt.Sprintf("unknown set statistic %q", s))
}

// AdjustMethod selects the multiple-testing correction
type AdjustMethod string

const (
	AdjustBH   AdjustMethod = "BH"
	AdjustHolm AdjustMethod = "holm"
	AdjustNone AdjustMethod = "none"
)

// ParseAdjustMethod validates an adjustment method name
func ParseAdjustMethod(s string) (AdjustMethod, error) {
	switch AdjustMethod(s) {
	case AdjustBH, AdjustHolm, AdjustNone:
		return AdjustMethod(s), nil
	}
	return "", core.InvalidInput(fmt.Sprintf("unknown adjustment method %q", s))
}

// InterGeneCor carries the competitive test's correlation parameter: either a
// fixed value in [0, 1) or a request to estimate it per set from residuals.
type InterGeneCor struct {
	Estimate bool
	Value    float64
}

// FixedCor returns a fixed inter-feature correlation parameter
func FixedCor(v float64) InterGeneCor { return InterGeneCor{Value: v} }

// EstimateCor returns the sentinel requesting per-set estimation
func EstimateCor() InterGeneCor { return InterGeneCor{Estimate: true} }
