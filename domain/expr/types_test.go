package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"godex/domain/core"
)

func TestNewCountMatrixValidation(t *testing.T) {
	features := []core.FeatureID{"g1", "g2"}
	samples := []core.SampleID{"s1", "s2"}

	_, err := NewCountMatrix(features, samples, [][]float64{{1, 2}})
	assert.Error(t, err, "row count mismatch must fail")

	_, err = NewCountMatrix([]core.FeatureID{"g1", "g1"}, samples, [][]float64{{1, 2}, {3, 4}})
	assert.Error(t, err, "duplicate feature IDs must fail")

	_, err = NewCountMatrix(features, samples, [][]float64{{1, 2}, {3, -4}})
	assert.Error(t, err, "negative counts must fail")

	m, err := NewCountMatrix(features, samples, [][]float64{{1.4, 2}, {3, 4.6}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Counts[0][0], "counts are rounded on load")
	assert.Equal(t, 5.0, m.Counts[1][1])
}

func TestLibSizesAndEffectiveLibSizes(t *testing.T) {
	m, err := NewCountMatrix(
		[]core.FeatureID{"g1", "g2"},
		[]core.SampleID{"s1", "s2"},
		[][]float64{{10, 100}, {30, 300}},
	)
	require.NoError(t, err)

	assert.Equal(t, []float64{40, 400}, m.LibSizes())
	assert.Equal(t, []float64{40, 400}, m.EffectiveLibSizes(), "nil factors mean raw totals")

	m.NormFactors = []float64{2, 0.5}
	assert.Equal(t, []float64{80, 200}, m.EffectiveLibSizes())
}

func TestSubsetRowsCopies(t *testing.T) {
	m, err := NewCountMatrix(
		[]core.FeatureID{"g1", "g2", "g3"},
		[]core.SampleID{"s1"},
		[][]float64{{1}, {2}, {3}},
	)
	require.NoError(t, err)
	m.NormFactors = []float64{1.5}

	sub, err := m.SubsetRows([]int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []core.FeatureID{"g3", "g1"}, sub.Features)
	assert.Nil(t, sub.NormFactors, "scale factors are stale after a row subset")

	sub.Counts[0][0] = 99
	assert.Equal(t, 3.0, m.Counts[2][0], "subset must not alias the source rows")

	_, err = m.SubsetRows([]int{5})
	assert.Error(t, err)
}

func TestSampleTableLevelsFirstAppearance(t *testing.T) {
	table, err := NewSampleTable(
		[]core.SampleID{"s1", "s2", "s3", "s4"},
		[]string{"temp"},
		map[string][]string{"temp": {"19", "13", "19", "13"}},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"19", "13"}, table.Levels("temp"))
	assert.Nil(t, table.Levels("missing"))
}

func TestSampleTableReorder(t *testing.T) {
	table, err := NewSampleTable(
		[]core.SampleID{"s1", "s2", "s3"},
		[]string{"group"},
		map[string][]string{"group": {"a", "b", "c"}},
	)
	require.NoError(t, err)

	re, err := table.Reorder([]core.SampleID{"s3", "s1"})
	require.NoError(t, err)
	assert.Equal(t, []core.SampleID{"s3", "s1"}, re.Samples)
	assert.Equal(t, []string{"c", "a"}, re.Values["group"])

	_, err = table.Reorder([]core.SampleID{"s9"})
	assert.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeDataFormat))
}

func TestParseEnums(t *testing.T) {
	for _, ok := range []string{"tmm", "upperquartile", "rle", "none"} {
		_, err := ParseNormMethod(ok)
		assert.NoError(t, err, ok)
	}
	_, err := ParseNormMethod("median")
	assert.Error(t, err)

	_, err = ParseSetStat("mean50")
	assert.NoError(t, err)
	_, err = ParseSetStat("max")
	assert.Error(t, err)

	_, err = ParseAdjustMethod("holm")
	assert.NoError(t, err)
	_, err = ParseAdjustMethod("bonferroni")
	assert.Error(t, err)
}
