// Package testkit generates seeded synthetic RNA-seq datasets with known
// ground truth, for unit tests and for the simulate CLI subcommand.
package testkit

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"godex/domain/core"
	"godex/domain/expr"
)

// Config controls the shape of a synthetic dataset. Counts are drawn from a
// negative-binomial model via a gamma-Poisson mixture, the standard
// overdispersed model for sequencing counts.
type Config struct {
	Features        int
	SamplesPerGroup int
	Seed            int64

	// MeanLogExpr and SDLogExpr shape the per-feature baseline abundance
	// (natural log scale).
	MeanLogExpr float64
	SDLogExpr   float64

	// Dispersion is the negative-binomial dispersion shared by all features
	Dispersion float64

	// LibSizeMin and LibSizeMax bound the uniform per-sample sequencing depth
	LibSizeMin float64
	LibSizeMax float64

	// NShifted features receive a FoldChange in the second group, alternating
	// up and down starting from the first feature.
	NShifted   int
	FoldChange float64
}

// DefaultConfig mirrors the scale of a small two-group pilot experiment
func DefaultConfig() Config {
	return Config{
		Features:        1000,
		SamplesPerGroup: 6,
		Seed:            42,
		MeanLogExpr:     4.0,
		SDLogExpr:       1.5,
		Dispersion:      0.1,
		LibSizeMin:      0.8e6,
		LibSizeMax:      1.2e6,
		NShifted:        50,
		FoldChange:      2.0,
	}
}

// Dataset bundles the generated matrix with its ground truth
type Dataset struct {
	Matrix  *expr.CountMatrix
	Samples *expr.SampleTable

	// ShiftedUp and ShiftedDown list the row indices carrying a true
	// fold-change, by direction.
	ShiftedUp   []int
	ShiftedDown []int
}

// Generate produces a two-group dataset with the configured number of truly
// shifted features. Group labels live in the "group" covariate column with
// levels "control" and "treated"; shifted features change in the treated
// group only.
func Generate(cfg Config) (*Dataset, error) {
	if cfg.Features <= 0 || cfg.SamplesPerGroup <= 0 {
		return nil, core.InvalidInput("features and samples per group must be positive")
	}
	if cfg.NShifted > cfg.Features {
		return nil, core.InvalidInput("cannot shift more features than exist")
	}
	if cfg.FoldChange <= 0 {
		return nil, core.InvalidInput("fold change must be positive")
	}

	src := rand.NewSource(uint64(cfg.Seed))
	rng := rand.New(src)
	n := 2 * cfg.SamplesPerGroup

	baseline := make([]float64, cfg.Features)
	for i := range baseline {
		baseline[i] = math.Exp(cfg.MeanLogExpr + cfg.SDLogExpr*rng.NormFloat64())
	}

	libSizes := make([]float64, n)
	for j := range libSizes {
		libSizes[j] = cfg.LibSizeMin + rng.Float64()*(cfg.LibSizeMax-cfg.LibSizeMin)
	}

	var totalBaseline float64
	for _, b := range baseline {
		totalBaseline += b
	}

	ds := &Dataset{}
	features := make([]core.FeatureID, cfg.Features)
	counts := make([][]float64, cfg.Features)
	for i := 0; i < cfg.Features; i++ {
		features[i] = core.FeatureID(fmt.Sprintf("gene%04d", i+1))

		fold := 1.0
		if i < cfg.NShifted {
			if i%2 == 0 {
				fold = cfg.FoldChange
				ds.ShiftedUp = append(ds.ShiftedUp, i)
			} else {
				fold = 1 / cfg.FoldChange
				ds.ShiftedDown = append(ds.ShiftedDown, i)
			}
		}

		row := make([]float64, n)
		for j := 0; j < n; j++ {
			mu := baseline[i] / totalBaseline * libSizes[j]
			if j >= cfg.SamplesPerGroup {
				mu *= fold
			}
			row[j] = nbDraw(rng, mu, cfg.Dispersion)
		}
		counts[i] = row
	}

	samples := make([]core.SampleID, n)
	groups := make([]string, n)
	for j := 0; j < n; j++ {
		if j < cfg.SamplesPerGroup {
			samples[j] = core.SampleID(fmt.Sprintf("ctrl%d", j+1))
			groups[j] = "control"
		} else {
			samples[j] = core.SampleID(fmt.Sprintf("trt%d", j-cfg.SamplesPerGroup+1))
			groups[j] = "treated"
		}
	}

	m, err := expr.NewCountMatrix(features, samples, counts)
	if err != nil {
		return nil, err
	}
	t, err := expr.NewSampleTable(samples, []string{"group"}, map[string][]string{"group": groups})
	if err != nil {
		return nil, err
	}
	ds.Matrix = m
	ds.Samples = t
	return ds, nil
}

// nbDraw samples a negative-binomial count with mean mu and the given
// dispersion, as a gamma-Poisson mixture. Zero dispersion degrades to plain
// Poisson.
func nbDraw(rng *rand.Rand, mu, dispersion float64) float64 {
	if mu <= 0 {
		return 0
	}
	lambda := mu
	if dispersion > 0 {
		shape := 1 / dispersion
		g := distuv.Gamma{Alpha: shape, Beta: shape, Src: rng}
		lambda = mu * g.Rand()
	}
	return poissonDraw(rng, lambda)
}

// poissonDraw uses inversion for small means and the normal approximation for
// large ones, where inversion would loop excessively.
func poissonDraw(rng *rand.Rand, lambda float64) float64 {
	if lambda <= 0 {
		return 0
	}
	if lambda > 500 {
		v := math.Round(lambda + math.Sqrt(lambda)*rng.NormFloat64())
		if v < 0 {
			return 0
		}
		return v
	}
	l := math.Exp(-lambda)
	k := 0.0
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

// GeneSetFromRows builds a named set from matrix row indices, for tests that
// need sets with known composition.
func GeneSetFromRows(name string, m *expr.CountMatrix, rows []int) expr.GeneSet {
	members := make([]core.FeatureID, 0, len(rows))
	for _, r := range rows {
		members = append(members, m.Features[r])
	}
	return expr.GeneSet{Name: core.SetName(name), Members: members}
}
