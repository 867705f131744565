// Package app wires the pipeline stages into one auditable run: load, filter,
// normalize, design, fit, index, enrich.
package app

import (
	"context"
	"strconv"
	"time"

	"godex/adapters/delim"
	"godex/domain/core"
	"godex/domain/expr"
	"godex/domain/run"
	"godex/internal"
	"godex/internal/config"
	"godex/internal/design"
	"godex/internal/enrich"
	"godex/internal/filter"
	"godex/internal/fit"
	"godex/internal/geneset"
	"godex/internal/norm"
)

// PipelineRequest defines the inputs for one analysis run
type PipelineRequest struct {
	CountsPath   string
	SamplesPath  string
	GeneSetPaths []string

	// Factors defaults to every sample-table column with levels in
	// first-appearance order when empty.
	Factors []design.FactorSpec

	// Coefficient names the design column to test
	Coefficient string

	Config *config.Config
}

// PipelineResult contains the complete output of a run
type PipelineResult struct {
	Manifest *run.Manifest
	Fit      *fit.Result
	TopTable []expr.DEResult
	Camera   []expr.CameraResult
	Roast    []expr.RoastResult
}

// PipelineService executes analysis runs
type PipelineService struct {
	logger *internal.Logger
}

// NewPipelineService creates a pipeline service
func NewPipelineService(logger *internal.Logger) *PipelineService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &PipelineService{logger: logger}
}

// Run executes the full pipeline. Stages run strictly in sequence; a fatal
// error at any stage aborts the run, since every downstream result would be
// invalid.
func (s *PipelineService) Run(ctx context.Context, req PipelineRequest) (*PipelineResult, error) {
	cfg := req.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	normMethod, err := expr.ParseNormMethod(cfg.Norm.Method)
	if err != nil {
		return nil, err
	}
	setStat, err := expr.ParseSetStat(cfg.Enrich.SetStat)
	if err != nil {
		return nil, err
	}
	adjMethod, err := expr.ParseAdjustMethod(cfg.Enrich.AdjustMethod)
	if err != nil {
		return nil, err
	}
	cor, err := parseInterGeneCor(cfg.Enrich.InterGeneCor)
	if err != nil {
		return nil, err
	}

	manifest := run.NewManifest(cfg.Seed, run.Parameters{
		MinCPM:       cfg.Filter.MinCPM,
		MinSamples:   cfg.Filter.MinSamples,
		NormMethod:   cfg.Norm.Method,
		Coefficient:  req.Coefficient,
		SetStat:      cfg.Enrich.SetStat,
		Rotations:    cfg.Enrich.Rotations,
		AdjustMethod: cfg.Enrich.AdjustMethod,
		InterGeneCor: cfg.Enrich.InterGeneCor,
		Workers:      cfg.Workers,
	})
	manifest.CountsPath = req.CountsPath
	manifest.SamplesPath = req.SamplesPath
	manifest.GeneSetPaths = req.GeneSetPaths

	result := &PipelineResult{Manifest: manifest}

	var raw *expr.CountMatrix
	var table *expr.SampleTable
	err = s.timed(manifest, "load", func() error {
		raw, err = delim.LoadCountMatrix(req.CountsPath)
		if err != nil {
			return err
		}
		table, err = delim.LoadSampleTable(req.SamplesPath)
		if err != nil {
			return err
		}
		table, err = delim.AlignSamples(table, raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	manifest.FeaturesLoaded = raw.NFeatures()
	manifest.Samples = raw.NSamples()
	s.logger.Info("loaded %d features x %d samples", raw.NFeatures(), raw.NSamples())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var filtered *expr.CountMatrix
	err = s.timed(manifest, "filter", func() error {
		filtered, err = filter.Apply(raw, filter.Options{
			MinCPM:     cfg.Filter.MinCPM,
			MinSamples: cfg.Filter.MinSamples,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	manifest.FeaturesKept = filtered.NFeatures()
	s.logger.Info("filter kept %d of %d features", filtered.NFeatures(), raw.NFeatures())

	var normalized *expr.CountMatrix
	err = s.timed(manifest, "normalize", func() error {
		opts := norm.DefaultOptions()
		opts.Method = normMethod
		normalized, err = norm.Normalize(filtered, opts)
		return err
	})
	if err != nil {
		return nil, err
	}

	factors := req.Factors
	if len(factors) == 0 {
		factors = DefaultFactors(table)
	}
	var d *design.Matrix
	err = s.timed(manifest, "design", func() error {
		d, err = design.Build(table, factors)
		return err
	})
	if err != nil {
		return nil, err
	}
	manifest.Coefficients = d.NCols()

	coef := req.Coefficient
	if coef == "" {
		// Default to the last design column, the highest-order effect.
		coef = d.ColNames[d.NCols()-1]
		manifest.Parameters.Coefficient = coef
	}
	if _, err := d.CoefIndex(coef); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var fitted *fit.Result
	err = s.timed(manifest, "fit", func() error {
		fitted, err = fit.Fit(normalized, d, fit.Options{Workers: cfg.Workers})
		return err
	})
	if err != nil {
		return nil, err
	}
	result.Fit = fitted
	s.logger.Info("fit complete: prior df %.2f, prior variance %.4f", fitted.DFPrior, fitted.S2Prior)

	err = s.timed(manifest, "toptable", func() error {
		result.TopTable, err = fitted.TopTable(coef, adjMethod)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(req.GeneSetPaths) == 0 {
		manifest.Finish()
		return result, nil
	}

	var indices []expr.SetIndex
	err = s.timed(manifest, "index", func() error {
		sets, err := delim.LoadGeneSets(req.GeneSetPaths)
		if err != nil {
			return err
		}
		indices = geneset.IndexAll(sets, normalized)
		return nil
	})
	if err != nil {
		return nil, err
	}
	manifest.SetsTested = len(indices)
	for _, idx := range indices {
		if idx.IsEmpty() {
			manifest.EmptySets++
			s.logger.Warn("gene set %q matched no features; it will be reported as NA", idx.Name)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = s.timed(manifest, "camera", func() error {
		result.Camera, err = enrich.Competitive(fitted, coef, indices, cor, adjMethod)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = s.timed(manifest, "roast", func() error {
		result.Roast, err = enrich.Rotation(fitted, coef, indices, enrich.RotationOptions{
			Rotations: cfg.Enrich.Rotations,
			Stat:      setStat,
			Adjust:    adjMethod,
			Seed:      cfg.Seed,
			Workers:   cfg.Workers,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	manifest.Finish()
	s.logger.Info("run %s complete", manifest.RunID)
	return result, nil
}

// timed runs one stage and records its wall-clock duration
func (s *PipelineService) timed(m *run.Manifest, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.RecordStage(name, time.Since(start).Milliseconds())
	if err != nil {
		s.logger.Error("stage %s failed: %v", name, err)
	} else {
		s.logger.Debug("stage %s finished in %d ms", name, m.StageTimings[name])
	}
	return err
}

// DefaultFactors derives a factor specification from every sample-table
// column, levels in first-appearance order.
func DefaultFactors(table *expr.SampleTable) []design.FactorSpec {
	specs := make([]design.FactorSpec, 0, len(table.Columns))
	for _, col := range table.Columns {
		specs = append(specs, design.FactorSpec{Column: col, Levels: table.Levels(col)})
	}
	return specs
}

// parseInterGeneCor interprets the config string: "estimate" requests per-set
// estimation, anything else must be a fixed correlation in [0, 1).
func parseInterGeneCor(s string) (expr.InterGeneCor, error) {
	if s == "estimate" {
		return expr.EstimateCor(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return expr.InterGeneCor{}, core.ConfigInvalid("inter-gene correlation must be a number or \"estimate\"")
	}
	if v < 0 || v >= 1 {
		return expr.InterGeneCor{}, core.ConfigInvalid("inter-gene correlation must be in [0, 1)")
	}
	return expr.FixedCor(v), nil
}
