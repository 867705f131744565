package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"godex/adapters/report"
	"godex/app"
	"godex/internal"
	"godex/internal/config"
	"godex/internal/design"
	"godex/internal/testkit"
)

func main() {
	// .env is optional; environment and flags win over it.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "godex",
		Short: "Differential expression and gene-set enrichment for bulk RNA-seq counts",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newSimulateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var (
		countsPath  string
		samplesPath string
		setPaths    []string
		factorSpecs []string
		coefficient string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full analysis pipeline on delimited input files",
		Long: `Run the pipeline: load counts and sample annotations, filter low-expression
features, compute normalization factors, fit a moderated linear model, and test
the supplied gene sets with both the competitive and the rotation test.

Example:
  godex run --counts counts.tsv.gz --samples samples.tsv \
    --factor population=pop1,pop2 --factor temperature=13,19 \
    --coef temperature19 --set immune_response.tsv --set heat_shock.tsv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			factors, err := parseFactors(factorSpecs)
			if err != nil {
				return err
			}

			svc := app.NewPipelineService(internal.DefaultLogger)
			result, err := svc.Run(cmd.Context(), app.PipelineRequest{
				CountsPath:   countsPath,
				SamplesPath:  samplesPath,
				GeneSetPaths: setPaths,
				Factors:      factors,
				Coefficient:  coefficient,
				Config:       cfg,
			})
			if err != nil {
				return err
			}

			return writeOutputs(cfg, result)
		},
	}

	cmd.Flags().StringVar(&countsPath, "counts", "", "count matrix file (tab-delimited, .gz accepted)")
	cmd.Flags().StringVar(&samplesPath, "samples", "", "sample annotation file")
	cmd.Flags().StringArrayVar(&setPaths, "set", nil, "gene-set membership file (repeatable)")
	cmd.Flags().StringArrayVar(&factorSpecs, "factor", nil, "factor as column=level1,level2 with the reference level first (repeatable)")
	cmd.Flags().StringVar(&coefficient, "coef", "", "design coefficient to test (default: last column)")
	_ = cmd.MarkFlagRequired("counts")
	_ = cmd.MarkFlagRequired("samples")

	return cmd
}

func newSimulateCmd() *cobra.Command {
	var (
		outDir   string
		features int
		perGroup int
		shifted  int
		fold     float64
		seed     int64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate a synthetic dataset with known shifted gene sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := testkit.DefaultConfig()
			cfg.Features = features
			cfg.SamplesPerGroup = perGroup
			cfg.NShifted = shifted
			cfg.FoldChange = fold
			cfg.Seed = seed

			ds, err := testkit.Generate(cfg)
			if err != nil {
				return err
			}
			countsPath, samplesPath, setPaths, err := testkit.WriteDataset(outDir, ds)
			if err != nil {
				return err
			}
			internal.DefaultLogger.Info("wrote %s, %s and %d gene-set files", countsPath, samplesPath, len(setPaths))
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "simulated", "output directory")
	cmd.Flags().IntVar(&features, "features", 1000, "number of features")
	cmd.Flags().IntVar(&perGroup, "per-group", 6, "samples per group")
	cmd.Flags().IntVar(&shifted, "shifted", 50, "number of truly shifted features")
	cmd.Flags().Float64Var(&fold, "fold", 2.0, "fold change applied to shifted features")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")

	return cmd
}

// parseFactors interprets repeated column=level1,level2 specifications. The
// first listed level becomes the reference level.
func parseFactors(specs []string) ([]design.FactorSpec, error) {
	factors := make([]design.FactorSpec, 0, len(specs))
	for _, spec := range specs {
		col, levels, ok := strings.Cut(spec, "=")
		if !ok || col == "" {
			return nil, fmt.Errorf("invalid factor %q, expected column=level1,level2", spec)
		}
		f := design.FactorSpec{Column: col}
		if levels != "" {
			f.Levels = strings.Split(levels, ",")
		}
		factors = append(factors, f)
	}
	return factors, nil
}

func writeOutputs(cfg *config.Config, result *app.PipelineResult) error {
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return err
	}

	tables := []report.Table{report.DETable(result.TopTable)}
	if result.Camera != nil {
		tables = append(tables, report.CameraTable(result.Camera))
	}
	if result.Roast != nil {
		tables = append(tables, report.RoastTable(result.Roast))
	}

	for _, t := range tables {
		if err := report.WriteTSV(filepath.Join(cfg.Output.Dir, t.Name+".tsv"), t); err != nil {
			return err
		}
	}
	if err := report.WriteManifest(filepath.Join(cfg.Output.Dir, "manifest.json"), result.Manifest); err != nil {
		return err
	}
	if cfg.Output.Markdown {
		if err := report.WriteSummary(filepath.Join(cfg.Output.Dir, "summary.md"), result.Manifest, true, tables...); err != nil {
			return err
		}
	}
	if cfg.Output.Xlsx {
		if err := report.WriteWorkbook(filepath.Join(cfg.Output.Dir, "results.xlsx"), tables...); err != nil {
			return err
		}
	}
	internal.DefaultLogger.Info("results written to %s", cfg.Output.Dir)
	return nil
}
