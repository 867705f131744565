package run

import (
	"godex/domain/core"
)

// Manifest captures the complete specification and outcome of one pipeline
// run: inputs, parameters, the random seed, and per-stage accounting. It is
// written next to the result tables so a run can be audited and repeated.
type Manifest struct {
	RunID core.RunID `json:"run_id"`
	Seed  int64      `json:"seed"`

	CountsPath   string   `json:"counts_path"`
	SamplesPath  string   `json:"samples_path"`
	GeneSetPaths []string `json:"gene_set_paths,omitempty"`

	Parameters Parameters `json:"parameters"`

	FeaturesLoaded int `json:"features_loaded"`
	FeaturesKept   int `json:"features_kept"`
	Samples        int `json:"samples"`
	Coefficients   int `json:"coefficients"`
	SetsTested     int `json:"sets_tested"`
	EmptySets      int `json:"empty_sets"`

	StageTimings map[string]int64 `json:"stage_timings_ms"`

	StartedAt  core.Timestamp `json:"started_at"`
	FinishedAt core.Timestamp `json:"finished_at"`
}

// Parameters records the user-facing knobs of a run
type Parameters struct {
	MinCPM       float64 `json:"min_cpm"`
	MinSamples   int     `json:"min_samples"`
	NormMethod   string  `json:"norm_method"`
	Coefficient  string  `json:"coefficient"`
	SetStat      string  `json:"set_stat"`
	Rotations    int     `json:"rotations"`
	AdjustMethod string  `json:"adjust_method"`
	InterGeneCor string  `json:"inter_gene_cor"` // fixed value or "estimate"
	Workers      int     `json:"workers"`
}

// NewManifest creates a manifest for a starting run
func NewManifest(seed int64, params Parameters) *Manifest {
	return &Manifest{
		RunID:        core.RunID(core.NewID()),
		Seed:         seed,
		Parameters:   params,
		StageTimings: make(map[string]int64),
		StartedAt:    core.Now(),
	}
}

// RecordStage stores a stage's wall-clock duration in milliseconds
func (m *Manifest) RecordStage(name string, ms int64) {
	m.StageTimings[name] = ms
}

// Finish stamps the completion time
func (m *Manifest) Finish() {
	m.FinishedAt = core.Now()
}
