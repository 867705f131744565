package config

import (
	"testing"

	"godex/domain/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Filter.MinCPM != 1.0 || cfg.Filter.MinSamples != 3 {
		t.Errorf("filter defaults %+v", cfg.Filter)
	}
	if cfg.Norm.Method != "tmm" {
		t.Errorf("norm default %q", cfg.Norm.Method)
	}
	if cfg.Enrich.Rotations != 9999 || cfg.Enrich.AdjustMethod != "BH" {
		t.Errorf("enrich defaults %+v", cfg.Enrich)
	}
	if cfg.Workers < 1 {
		t.Errorf("workers = %d", cfg.Workers)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GODEX_MIN_CPM", "2.5")
	t.Setenv("GODEX_ROTATIONS", "1999")
	t.Setenv("GODEX_NORM_METHOD", "rle")
	t.Setenv("GODEX_XLSX", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Filter.MinCPM != 2.5 {
		t.Errorf("MinCPM = %g", cfg.Filter.MinCPM)
	}
	if cfg.Enrich.Rotations != 1999 {
		t.Errorf("Rotations = %d", cfg.Enrich.Rotations)
	}
	if cfg.Norm.Method != "rle" {
		t.Errorf("Method = %q", cfg.Norm.Method)
	}
	if !cfg.Output.Xlsx {
		t.Error("Xlsx override lost")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("GODEX_ROTATIONS", "10")

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error for too few rotations")
	}
	if !core.HasCode(err, core.CodeConfigInvalid) {
		t.Fatalf("expected CONFIG_INVALID, got %v", err)
	}
}
