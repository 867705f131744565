package config

import (
	"os"
	"runtime"
	"strconv"

	"godex/domain/core"
)

// Config represents the complete application configuration. Every field has a
// sensible default; environment variables override defaults and CLI flags
// override both.
type Config struct {
	Filter  FilterConfig
	Norm    NormConfig
	Enrich  EnrichConfig
	Output  OutputConfig
	Seed    int64
	Workers int
}

// FilterConfig holds expression-filter settings
type FilterConfig struct {
	MinCPM     float64
	MinSamples int
}

// NormConfig holds normalization settings
type NormConfig struct {
	Method string
}

// EnrichConfig holds enrichment-test settings
type EnrichConfig struct {
	Rotations    int
	SetStat      string
	AdjustMethod string
	InterGeneCor string // numeric string or "estimate"
}

// OutputConfig holds result-writer settings
type OutputConfig struct {
	Dir      string
	Xlsx     bool
	Markdown bool
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Filter: FilterConfig{
			MinCPM:     getEnvFloatOrDefault("GODEX_MIN_CPM", 1.0),
			MinSamples: getEnvIntOrDefault("GODEX_MIN_SAMPLES", 3),
		},
		Norm: NormConfig{
			Method: getEnvOrDefault("GODEX_NORM_METHOD", "tmm"),
		},
		Enrich: EnrichConfig{
			Rotations:    getEnvIntOrDefault("GODEX_ROTATIONS", 9999),
			SetStat:      getEnvOrDefault("GODEX_SET_STAT", "mean"),
			AdjustMethod: getEnvOrDefault("GODEX_ADJUST", "BH"),
			InterGeneCor: getEnvOrDefault("GODEX_INTER_GENE_COR", "0.01"),
		},
		Output: OutputConfig{
			Dir:      getEnvOrDefault("GODEX_OUT_DIR", "results"),
			Xlsx:     getEnvBoolOrDefault("GODEX_XLSX", false),
			Markdown: getEnvBoolOrDefault("GODEX_MARKDOWN", true),
		},
		Seed:    int64(getEnvIntOrDefault("GODEX_SEED", 42)),
		Workers: getEnvIntOrDefault("GODEX_WORKERS", runtime.NumCPU()),
	}

	if err := validate(cfg); err != nil {
		return nil, core.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Filter.MinCPM < 0 {
		return core.ConfigInvalid("minimum CPM must be non-negative")
	}
	if cfg.Filter.MinSamples < 1 {
		return core.ConfigInvalid("minimum qualifying samples must be at least 1")
	}
	if cfg.Enrich.Rotations < 99 {
		return core.ConfigInvalid("rotation count must be at least 99")
	}
	if cfg.Workers < 1 {
		return core.ConfigInvalid("worker count must be at least 1")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
