// Package config carries the tunables of an ingestion run. Values resolve
// in three layers: named defaults, an optional YAML file, then
// EMMCINGEST_* environment overrides. Thresholds are calibration for
// JEDEC-style documents; the mechanisms they feed are fixed.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Named threshold defaults.
const (
	DefaultFlushTokens     = 800
	DefaultRegisterCeiling = 1200
	DefaultTableSplitChars = 6000
	DefaultContinuationTol = 5.0
	DefaultCaptionWindow   = 40.0
	DefaultCenterTol       = 2.0
)

type Config struct {
	// Prose high-water mark, in estimated tokens.
	FlushTokens int `yaml:"flush_tokens"`
	// Hard ceiling past which a register block splits at bit-field
	// boundaries.
	RegisterCeiling int `yaml:"register_ceiling"`
	// Serialized-table size bound before row-group splitting, in chars.
	TableSplitChars int `yaml:"table_split_chars"`
	// Edge alignment tolerance for cross-page table continuation, points.
	ContinuationTol float64 `yaml:"continuation_tol"`
	// Caption search distance above or below a region, points.
	CaptionWindow float64 `yaml:"caption_window"`
	// Classifier center-in-box tolerance, points.
	CenterTol float64 `yaml:"center_tol"`

	// Page extraction workers. Zero picks min(GOMAXPROCS, 4) at run time.
	Workers int `yaml:"workers"`
	// Page cap for calibration runs. Zero means the whole document.
	MaxPages int `yaml:"max_pages"`

	// Where chunk and glossary files are written.
	OutDir string `yaml:"out_dir"`
	// Where the ingest catalog lives.
	DataDir string `yaml:"data_dir"`

	Verbose bool `yaml:"verbose"`
}

var (
	ErrBadThreshold = errors.New("chunking thresholds must be positive")
	ErrBadTolerance = errors.New("tolerances cannot be negative")
	ErrBadWorkers   = errors.New("worker count cannot be negative")
	ErrBadPageCap   = errors.New("page cap cannot be negative")
)

// Default returns the calibrated defaults with the platform data directory.
func Default() Config {
	return Config{
		FlushTokens:     DefaultFlushTokens,
		RegisterCeiling: DefaultRegisterCeiling,
		TableSplitChars: DefaultTableSplitChars,
		ContinuationTol: DefaultContinuationTol,
		CaptionWindow:   DefaultCaptionWindow,
		CenterTol:       DefaultCenterTol,
		OutDir:          ".",
		DataDir:         filepath.Join(xdg.DataHome, "emmcingest"),
	}
}

// Load resolves the configuration: defaults, then the YAML file when path
// is non-empty, then environment overrides. A missing file is an error
// only when it was asked for explicitly.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.FlushTokens = envInt("EMMCINGEST_FLUSH_TOKENS", c.FlushTokens)
	c.RegisterCeiling = envInt("EMMCINGEST_REGISTER_CEILING", c.RegisterCeiling)
	c.TableSplitChars = envInt("EMMCINGEST_TABLE_SPLIT_CHARS", c.TableSplitChars)
	c.ContinuationTol = envFloat("EMMCINGEST_CONTINUATION_TOL", c.ContinuationTol)
	c.CaptionWindow = envFloat("EMMCINGEST_CAPTION_WINDOW", c.CaptionWindow)
	c.CenterTol = envFloat("EMMCINGEST_CENTER_TOL", c.CenterTol)
	c.Workers = envInt("EMMCINGEST_WORKERS", c.Workers)
	c.MaxPages = envInt("EMMCINGEST_MAX_PAGES", c.MaxPages)
	c.OutDir = envOr("EMMCINGEST_OUT_DIR", c.OutDir)
	c.DataDir = envOr("EMMCINGEST_DATA_DIR", c.DataDir)
	c.Verbose = envBool("EMMCINGEST_VERBOSE", c.Verbose)
}

// Validate returns the first violated constraint.
func (c Config) Validate() error {
	if c.FlushTokens <= 0 || c.RegisterCeiling <= 0 || c.TableSplitChars <= 0 {
		return ErrBadThreshold
	}
	if c.ContinuationTol < 0 || c.CaptionWindow < 0 || c.CenterTol < 0 {
		return ErrBadTolerance
	}
	if c.Workers < 0 {
		return ErrBadWorkers
	}
	if c.MaxPages < 0 {
		return ErrBadPageCap
	}
	return nil
}

// CatalogPath is the SQLite catalog location under the data directory.
func (c Config) CatalogPath() string {
	return filepath.Join(c.DataDir, "ingest.db")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
