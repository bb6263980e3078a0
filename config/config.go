// Package config holds the explicit configuration passed into the training
// pipeline, the trainer and the inference adapter.
//
// A Config starts from Default, is optionally overlaid with a YAML file (Load)
// and EXAMSCORE_* environment variables (ApplyEnv), and must pass Validate
// before use. Nothing in the module reads paths or thresholds from globals.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/pkg/log"
)

// File names inside ArtifactDir.
const (
	PreprocessorFile = "preprocessor.gob"
	ModelFile        = "model.gob"
	TrainFile        = "train.csv"
	TestFile         = "test.csv"
	RawFile          = "data.csv"
	HistoryFile      = "history.db"
	ChartFile        = "report.png"
)

// Config is the complete run configuration.
type Config struct {
	// DataPath is the input CSV with the seven feature columns and math_score.
	DataPath string `yaml:"data_path"`
	// ArtifactDir receives the splits, both artifacts and the optional extras.
	ArtifactDir string `yaml:"artifact_dir"`

	TestSize            float64 `yaml:"test_size"`
	RandomSeed          uint64  `yaml:"random_seed"`
	CVFolds             int     `yaml:"cv_folds"`
	AcceptanceThreshold float64 `yaml:"acceptance_threshold"`
	// NJobs bounds the grid-search worker pool; 0 means one worker per CPU.
	NJobs int `yaml:"n_jobs"`

	LogLevel string `yaml:"log_level"`

	// History records every run in a SQLite ledger under ArtifactDir.
	History bool `yaml:"history"`
	// ReportChart renders the Selection Report as a PNG bar chart.
	ReportChart bool `yaml:"report_chart"`

	ServerAddr string `yaml:"server_addr"`
}

// Default returns the configuration of the reference training run.
func Default() *Config {
	return &Config{
		DataPath:            filepath.Join("notebook", "data", "stud.csv"),
		ArtifactDir:         "artifact",
		TestSize:            0.2,
		RandomSeed:          42,
		CVFolds:             3,
		AcceptanceThreshold: 0.6,
		NJobs:               0,
		LogLevel:            "info",
		History:             true,
		ReportChart:         false,
		ServerAddr:          ":8080",
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, esErrors.Wrapf(err, "config: read %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default. Empty input yields Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, esErrors.Wrap(err, "config: decode yaml")
	}
	return cfg, nil
}

// ApplyEnv overlays EXAMSCORE_* environment variables. Malformed numbers are
// reported rather than ignored.
func (c *Config) ApplyEnv() error {
	c.DataPath = getEnv("EXAMSCORE_DATA_PATH", c.DataPath)
	c.ArtifactDir = getEnv("EXAMSCORE_ARTIFACT_DIR", c.ArtifactDir)
	c.LogLevel = getEnv("EXAMSCORE_LOG_LEVEL", c.LogLevel)
	c.ServerAddr = getEnv("EXAMSCORE_SERVER_ADDR", c.ServerAddr)

	var err error
	if c.TestSize, err = getEnvAsFloat("EXAMSCORE_TEST_SIZE", c.TestSize); err != nil {
		return err
	}
	if c.AcceptanceThreshold, err = getEnvAsFloat("EXAMSCORE_ACCEPTANCE_THRESHOLD", c.AcceptanceThreshold); err != nil {
		return err
	}
	if c.CVFolds, err = getEnvAsInt("EXAMSCORE_CV_FOLDS", c.CVFolds); err != nil {
		return err
	}
	if c.NJobs, err = getEnvAsInt("EXAMSCORE_N_JOBS", c.NJobs); err != nil {
		return err
	}
	seed, err := getEnvAsInt("EXAMSCORE_RANDOM_SEED", int(c.RandomSeed))
	if err != nil {
		return err
	}
	if seed < 0 {
		return esErrors.NewValidationError("EXAMSCORE_RANDOM_SEED", "must be non-negative", seed)
	}
	c.RandomSeed = uint64(seed)
	if c.History, err = getEnvAsBool("EXAMSCORE_HISTORY", c.History); err != nil {
		return err
	}
	if c.ReportChart, err = getEnvAsBool("EXAMSCORE_REPORT_CHART", c.ReportChart); err != nil {
		return err
	}
	return nil
}

// Validate checks ranges and the log level.
func (c *Config) Validate() error {
	switch {
	case c.DataPath == "":
		return esErrors.NewValidationError("data_path", "must not be empty", c.DataPath)
	case c.ArtifactDir == "":
		return esErrors.NewValidationError("artifact_dir", "must not be empty", c.ArtifactDir)
	case c.TestSize <= 0 || c.TestSize >= 1:
		return esErrors.NewValidationError("test_size", "must be in (0, 1)", c.TestSize)
	case c.CVFolds < 2:
		return esErrors.NewValidationError("cv_folds", "must be at least 2", c.CVFolds)
	case c.NJobs < 0:
		return esErrors.NewValidationError("n_jobs", "must be >= 0", c.NJobs)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// WithArtifactDir returns a copy writing artifacts to dir.
func (c *Config) WithArtifactDir(dir string) *Config {
	cp := *c
	cp.ArtifactDir = dir
	return &cp
}

// PreprocessorPath is the path of the fitted transformer artifact.
func (c *Config) PreprocessorPath() string { return filepath.Join(c.ArtifactDir, PreprocessorFile) }

// ModelPath is the path of the winning model artifact.
func (c *Config) ModelPath() string { return filepath.Join(c.ArtifactDir, ModelFile) }

// TrainPath is the path of the train split CSV.
func (c *Config) TrainPath() string { return filepath.Join(c.ArtifactDir, TrainFile) }

// TestPath is the path of the test split CSV.
func (c *Config) TestPath() string { return filepath.Join(c.ArtifactDir, TestFile) }

// RawPath is the path of the raw copy of the input CSV.
func (c *Config) RawPath() string { return filepath.Join(c.ArtifactDir, RawFile) }

// HistoryPath is the path of the SQLite run ledger.
func (c *Config) HistoryPath() string { return filepath.Join(c.ArtifactDir, HistoryFile) }

// ChartPath is the path of the report chart.
func (c *Config) ChartPath() string { return filepath.Join(c.ArtifactDir, ChartFile) }

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue, esErrors.NewValidationError(key, "must be an integer", valueStr)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue, esErrors.NewValidationError(key, "must be a number", valueStr)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue, esErrors.NewValidationError(key, "must be a boolean", valueStr)
	}
	return value, nil
}
