// Package config loads the regridding configuration from an optional YAML
// file and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"go.ngs.io/climeval/internal/adapter/cdo"
	"go.ngs.io/climeval/internal/regrid"
)

var validate = validator.New()

// Environment variables. They take precedence over the YAML file.
const (
	EnvAreasDir        = "CLIMEVAL_AREAS_DIR"
	EnvWeightsDir      = "CLIMEVAL_WEIGHTS_DIR"
	EnvTmpDir          = "CLIMEVAL_TMP_DIR"
	EnvGridDownloadDir = "CLIMEVAL_GRID_DOWNLOAD_DIR"
	EnvIconGridsDir    = "CLIMEVAL_ICON_GRIDS_DIR"
	EnvCDO             = "CLIMEVAL_CDO"
	EnvGridsFile       = "CLIMEVAL_GRIDS_FILE"
	EnvRebuild         = "CLIMEVAL_REBUILD"
	EnvExtrapolate     = "CLIMEVAL_EXTRAPOLATE"
)

// Config holds the regridding settings.
type Config struct {
	AreasDir        string   `yaml:"areas_dir" validate:"required"`
	WeightsDir      string   `yaml:"weights_dir" validate:"required"`
	TmpDir          string   `yaml:"tmp_dir"`
	GridDownloadDir string   `yaml:"grid_download_dir"`
	IconGridsDir    string   `yaml:"icon_grids_dir"`
	CDOBinary       string   `yaml:"cdo" validate:"required"`
	CDOOptions      []string `yaml:"cdo_options" validate:"dive,required"`
	DefaultMethod   string   `yaml:"default_method" validate:"required,alphanum"`
	Extrapolate     bool     `yaml:"extrapolate"`
	Rebuild         bool     `yaml:"rebuild"`
	GridsFile       string   `yaml:"grids_file"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		AreasDir:      "./data/areas",
		WeightsDir:    "./data/weights",
		CDOBinary:     "cdo",
		DefaultMethod: cdo.DefaultMethod,
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.AreasDir = getEnv(EnvAreasDir, cfg.AreasDir)
	cfg.WeightsDir = getEnv(EnvWeightsDir, cfg.WeightsDir)
	cfg.TmpDir = getEnv(EnvTmpDir, cfg.TmpDir)
	cfg.GridDownloadDir = getEnv(EnvGridDownloadDir, cfg.GridDownloadDir)
	cfg.IconGridsDir = getEnv(EnvIconGridsDir, cfg.IconGridsDir)
	cfg.CDOBinary = getEnv(EnvCDO, cfg.CDOBinary)
	cfg.GridsFile = getEnv(EnvGridsFile, cfg.GridsFile)

	var err error
	if cfg.Rebuild, err = getEnvBool(EnvRebuild, cfg.Rebuild); err != nil {
		return Config{}, err
	}
	if cfg.Extrapolate, err = getEnvBool(EnvExtrapolate, cfg.Extrapolate); err != nil {
		return Config{}, err
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Regrid returns the options shared by the area and weight managers.
func (c Config) Regrid() regrid.Options {
	return regrid.Options{
		AreasDir:   c.AreasDir,
		WeightsDir: c.WeightsDir,
		TmpDir:     c.TmpDir,
		Method:     c.DefaultMethod,
		Rebuild:    c.Rebuild,
	}
}

// CDO returns the generator options.
func (c Config) CDO() cdo.Options {
	return cdo.Options{
		Binary:       c.CDOBinary,
		GlobalFlags:  c.CDOOptions,
		DownloadDir:  c.GridDownloadDir,
		IconGridsDir: c.IconGridsDir,
		Extrapolate:  c.Extrapolate,
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
	return b, nil
}
