package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "climeval.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "ycon", cfg.Regrid().Method)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
areas_dir: /scratch/areas
weights_dir: /scratch/weights
cdo_options: ["--force", "-P", "4"]
default_method: bil
extrapolate: true
`)
	t.Setenv(EnvWeightsDir, "/fast/weights")
	t.Setenv(EnvRebuild, "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/scratch/areas", cfg.AreasDir)
	assert.Equal(t, "/fast/weights", cfg.WeightsDir)
	assert.True(t, cfg.Rebuild)

	opts := cfg.CDO()
	assert.Equal(t, []string{"--force", "-P", "4"}, opts.GlobalFlags)
	assert.True(t, opts.Extrapolate)
	assert.Equal(t, "bil", cfg.Regrid().Method)
	assert.True(t, cfg.Regrid().Rebuild)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "areas_dir: \"\"\n"))
	assert.ErrorContains(t, err, "AreasDir")

	t.Setenv(EnvRebuild, "sometimes")
	_, err = Load("")
	assert.ErrorContains(t, err, EnvRebuild)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
