package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "gateway:\n  base_url: http://gw.local\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://gw.local", cfg.Gateway.BaseURL)
	assert.Equal(t, 5, cfg.Retry.LocalMax)
	assert.Equal(t, 100, cfg.Retry.GlobalMax)
	assert.Equal(t, 30*time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, "FLAC", cfg.Download.Quality)
	assert.True(t, cfg.Download.AllowCascade)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7}, cfg.BlockIV())
}

func TestLoadReadsDurationsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
gateway:
  base_url: http://gw.local
retry:
  local_max: 3
  global_max: 10
  initial_delay: 2s
  increment: 500ms
download:
  concurrency: 0
  allow_cascade: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Retry.LocalMax)
	assert.Equal(t, 2*time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Increment)
	assert.Equal(t, 1, cfg.Download.Concurrency)
	assert.False(t, cfg.Download.AllowCascade)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "gateway:\n  base_url: http://gw.local\n")
	t.Setenv("GOTRACK_DOWNLOAD_OUT_DIR", "/srv/music")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/music", cfg.Download.OutDir)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"short secret":   "codec:\n  block_secret: abc\n",
		"bad iv":         "codec:\n  block_iv: zz\n",
		"global < local": "retry:\n  local_max: 5\n  global_max: 2\n",
		"zero local":     "retry:\n  local_max: 0\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestSampleLoadsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, CreateSample(path, false))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "initial_delay: 30s")
	assert.Contains(t, string(raw), "tag_sidecar: false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	assert.ErrorContains(t, CreateSample(path, false), "already exists")
	assert.NoError(t, CreateSample(path, true))
}
