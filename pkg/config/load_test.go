package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/unpops/pkg/logger"
)

// inTempDir runs the test from an empty directory so a stray unpops.yaml in
// the package directory cannot leak in.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load(Options{})
	require.NoError(t, err, "Load() should not return an error with default values")
	require.NotNil(t, cfg)

	assert.Equal(t, "https://population.un.org/dataportalapi/api/v1", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 1000, cfg.API.MaxPages)
	assert.Equal(t, "data", cfg.Data.Dir)
	assert.Equal(t, "countries", cfg.Data.Dataset)
	assert.Equal(t, 49, cfg.Query.Indicator)
	assert.Equal(t, 2, cfg.Rounding.SigFigs)
	assert.Equal(t, 1e8, cfg.Rounding.LeadingOneAbove)
	assert.Equal(t, int64(20220804), cfg.Deck.ID)
	assert.Equal(t, "Country Populations (UN)", cfg.Deck.Name)
	assert.Equal(t, "ankUNpops.apkg", cfg.Deck.Output)
	assert.True(t, cfg.Deck.IncludeLocationID)
	assert.Equal(t, []string{"population", "un"}, cfg.Deck.Tags)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadFromEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv("UNPOPS_API_TOKEN", "secret-token")
	t.Setenv("UNPOPS_DATA_DIR", "/tmp/unpops")
	t.Setenv("UNPOPS_ROUNDING_LEADING_ONE_ABOVE", "0")
	t.Setenv("UNPOPS_LOG_LEVEL", "DEBUG")
	t.Setenv("UNPOPS_API_TIMEOUT", "5s")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "secret-token", cfg.API.Token)
	assert.Equal(t, "/tmp/unpops", cfg.Data.Dir)
	assert.Equal(t, 0.0, cfg.Rounding.LeadingOneAbove)
	assert.Equal(t, "debug", cfg.Log.Level, "log level should be normalized")
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
}

func TestLoadFromFile(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
deck:
  output: out/pops.apkg
  tags: [population, un]
query:
  start_year: 2020
  end_year: 2022
`), 0o644))

	cfg, err := Load(Options{File: path})
	require.NoError(t, err)
	assert.Equal(t, "out/pops.apkg", cfg.Deck.Output)
	assert.Equal(t, []string{"population", "un"}, cfg.Deck.Tags)
	assert.Equal(t, 2020, cfg.Query.StartYear)
	assert.Equal(t, 2022, cfg.Query.EndYear)
	assert.Equal(t, "countries", cfg.Data.Dataset, "unset keys keep defaults")
}

func TestLoadFindsFileInWorkingDir(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unpops.yaml"), []byte("data:\n  dataset: world\n"), 0o644))

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "world", cfg.Data.Dataset)
}

func TestPrecedence(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "unpops.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data:\n  dir: from-file\n"), 0o644))
	t.Setenv("UNPOPS_DATA_DIR", "from-env")

	cfg, err := Load(Options{File: path})
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Data.Dir, "environment beats file")

	cfg, err = Load(Options{File: path, Overrides: map[string]any{"data.dir": "from-flag"}})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Data.Dir, "overrides beat environment")
}

func TestLoadAcceptsEveryLoggerLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "Warning", "ERROR"} {
		t.Run(level, func(t *testing.T) {
			inTempDir(t)
			t.Setenv("UNPOPS_LOG_LEVEL", level)
			cfg, err := Load(Options{})
			require.NoError(t, err)
			_, ok := logger.ParseLevel(cfg.Log.Level)
			assert.True(t, ok, "level %q", cfg.Log.Level)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := inTempDir(t)
	_, err := Load(Options{File: filepath.Join(dir, "nope.yaml")})
	assert.Error(t, err)
}

func TestLoadValidationErrors(t *testing.T) {
	testCases := []struct {
		name    string
		envVars map[string]string
	}{
		{"invalid base url", map[string]string{"UNPOPS_API_BASE_URL": "not a url"}},
		{"zero sig figs", map[string]string{"UNPOPS_ROUNDING_SIG_FIGS": "0"}},
		{"negative deck id", map[string]string{"UNPOPS_DECK_ID": "-1"}},
		{"invalid log level", map[string]string{"UNPOPS_LOG_LEVEL": "verbose"}},
		{"invalid log format", map[string]string{"UNPOPS_LOG_FORMAT": "xml"}},
		{"dataset with path", map[string]string{"UNPOPS_DATA_DATASET": "../countries"}},
		{"reversed years", map[string]string{"UNPOPS_QUERY_START_YEAR": "2025", "UNPOPS_QUERY_END_YEAR": "2020"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			inTempDir(t)
			for k, v := range tc.envVars {
				t.Setenv(k, v)
			}
			_, err := Load(Options{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (stand-in for testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
