package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	root := &cobra.Command{Use: "docharvest"}
	root.PersistentFlags().StringP("config", "c", "", "Config file path")
	cmd := &cobra.Command{Use: "run"}
	BindFlags(cmd)
	root.AddCommand(cmd)
	require.NoError(t, root.PersistentFlags().Parse(filterConfig(args)))
	require.NoError(t, cmd.Flags().Parse(withoutConfig(args)))
	return cmd
}

// filterConfig keeps only the --config pair, which lives on the root.
func filterConfig(args []string) []string {
	for i, a := range args {
		if a == "--config" && i+1 < len(args) {
			return []string{a, args[i+1]}
		}
	}
	return nil
}

func withoutConfig(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" {
			i++
			continue
		}
		out = append(out, args[i])
	}
	return out
}

func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
	return dir
}

func unsetToken(t *testing.T) {
	t.Helper()
	t.Setenv(TokenEnv, "")
	require.NoError(t, os.Unsetenv(TokenEnv))
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)
	unsetToken(t)

	cfg, err := Load(newCmd(t))
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 20, cfg.Limits.Workers)
	assert.Equal(t, 20, cfg.Limits.RequestsPerWindow)
	assert.Equal(t, time.Minute, cfg.Limits.Window)
	assert.Equal(t, 5, cfg.Limits.TransformConcurrency)
	assert.Equal(t, 60*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, int64(10<<20), cfg.Fetch.MaxBytes)
	assert.Equal(t, 12, cfg.Detect.MaxCandidates)
	assert.InDelta(t, 2.0, cfg.Detect.HostRPS, 1e-9)
	assert.Equal(t, 2, cfg.Retry.StageRetries)
	assert.Equal(t, 2*time.Second, cfg.Retry.StageDelay)
	assert.Equal(t, 120*time.Second, cfg.Transform.Timeout)
	assert.False(t, cfg.Detect.TrustGuessedCandidates)
	assert.Empty(t, cfg.Transform.Token)
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	dir := inTempDir(t)
	unsetToken(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
seeds: [https://file.example.com/]
log-level: debug
fetch:
  timeout: 15s
limits:
  workers: 7
detect:
  trust-guessed-candidates: true
`), 0o644))

	cfg, err := Load(newCmd(t, "--config", path, "--workers", "3", "--seed", "https://flag.example.com/", "--window", "30s"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://flag.example.com/"}, cfg.Seeds)
	assert.Equal(t, 3, cfg.Limits.Workers)
	assert.Equal(t, 30*time.Second, cfg.Limits.Window)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout)
	assert.True(t, cfg.Detect.TrustGuessedCandidates)
	assert.Equal(t, 20, cfg.Limits.RequestsPerWindow, "untouched keys keep defaults")
}

func TestLoadDefaultFileFromWorkingDir(t *testing.T) {
	dir := inTempDir(t)
	unsetToken(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte("limits:\n  workers: 4\n"), 0o644))

	cfg, err := Load(newCmd(t))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Limits.Workers)
}

func TestLoadSampleMatchesDefaults(t *testing.T) {
	dir := inTempDir(t)
	unsetToken(t)
	path := filepath.Join(dir, "sample.yaml")
	require.NoError(t, os.WriteFile(path, []byte(SampleYAML), 0o644))

	fromSample, err := Load(newCmd(t, "--config", path))
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	fromDefaults, err := Load(newCmd(t))
	require.NoError(t, err)
	assert.Equal(t, fromDefaults, fromSample)
}

func TestLoadTokenFromDotEnv(t *testing.T) {
	dir := inTempDir(t)
	unsetToken(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(TokenEnv+"=s3cret\n"), 0o600))

	cfg, err := Load(newCmd(t))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Transform.Token)
}

func TestLoadEnvDoesNotOverride(t *testing.T) {
	dir := inTempDir(t)
	t.Setenv(TokenEnv, "from-env")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(TokenEnv+"=from-file\n"), 0o600))

	cfg, err := Load(newCmd(t))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Transform.Token)
}

func TestLoadInvalidFile(t *testing.T) {
	dir := inTempDir(t)
	unsetToken(t)
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits: [unclosed\n"), 0o644))

	_, err := Load(newCmd(t, "--config", path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	inTempDir(t)
	unsetToken(t)

	_, err := Load(newCmd(t, "--workers", "0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limits.workers must be positive")

	_, err = Load(newCmd(t, "--log-level", "loud"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log level")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			LogLevel: "info",
			Limits:   LimitsConfig{Workers: 1, RequestsPerWindow: 1, Window: time.Second, TransformConcurrency: 1},
			Fetch:    FetchConfig{Timeout: time.Second, MaxBytes: 1},
			Detect:   DetectConfig{SpecTimeout: time.Second},
		}
	}
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero window", mutate: func(c *Config) { c.Limits.Window = 0 }, errContains: "limits.window"},
		{name: "negative retries", mutate: func(c *Config) { c.Retry.StageRetries = -1 }, errContains: "retry.stage-retries"},
		{name: "negative max pages", mutate: func(c *Config) { c.Discovery.MaxPages = -5 }, errContains: "discovery.max-pages"},
		{name: "bad endpoint", mutate: func(c *Config) { c.Transform.Endpoint = "ftp://x" }, errContains: "transform.endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.errContains == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestValidateRun(t *testing.T) {
	c := Config{OutputDir: "."}
	assert.Error(t, c.ValidateRun())
	c.URLFile = "urls.csv"
	assert.NoError(t, c.ValidateRun())
	c = Config{Seeds: []string{"https://example.com/"}}
	assert.Error(t, c.ValidateRun(), "output directory required")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := inTempDir(t)
	unsetToken(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits:\n  wrokers: 3\n"), 0o644))

	_, err := Load(newCmd(t, "--config", path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrokers")
}
