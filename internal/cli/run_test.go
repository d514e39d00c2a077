package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/docharvest/internal/config"
)

func captureRun(t *testing.T) **config.Config {
	t.Helper()
	var captured *config.Config
	runRunner = func(ctx context.Context, cfg *config.Config) error {
		captured = cfg
		return nil
	}
	t.Cleanup(func() { runRunner = runRun })
	return &captured
}

func TestRunConfigFromFlags(t *testing.T) {
	captured := captureRun(t)

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{
		"--verbose",
		"run",
		"--seed", "https://petstore.example.com/docs",
		"--seed", "https://api.example.org/",
		"--out", "./kb",
		"--workers", "4",
		"--window", "30s",
		"--transform-endpoint", "http://localhost:8080/transform",
		"--trust-guessed-candidates",
		"--dry-run",
	})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	cfg := *captured
	if cfg == nil {
		t.Fatalf("expected config to be captured")
	}
	if want := []string{"https://petstore.example.com/docs", "https://api.example.org/"}; !equalStringSlices(cfg.Seeds, want) {
		t.Errorf("seeds mismatch: got %v", cfg.Seeds)
	}
	if cfg.OutputDir != "./kb" {
		t.Errorf("out mismatch: got %q", cfg.OutputDir)
	}
	if cfg.Limits.Workers != 4 {
		t.Errorf("workers mismatch: got %d", cfg.Limits.Workers)
	}
	if cfg.Limits.Window != 30*time.Second {
		t.Errorf("window mismatch: got %v", cfg.Limits.Window)
	}
	if cfg.Limits.RequestsPerWindow != 20 {
		t.Errorf("requests per window should keep its default, got %d", cfg.Limits.RequestsPerWindow)
	}
	if cfg.Transform.Endpoint != "http://localhost:8080/transform" {
		t.Errorf("endpoint mismatch: got %q", cfg.Transform.Endpoint)
	}
	if !cfg.Detect.TrustGuessedCandidates {
		t.Errorf("expected trust-guessed-candidates true")
	}
	if !cfg.DryRun {
		t.Errorf("expected dry-run true")
	}
	if !cfg.Verbose {
		t.Errorf("expected verbose true")
	}
}

func TestRunConfigPrecedence(t *testing.T) {
	captured := captureRun(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := strings.TrimSpace(`
seeds:
  - https://from-config.example.com/
output-dir: from-config
dry-run: true
limits:
  workers: 7
  transform-concurrency: 2
retry:
  stage-retries: 5
`) + "\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{
		"--config", configPath,
		"run",
		"--workers", "3",
		"--dry-run=false",
	})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	cfg := *captured
	if cfg == nil {
		t.Fatalf("expected config to be captured")
	}
	if want := []string{"https://from-config.example.com/"}; !equalStringSlices(cfg.Seeds, want) {
		t.Errorf("seeds: want %v got %v", want, cfg.Seeds)
	}
	if cfg.OutputDir != "from-config" {
		t.Errorf("out: want from-config got %q", cfg.OutputDir)
	}
	if cfg.Limits.Workers != 3 {
		t.Errorf("workers: want 3 got %d", cfg.Limits.Workers)
	}
	if cfg.Limits.TransformConcurrency != 2 {
		t.Errorf("transform concurrency: want 2 got %d", cfg.Limits.TransformConcurrency)
	}
	if cfg.Retry.StageRetries != 5 {
		t.Errorf("stage retries: want 5 got %d", cfg.Retry.StageRetries)
	}
	if cfg.DryRun {
		t.Errorf("expected dry-run false after flag override")
	}
}

func TestRunConfigUnknownKey(t *testing.T) {
	captureRun(t)

	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(configPath, []byte("unknown: value\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--config", configPath, "run", "--seed", "https://example.com/"})

	err := root.Execute()
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestRunRequiresSeed(t *testing.T) {
	captured := captureRun(t)

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"run", "--out", t.TempDir()})

	err := root.Execute()
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if *captured != nil {
		t.Fatalf("runner must not be called without seeds")
	}
}

func TestBuildDiscoveryFromURLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.csv")
	content := "url,title\nhttps://a.example.com/docs,A\nhttps://b.example.com/,B\nhttps://a.example.com/api.html,A2\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write urls: %v", err)
	}

	seeds, d, err := buildDiscovery(&config.Config{URLFile: path})
	if err != nil {
		t.Fatalf("build discovery: %v", err)
	}
	if want := []string{"https://a.example.com/docs", "https://b.example.com/"}; !equalStringSlices(seeds, want) {
		t.Fatalf("seeds: want %v got %v", want, seeds)
	}
	urls, err := d.Discover(context.Background(), seeds[0])
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if want := []string{"https://a.example.com/docs", "https://a.example.com/api.html"}; !equalStringSlices(urls, want) {
		t.Fatalf("urls: want %v got %v", want, urls)
	}
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
