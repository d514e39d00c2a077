// Package config resolves docharvest settings from defaults, an optional YAML
// file and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mark3labs/docharvest/internal/logging"
)

// DefaultFile is read from the working directory when --config is not given.
const DefaultFile = "docharvest.yaml"

// TokenEnv holds the bearer token for the transformation endpoint.
const TokenEnv = "DOCHARVEST_TRANSFORM_TOKEN"

type Config struct {
	Seeds       []string        `koanf:"seeds"`
	URLFile     string          `koanf:"url-file"`
	OutputDir   string          `koanf:"output-dir"`
	DryRun      bool            `koanf:"dry-run"`
	Force       bool            `koanf:"force"`
	LogLevel    string          `koanf:"log-level"`
	Verbose     bool            `koanf:"verbose"`
	MetricsAddr string          `koanf:"metrics-addr"`
	Discovery   DiscoveryConfig `koanf:"discovery"`
	Fetch       FetchConfig     `koanf:"fetch"`
	Detect      DetectConfig    `koanf:"detect"`
	Limits      LimitsConfig    `koanf:"limits"`
	Retry       RetryConfig     `koanf:"retry"`
	Transform   TransformConfig `koanf:"transform"`
}

type DiscoveryConfig struct {
	MaxPages   int  `koanf:"max-pages"`
	SameDomain bool `koanf:"same-domain"`
}

type FetchConfig struct {
	ReaderBase  string        `koanf:"reader-base"`
	Timeout     time.Duration `koanf:"timeout"`
	DialTimeout time.Duration `koanf:"dial-timeout"`
	UserAgent   string        `koanf:"user-agent"`
	MaxBytes    int64         `koanf:"max-bytes"`
}

type DetectConfig struct {
	TrustGuessedCandidates bool          `koanf:"trust-guessed-candidates"`
	MaxCandidates          int           `koanf:"max-candidates"`
	SpecTimeout            time.Duration `koanf:"spec-timeout"`
	HostRPS                float64       `koanf:"host-rps"`
	HostBurst              int           `koanf:"host-burst"`
}

type LimitsConfig struct {
	Workers              int           `koanf:"workers"`
	RequestsPerWindow    int           `koanf:"requests-per-window"`
	Window               time.Duration `koanf:"window"`
	TransformConcurrency int           `koanf:"transform-concurrency"`
}

type RetryConfig struct {
	StageRetries     int           `koanf:"stage-retries"`
	StageDelay       time.Duration `koanf:"stage-delay"`
	TransformRetries int           `koanf:"transform-retries"`
	TransformBase    time.Duration `koanf:"transform-base"`
}

type TransformConfig struct {
	Endpoint string        `koanf:"endpoint"`
	Timeout  time.Duration `koanf:"timeout"`
	// Token is only ever read from the environment.
	Token string `koanf:"-"`
}

// Defaults mirrors the limits of the services docharvest talks to.
func Defaults() map[string]any {
	return map[string]any{
		"output-dir":                   ".",
		"log-level":                    "info",
		"fetch.timeout":                60 * time.Second,
		"fetch.dial-timeout":           30 * time.Second,
		"fetch.user-agent":             "docharvest/1.0",
		"fetch.max-bytes":              int64(10 << 20),
		"detect.max-candidates":        12,
		"detect.spec-timeout":          10 * time.Second,
		"detect.host-rps":              2.0,
		"detect.host-burst":            1,
		"limits.workers":               20,
		"limits.requests-per-window":   20,
		"limits.window":                time.Minute,
		"limits.transform-concurrency": 5,
		"retry.stage-retries":          2,
		"retry.stage-delay":            2 * time.Second,
		"retry.transform-retries":      2,
		"retry.transform-base":         time.Second,
		"transform.timeout":            120 * time.Second,
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"seed":                     "seeds",
	"url-file":                 "url-file",
	"out":                      "output-dir",
	"dry-run":                  "dry-run",
	"force":                    "force",
	"log-level":                "log-level",
	"verbose":                  "verbose",
	"metrics-addr":             "metrics-addr",
	"max-pages":                "discovery.max-pages",
	"same-domain":              "discovery.same-domain",
	"reader-base":              "fetch.reader-base",
	"fetch-timeout":            "fetch.timeout",
	"user-agent":               "fetch.user-agent",
	"trust-guessed-candidates": "detect.trust-guessed-candidates",
	"max-candidates":           "detect.max-candidates",
	"workers":                  "limits.workers",
	"requests-per-window":      "limits.requests-per-window",
	"window":                   "limits.window",
	"transform-concurrency":    "limits.transform-concurrency",
	"transform-endpoint":       "transform.endpoint",
	"transform-timeout":        "transform.timeout",
}

// BindFlags registers the run flags on cmd. Flags only override file values
// when set explicitly.
func BindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSlice("seed", nil, "Seed URL to process (repeatable)")
	flags.String("url-file", "", "CSV or NDJSON file with URLs to process")
	flags.String("out", "", "Directory for knowledge bases and summaries")
	flags.Bool("dry-run", false, "Plan knowledge base files without writing them")
	flags.Bool("force", false, "Write into non-empty knowledge base directories")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.Int("max-pages", 0, "Maximum URLs per seed (0 for no limit)")
	flags.Bool("same-domain", false, "Only process listed URLs on the seed's host")
	flags.String("reader-base", "", "Reader proxy prefixed to every page URL, e.g. https://r.jina.ai/")
	flags.Duration("fetch-timeout", 0, "Total timeout for one page fetch")
	flags.String("user-agent", "", "User-Agent header for page and spec fetches")
	flags.Bool("trust-guessed-candidates", false, "Let synthesized spec URLs alone mark a page as API documentation")
	flags.Int("max-candidates", 0, "Maximum spec candidates fetched per page")
	flags.Int("workers", 0, "Concurrent URLs per site")
	flags.Int("requests-per-window", 0, "Page fetches allowed per rate window")
	flags.Duration("window", 0, "Length of the rate window")
	flags.Int("transform-concurrency", 0, "Concurrent transformation calls")
	flags.String("transform-endpoint", "", "HTTP endpoint of the transformation service (pass-through when empty)")
	flags.Duration("transform-timeout", 0, "Timeout of one transformation call")
}

// Load resolves the configuration for cmd. The config file comes from the
// --config flag, falling back to DefaultFile when it exists. A .env file in
// the working directory is loaded into the environment first.
func Load(cmd *cobra.Command) (*Config, error) {
	if err := LoadEnv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	configFile := ""
	if _, f := lookupFlag(cmd, "config"); f != nil {
		configFile = strings.TrimSpace(f.Value.String())
	}
	if configFile == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			configFile = DefaultFile
		}
	}
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if flags := buildFlagsMap(cmd); len(flags) > 0 {
		if err := k.Load(confmap.Provider(flags, "."), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Transform.Token = strings.TrimSpace(os.Getenv(TokenEnv))
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv loads .env files into the environment without overriding variables
// that are already set. Missing files are ignored.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// lookupFlag finds a flag defined on cmd or inherited from its parents.
func lookupFlag(cmd *cobra.Command, name string) (*pflag.FlagSet, *pflag.Flag) {
	for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.InheritedFlags()} {
		if f := fs.Lookup(name); f != nil {
			return fs, f
		}
	}
	return nil, nil
}

func buildFlagsMap(cmd *cobra.Command) map[string]any {
	m := make(map[string]any)
	for name, key := range flagKeys {
		fs, f := lookupFlag(cmd, name)
		if f == nil || !f.Changed {
			continue
		}
		if v, err := flagValue(fs, f); err == nil {
			m[key] = v
		}
	}
	return m
}

func flagValue(fs *pflag.FlagSet, f *pflag.Flag) (any, error) {
	switch f.Value.Type() {
	case "bool":
		return fs.GetBool(f.Name)
	case "int":
		return fs.GetInt(f.Name)
	case "int64":
		return fs.GetInt64(f.Name)
	case "float64":
		return fs.GetFloat64(f.Name)
	case "duration":
		return fs.GetDuration(f.Name)
	case "stringSlice":
		return fs.GetStringSlice(f.Name)
	default:
		return f.Value.String(), nil
	}
}

func (c *Config) normalize() {
	var seeds []string
	for _, s := range c.Seeds {
		if s = strings.TrimSpace(s); s != "" {
			seeds = append(seeds, s)
		}
	}
	c.Seeds = seeds
	c.URLFile = strings.TrimSpace(c.URLFile)
	c.OutputDir = strings.TrimSpace(c.OutputDir)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Transform.Endpoint = strings.TrimSpace(c.Transform.Endpoint)
}

// Validate checks values that apply to every command.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	positive := []struct {
		name  string
		value int64
	}{
		{"limits.workers", int64(c.Limits.Workers)},
		{"limits.requests-per-window", int64(c.Limits.RequestsPerWindow)},
		{"limits.window", int64(c.Limits.Window)},
		{"limits.transform-concurrency", int64(c.Limits.TransformConcurrency)},
		{"fetch.timeout", int64(c.Fetch.Timeout)},
		{"fetch.max-bytes", c.Fetch.MaxBytes},
		{"detect.spec-timeout", int64(c.Detect.SpecTimeout)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}
	nonNegative := []struct {
		name  string
		value int64
	}{
		{"discovery.max-pages", int64(c.Discovery.MaxPages)},
		{"detect.max-candidates", int64(c.Detect.MaxCandidates)},
		{"retry.stage-retries", int64(c.Retry.StageRetries)},
		{"retry.stage-delay", int64(c.Retry.StageDelay)},
		{"retry.transform-retries", int64(c.Retry.TransformRetries)},
		{"retry.transform-base", int64(c.Retry.TransformBase)},
		{"transform.timeout", int64(c.Transform.Timeout)},
	}
	for _, p := range nonNegative {
		if p.value < 0 {
			return fmt.Errorf("%s must not be negative", p.name)
		}
	}
	if c.Transform.Endpoint != "" && !strings.HasPrefix(c.Transform.Endpoint, "http://") && !strings.HasPrefix(c.Transform.Endpoint, "https://") {
		return fmt.Errorf("transform.endpoint must be an http or https URL")
	}
	return nil
}

// ValidateRun additionally checks what the run command needs.
func (c *Config) ValidateRun() error {
	if len(c.Seeds) == 0 && c.URLFile == "" {
		return fmt.Errorf("at least one seed URL is required (--seed or --url-file)")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	return nil
}
