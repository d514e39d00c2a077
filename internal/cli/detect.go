package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mark3labs/docharvest/internal/detect"
	"github.com/mark3labs/docharvest/internal/fetch"
	"github.com/mark3labs/docharvest/internal/limiter"
	"github.com/mark3labs/docharvest/internal/pipeline"
	"github.com/mark3labs/docharvest/internal/spec"
)

// DetectConfig captures the options for the detect command.
type DetectConfig struct {
	URL          string
	File         string
	TrustGuessed bool
	Timeout      time.Duration
}

// detectReport is what the detect command prints.
type detectReport struct {
	Detection detect.Result         `json:"detection"`
	Method    spec.ExtractionMethod `json:"extraction_method"`
	SpecURL   string                `json:"spec_url,omitempty"`
	Endpoints int                   `json:"endpoints_count"`
	API       *spec.APIDoc          `json:"api,omitempty"`
}

var detectRunner = runDetect

func newDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect <url>",
		Short: "Classify one page and extract its endpoints",
		Long: "Fetch a page, or read it from --file, report whether it is Swagger/OpenAPI documentation " +
			"and print the extracted endpoint model as JSON.",
		Example: strings.TrimSpace(`  docharvest detect https://petstore.swagger.io/
  docharvest detect https://example.com/docs/api.html --file ./saved.html`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := cmd.Flags().GetString("file")
			if err != nil {
				return err
			}
			trust, err := cmd.Flags().GetBool("trust-guessed-candidates")
			if err != nil {
				return err
			}
			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return err
			}
			return detectRunner(cmd.Context(), &DetectConfig{URL: args[0], File: file, TrustGuessed: trust, Timeout: timeout})
		},
	}
	cmd.Flags().String("file", "", "Read the page HTML from this file instead of fetching it")
	cmd.Flags().Bool("trust-guessed-candidates", false, "Let synthesized spec URLs alone mark a page as API documentation")
	cmd.Flags().Duration("timeout", 30*time.Second, "HTTP timeout for page and spec fetches")
	return cmd
}

func runDetect(ctx context.Context, cfg *DetectConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	client := fetch.NewClient(nil, fetch.WithTimeout(cfg.Timeout))

	var html string
	if cfg.File != "" {
		data, err := os.ReadFile(cfg.File)
		if err != nil {
			return newUsageError(fmt.Sprintf("detect: cannot read %s: %v", cfg.File, err))
		}
		html = string(data)
	} else {
		resp, err := client.Get(ctx, cfg.URL)
		if err != nil {
			return fmt.Errorf("detect: %w", err)
		}
		html = resp.Body
	}

	extractor := pipeline.NewExtractor(client,
		pipeline.WithDetector(detect.NewDetector(detect.WithTrustGuessedCandidates(cfg.TrustGuessed))),
		pipeline.WithHostPacing(limiter.NewHosts(0, 1)),
	)
	ex := extractor.Extract(ctx, cfg.URL, html)
	if ex.DetectErr != nil {
		return fmt.Errorf("detect: %w", ex.DetectErr)
	}

	report := detectReport{
		Detection: ex.Detection,
		Method:    ex.Method,
		SpecURL:   ex.SpecURL,
		Endpoints: ex.Endpoints(),
		API:       ex.API,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
