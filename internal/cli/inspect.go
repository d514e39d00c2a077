package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mark3labs/docharvest/internal/spec"
)

// InspectConfig captures the options for the inspect command.
type InspectConfig struct {
	Input   string
	JSON    bool
	Timeout time.Duration
}

var inspectRunner = runInspect

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <spec path or URL>",
		Short: "Parse a Swagger/OpenAPI document and list its endpoints",
		Long: "Load a Swagger 2.0 or OpenAPI 3.x document from a file or http/https URL, " +
			"build the endpoint model and report its conformance.",
		Example: strings.TrimSpace(`  docharvest inspect ./openapi.yaml
  docharvest inspect https://petstore.swagger.io/v2/swagger.json --json`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return err
			}
			return inspectRunner(cmd.Context(), &InspectConfig{Input: args[0], JSON: asJSON, Timeout: timeout})
		},
	}
	cmd.Flags().Bool("json", false, "Print the endpoint model as JSON")
	cmd.Flags().Duration("timeout", 10*time.Second, "HTTP timeout when the input is a URL")
	return cmd
}

func runInspect(ctx context.Context, cfg *InspectConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var opts []spec.Option
	if cfg.Timeout > 0 {
		opts = append(opts, spec.WithHTTPTimeout(cfg.Timeout))
	}
	doc, err := spec.Load(ctx, cfg.Input, opts...)
	if err != nil {
		return specUsageError(err)
	}
	api := spec.Parse(doc.Raw)
	api.Source = doc.Location
	api.Conformance = spec.Check(ctx, doc.Raw)

	if cfg.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(api)
	}
	printAPI(os.Stdout, api)
	return nil
}

// specUsageError maps structured spec errors into friendly messages.
func specUsageError(err error) error {
	var se *spec.SpecError
	if !errors.As(err, &se) {
		return err
	}
	msg := fmt.Sprintf("spec: %s", se.Message)
	if se.Location != "" {
		msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
	}
	if se.JSONPointer != "" {
		msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
	}
	return newUsageError(msg)
}

func printAPI(w io.Writer, api *spec.APIDoc) {
	title := api.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(w, "%s", title)
	if api.Version != "" {
		fmt.Fprintf(w, " %s", api.Version)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Source: %s\n", api.Source)
	if api.BaseURL != "" {
		fmt.Fprintf(w, "Base URL: %s\n", api.BaseURL)
	}
	if c := api.Conformance; c != nil {
		switch {
		case c.Valid:
			fmt.Fprintf(w, "Conformance: valid (%s)\n", c.Version)
		case c.Pointer != "":
			fmt.Fprintf(w, "Conformance: %s (at %s)\n", c.Problem, c.Pointer)
		default:
			fmt.Fprintf(w, "Conformance: %s\n", c.Problem)
		}
	}
	fmt.Fprintf(w, "Endpoints: %d\n", api.TotalEndpoints())
	for _, ep := range api.Endpoints {
		line := fmt.Sprintf("  %-7s %s", ep.Method, ep.Path)
		if ep.Summary != "" {
			line += "  " + ep.Summary
		}
		fmt.Fprintln(w, line)
	}
}
