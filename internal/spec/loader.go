package spec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	openapi2 "github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/mark3labs/docharvest/internal/retry"
)

// ErrorCode categorizes loader errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError      ErrorCode = "InputError"
	NetworkError    ErrorCode = "NetworkError"
	ParseError      ErrorCode = "ParseError"
	ValidationError ErrorCode = "ValidationError"
	ConversionError ErrorCode = "ConversionError"
)

// SpecError is a structured error with optional location and JSON Pointer.
type SpecError struct {
	Code        ErrorCode
	Message     string
	Location    string // file path or URL
	JSONPointer string // e.g. "#/paths/~1pets/get"
	Cause       error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

// Settings configures loader behavior.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// MaxRetries for transient HTTP failures (>=500, 429, or network errors).
	MaxRetries int
	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout: 10 * time.Second,
		MaxRetries:  2,
		BackoffBase: 200 * time.Millisecond,
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option  { return func(s *Settings) { s.HTTPTimeout = d } }
func WithMaxRetries(n int) Option            { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option { return func(s *Settings) { s.BackoffBase = d } }

// Document is a decoded spec together with where it came from.
type Document struct {
	Location string
	Raw      map[string]any
}

// Load reads a spec from an http/https URL or a local file path and decodes
// it. JSON (comments tolerated) and YAML are accepted. file:// URLs are blocked.
func Load(ctx context.Context, input string, opts ...Option) (*Document, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &SpecError{Code: InputError, Message: "spec: input is empty"}
	}

	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	var (
		raw         []byte
		contentType string
		location    string
	)

	u, uerr := url.Parse(input)
	if uerr == nil && u.Scheme != "" && u.Host != "" {
		scheme := strings.ToLower(u.Scheme)
		if scheme == "file" {
			return nil, &SpecError{Code: InputError, Message: "spec: file:// URLs are blocked by default", Location: input}
		}
		if scheme != "http" && scheme != "https" {
			return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("spec: unsupported URL scheme %q (only http/https allowed)", scheme), Location: input}
		}
		body, ct, err := fetchWithRetry(ctx, input, settings)
		if err != nil {
			return nil, &SpecError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", input, err), Location: input, Cause: err}
		}
		raw, contentType, location = body, ct, input
	} else {
		if uerr == nil && strings.EqualFold(u.Scheme, "file") {
			return nil, &SpecError{Code: InputError, Message: "spec: file:// URLs are blocked by default", Location: input}
		}
		abs, err := filepath.Abs(input)
		if err != nil {
			return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", err), Location: input, Cause: err}
		}
		body, err := os.ReadFile(abs)
		if err != nil {
			return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, err), Location: abs, Cause: err}
		}
		raw, location = body, abs
	}

	doc, err := DecodeDocument(raw, contentType, location)
	if err != nil {
		return nil, err
	}
	if !Validate(doc) {
		return nil, &SpecError{Code: ValidationError, Message: "spec: document has none of swagger, openapi or paths", Location: location}
	}
	return &Document{Location: location, Raw: doc}, nil
}

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) ([]byte, string, error) {
	client := &http.Client{Timeout: settings.HTTPTimeout}
	backoff := settings.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	var (
		body        []byte
		contentType string
	)
	err := retry.Do(ctx, retry.Policy{MaxRetries: settings.MaxRetries, Delay: retry.Exponential(backoff, 2, 0)},
		func(ctx context.Context, _ int) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return retry.Permanent(err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("transient http error %d", resp.StatusCode)
			}
			if resp.StatusCode >= 300 {
				snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
				return retry.Permanent(fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
			}
			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			body, contentType = b, resp.Header.Get("Content-Type")
			return nil
		})
	if err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}

// Conformance is the outcome of checking a document against the OpenAPI
// schema with kin-openapi. It never affects extraction.
type Conformance struct {
	Version string   `json:"version,omitempty"`
	Valid   bool     `json:"valid"`
	Problem string   `json:"problem,omitempty"`
	Pointer string   `json:"pointer,omitempty"`
	Servers []string `json:"servers,omitempty"`
}

// Check loads doc into kin-openapi, converting Swagger 2.0 to OpenAPI 3 when
// needed, and validates it. Documents that are neither version get a
// Conformance with only Problem set.
func Check(ctx context.Context, doc map[string]any) *Conformance {
	version, err := detectSpecVersion(doc)
	if err != nil {
		return &Conformance{Problem: err.Error()}
	}
	c := &Conformance{Version: version}

	var t *openapi3.T
	switch {
	case strings.HasPrefix(version, "3."):
		data, err := json.Marshal(doc)
		if err != nil {
			c.Problem = err.Error()
			return c
		}
		t, err = openapi3.NewLoader().LoadFromData(data)
		if err != nil {
			c.Problem = mapValidateOrParseErr(err, "").Error()
			return c
		}
	default:
		t, err = convertV2ToV3(doc)
		if err != nil {
			c.Problem = fmt.Sprintf("convert v2→v3: %v", err)
			return c
		}
		if err := openapi3.NewLoader().ResolveRefsIn(t, nil); err != nil {
			c.Problem = fmt.Sprintf("resolve refs: %v", err)
		}
	}

	for _, s := range t.Servers {
		if s != nil && s.URL != "" {
			c.Servers = append(c.Servers, s.URL)
		}
	}
	if err := t.Validate(ctx); err != nil && !canProceedDespiteValidation(err) {
		c.Problem = err.Error()
		c.Pointer = extractJSONPointer(err)
		return c
	}
	c.Valid = c.Problem == ""
	return c
}

// detectSpecVersion returns the declared "openapi" 3.x or "swagger" 2.x version.
func detectSpecVersion(root map[string]any) (string, error) {
	if s := asString(root["openapi"]); strings.HasPrefix(s, "3.") {
		return s, nil
	}
	if s := asString(root["swagger"]); strings.HasPrefix(s, "2.") {
		return s, nil
	}
	return "", fmt.Errorf("spec: missing or unknown version (expected 'openapi: 3.x' or 'swagger: 2.0')")
}

// convertV2ToV3 works on a copy so the caller's document is left untouched by
// the compatibility rewrite.
func convertV2ToV3(doc map[string]any) (*openapi3.T, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var working map[string]any
	if err := json.Unmarshal(data, &working); err != nil {
		return nil, err
	}
	if normalizeV2(working) {
		if data, err = json.Marshal(working); err != nil {
			return nil, err
		}
	}
	var v2 openapi2.T
	if err := json.Unmarshal(data, &v2); err != nil {
		return nil, err
	}
	return openapi2conv.ToV3(&v2)
}

func mapValidateOrParseErr(err error, location string) error {
	pointer := extractJSONPointer(err)
	code := ValidationError
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "parse") || strings.Contains(lower, "invalid character") {
		code = ParseError
	}
	return &SpecError{Code: code, Message: err.Error(), Location: location, JSONPointer: pointer, Cause: err}
}

var jsonPtrRe = regexp.MustCompile(`#/[^\s'\"]+`)

func extractJSONPointer(err error) string {
	if err == nil {
		return ""
	}
	if me, ok := err.(openapi3.MultiError); ok {
		if len(me) > 0 {
			return extractJSONPointer(me[0])
		}
	}
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		if parts := se.JSONPointer(); len(parts) > 0 {
			return "#/" + strings.Join(parts, "/")
		}
		if se.SchemaField != "" {
			return se.SchemaField
		}
	}
	if m := jsonPtrRe.FindString(err.Error()); m != "" {
		return m
	}
	return ""
}

// canProceedDespiteValidation returns true for validation errors that leave the
// document usable, such as unresolved $ref entries.
func canProceedDespiteValidation(err error) bool {
	if err == nil {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unresolved ref") || strings.Contains(s, "found unresolved ref")
}
