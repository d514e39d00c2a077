package spec

import "strings"

// Endpoint model produced by spec parsing and HTML fallback extraction.

type HTTPMethod string

const (
	GET     HTTPMethod = "GET"
	POST    HTTPMethod = "POST"
	PUT     HTTPMethod = "PUT"
	DELETE  HTTPMethod = "DELETE"
	PATCH   HTTPMethod = "PATCH"
	OPTIONS HTTPMethod = "OPTIONS"
	HEAD    HTTPMethod = "HEAD"
)

// Methods lists the recognized HTTP methods in their canonical order.
var Methods = []HTTPMethod{GET, POST, PUT, DELETE, PATCH, OPTIONS, HEAD}

// ParseMethod maps a method token to a recognized HTTPMethod, case-insensitively.
func ParseMethod(s string) (HTTPMethod, bool) {
	for _, m := range Methods {
		if strings.EqualFold(string(m), strings.TrimSpace(s)) {
			return m, true
		}
	}
	return "", false
}

func methodRank(m HTTPMethod) int {
	for i, candidate := range Methods {
		if candidate == m {
			return i
		}
	}
	return len(Methods)
}

type ParameterLocation string

const (
	InPath   ParameterLocation = "path"
	InQuery  ParameterLocation = "query"
	InHeader ParameterLocation = "header"
	InBody   ParameterLocation = "body"
)

// ParseLocation normalizes the "in" value of a parameter. formData maps to body and
// cookie to header; anything unknown is treated as a query parameter.
func ParseLocation(s string) ParameterLocation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "path":
		return InPath
	case "header", "cookie":
		return InHeader
	case "body", "formdata":
		return InBody
	default:
		return InQuery
	}
}

// ExtractionMethod records how an endpoint model was obtained.
type ExtractionMethod string

const (
	SpecBased    ExtractionMethod = "openapi_spec"
	HTMLFallback ExtractionMethod = "html_scraping"
	Standard     ExtractionMethod = "standard"
)

type ExampleKind string

const (
	RequestBodyExample   ExampleKind = "request_body"
	ResponseExample      ExampleKind = "response"
	OperationExample     ExampleKind = "operation"
	HTMLExtractedExample ExampleKind = "html_extracted"
	CodeExample          ExampleKind = "code_example"
)

type ExampleRecord struct {
	Kind        ExampleKind `json:"kind"`
	Name        string      `json:"name,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	StatusCode  string      `json:"status_code,omitempty"`
	Value       any         `json:"value"`
}

type Parameter struct {
	Name        string            `json:"name"`
	In          ParameterLocation `json:"in"`
	Required    bool              `json:"required"`
	Type        string            `json:"type,omitempty"`
	Description string            `json:"description,omitempty"`
	Example     any               `json:"example,omitempty"`
}

type ResponseInfo struct {
	Description string         `json:"description,omitempty"`
	Schema      any            `json:"schema,omitempty"`
	Examples    map[string]any `json:"examples,omitempty"`
}

type EndpointModel struct {
	Method      HTTPMethod              `json:"method"`
	Path        string                  `json:"path"`
	Summary     string                  `json:"summary,omitempty"`
	Description string                  `json:"description,omitempty"`
	Parameters  []Parameter             `json:"parameters,omitempty"`
	Responses   map[string]ResponseInfo `json:"responses,omitempty"`
	Examples    []ExampleRecord         `json:"examples,omitempty"`
}

// APIDoc is the aggregate endpoint model of one API documentation source.
type APIDoc struct {
	Title       string          `json:"title,omitempty"`
	Version     string          `json:"version,omitempty"`
	Description string          `json:"description,omitempty"`
	BaseURL     string          `json:"base_url,omitempty"`
	Source      string          `json:"source,omitempty"`
	Conformance *Conformance    `json:"conformance,omitempty"`
	Endpoints   []EndpointModel `json:"endpoints"`
}

// TotalEndpoints returns the number of endpoints in the model.
func (d *APIDoc) TotalEndpoints() int {
	if d == nil {
		return 0
	}
	return len(d.Endpoints)
}
