// Package pipeline drives pages from discovery through fetching, API
// detection and extraction, and transformation, recording outcomes per site.
package pipeline

import (
	"time"

	"github.com/mark3labs/docharvest/internal/spec"
)

// Task is one URL to process together with the seed it was discovered from.
type Task struct {
	URL     string
	BaseURL string
}

// SwaggerInfo summarizes API detection for a processed page.
type SwaggerInfo struct {
	IsSwagger        bool    `json:"is_swagger"`
	Confidence       float64 `json:"confidence"`
	ExtractionMethod string  `json:"extraction_method"`
	EndpointsCount   int     `json:"endpoints_count"`
}

// Record is the outcome of a successfully processed URL.
type Record struct {
	URL         string       `json:"url"`
	BaseURL     string       `json:"base_url"`
	RawContent  string       `json:"raw_content"`
	Transformed string       `json:"processed_content"`
	Timestamp   time.Time    `json:"timestamp"`
	SwaggerInfo SwaggerInfo  `json:"swagger_info"`
	API         *spec.APIDoc `json:"api,omitempty"`
	Indicators  []string     `json:"indicators,omitempty"`
}
