package detect

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/docharvest/internal/spec"
)

const swaggerUIPage = `<!DOCTYPE html>
<html>
<head><title>Petstore - Swagger UI</title></head>
<body>
  <div id="swagger-ui"></div>
  <a href="/v2/api-docs">Raw spec</a>
</body>
</html>`

func TestDetect_SwaggerUIWithAPIDocsLink(t *testing.T) {
	t.Parallel()
	res := NewDetector().Detect("https://petstore.example.com/docs/index.html#/pet", swaggerUIPage)

	assert.Equal(t, "https://petstore.example.com/docs/index.html", res.URL)
	assert.GreaterOrEqual(t, res.Confidence, 0.9)
	assert.LessOrEqual(t, res.Confidence, 1.0)
	assert.True(t, res.IsAPI)
	assert.Equal(t, spec.SpecBased, res.Method)
	assert.Contains(t, res.SpecCandidates, "https://petstore.example.com/v2/api-docs")
	assert.Equal(t, "https://petstore.example.com/v2/api-docs", res.SpecCandidates[0], "scanned candidates come first")
	assert.Contains(t, res.Indicators, "swagger-ui container")
	assert.Contains(t, res.Indicators, "swagger title")
}

func TestDetect_DirectSwaggerJSONLinkAlwaysAPI(t *testing.T) {
	t.Parallel()
	html := `<p>Download <a href="specs/swagger.json">the file</a>.</p>`
	res := NewDetector(WithRules(nil)).Detect("https://example.com/guide/intro", html)

	assert.Zero(t, res.Confidence)
	assert.True(t, res.IsAPI)
	assert.Equal(t, "https://example.com/guide/specs/swagger.json", res.SpecCandidates[0])
	assert.Equal(t, spec.SpecBased, res.Method)
}

func TestDetect_PlainProsePage(t *testing.T) {
	t.Parallel()
	html := `<html><head><title>Watering schedule</title></head>
<body><h1>Gardening</h1><p>Water your tomatoes every morning and mulch in the autumn.</p></body></html>`
	res := NewDetector().Detect("https://garden.example.com/blog/tips", html)

	assert.False(t, res.IsAPI)
	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.Indicators)
	assert.Equal(t, spec.Standard, res.Method)
	assert.NotEmpty(t, res.SpecCandidates, "synthesized guesses are still listed")
}

func TestDetect_TrustGuessedCandidates(t *testing.T) {
	t.Parallel()
	html := `<p>Nothing to see here.</p>`
	res := NewDetector(WithTrustGuessedCandidates(true)).Detect("https://garden.example.com/blog/tips", html)
	assert.True(t, res.IsAPI)
	assert.Equal(t, spec.SpecBased, res.Method)
}

func TestDetect_LowConfidenceWithoutCandidates(t *testing.T) {
	t.Parallel()
	// An unparseable URL yields no synthesized candidates.
	res := NewDetector().Detect("::not a url", `<p>REST API reference with GET, POST and PUT calls</p>`)
	assert.True(t, res.IsAPI)
	assert.Empty(t, res.SpecCandidates)
	assert.Equal(t, spec.HTMLFallback, res.Method)
}

func TestDetect_FailingRulesAreSkipped(t *testing.T) {
	t.Parallel()
	rules := []Rule{
		{Name: "boom", Weight: 0.5, Check: func(*Page) (bool, error) { panic("broken predicate") }},
		{Name: "error", Weight: 0.5, Check: func(*Page) (bool, error) { return true, errors.New("nope") }},
		{Name: "ok", Weight: 0.4, Check: func(*Page) (bool, error) { return true, nil }},
	}
	res := NewDetector(WithRules(rules)).Detect("https://example.com/", "<p>x</p>")
	assert.InDelta(t, 0.4, res.Confidence, 1e-9)
	assert.Equal(t, []string{"ok"}, res.Indicators)
}

func TestDetect_ConfidenceBoundedAndDeterministic(t *testing.T) {
	t.Parallel()
	fragments := []string{
		`<div id="swagger-ui">`, `<div class="swagger-ui opblock">`, `<a href="/openapi.json">`,
		`<title>Swagger</title>`, `try it out`, `GET POST PUT DELETE`, `application/json`,
		`swagger-ui-bundle.js`, `OpenAPI`, `API documentation`, `rest api`, `<pre>`, `</div>`, `plain words`,
	}
	rnd := rand.New(rand.NewSource(7))
	d := NewDetector()
	for i := 0; i < 200; i++ {
		var b strings.Builder
		for j := 0; j < rnd.Intn(12); j++ {
			b.WriteString(fragments[rnd.Intn(len(fragments))])
			b.WriteByte(' ')
		}
		html := b.String()
		first := d.Detect("https://example.com/api/docs", html)
		second := d.Detect("https://example.com/api/docs", html)
		require.GreaterOrEqual(t, first.Confidence, 0.0)
		require.LessOrEqual(t, first.Confidence, 1.0)
		require.Equal(t, first, second)
		if first.Method == spec.SpecBased {
			require.NotEmpty(t, first.SpecCandidates)
		}
	}
}

func TestDetect_URLRules(t *testing.T) {
	t.Parallel()
	res := NewDetector().Detect("https://example.com/reference/api.html", "")
	assert.Contains(t, res.Indicators, "api.html url")
	assert.Contains(t, res.Indicators, "api docs url")
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
}
