package scrape

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/docharvest/internal/spec"
)

const examplesPage = `<html><body>
<p>petId example: 12345</p>
<p>status example: available</p>
<p>flag example: ab</p>
<pre>{"status": "available"}</pre>
<code>curl -X GET https://api.example.com/pets/1</code>
<code>import requests</code>
<code>short</code>
<code>curl -X GET https://api.example.com/pets/1</code>
</body></html>`

func TestMineExamples(t *testing.T) {
	t.Parallel()
	ex := MineExamples(examplesPage)

	assert.Equal(t, []string{"12345", "available"}, ex.Parameters)
	assert.Equal(t, []string{`{"status": "available"}`}, ex.Responses)
	assert.ElementsMatch(t, []string{`{"status": "available"}`, "curl -X GET https://api.example.com/pets/1"}, ex.Code)
}

func TestMineExamples_QuotedJSONExample(t *testing.T) {
	t.Parallel()
	ex := MineExamples(`<pre>{"id": 1, "example": "doggie"}</pre>`)
	assert.Contains(t, ex.Parameters, "doggie")
	for _, v := range ex.Parameters {
		assert.Greater(t, len(v), 2)
	}
}

func TestMineExamples_DropsLongResponses(t *testing.T) {
	t.Parallel()
	long := `{"description": "` + strings.Repeat("x", 220) + `"}`
	ex := MineExamples("<p>" + long + "</p>")
	assert.Empty(t, ex.Responses)
}

func TestEnrich(t *testing.T) {
	t.Parallel()
	endpoints := []spec.EndpointModel{
		{
			Method: spec.GET,
			Path:   "/pets",
			Parameters: []spec.Parameter{
				{Name: "status", In: spec.InQuery},
				{Name: "limit", In: spec.InQuery, Example: 5},
				{Name: "offset", In: spec.InQuery},
			},
		},
		{
			Method:   spec.POST,
			Path:     "/pets",
			Examples: []spec.ExampleRecord{{Kind: spec.RequestBodyExample, Value: "kept"}},
		},
	}
	ex := Examples{
		Parameters: []string{"Status=available", "limit 10"},
		Responses:  []string{`{"a": "1"}`, `{"b": "2"}`, `{"c": "3"}`, `{"d": "4"}`},
		Code:       []string{"curl one", "curl two", "curl three"},
	}
	Enrich(endpoints, ex)

	params := endpoints[0].Parameters
	assert.Equal(t, "Status=available", params[0].Example)
	assert.Equal(t, 5, params[1].Example)
	assert.Nil(t, params[2].Example)

	require.Len(t, endpoints[0].Examples, 5)
	for i, rec := range endpoints[0].Examples[:3] {
		assert.Equal(t, spec.HTMLExtractedExample, rec.Kind)
		assert.Equal(t, ex.Responses[i], rec.Value)
	}
	assert.Equal(t, spec.CodeExample, endpoints[0].Examples[3].Kind)
	assert.Equal(t, "curl two", endpoints[0].Examples[4].Value)

	assert.Equal(t, []spec.ExampleRecord{{Kind: spec.RequestBodyExample, Value: "kept"}}, endpoints[1].Examples)
}

func TestEnrich_SoleCandidate(t *testing.T) {
	t.Parallel()
	endpoints := []spec.EndpointModel{{Method: spec.GET, Path: "/x", Parameters: []spec.Parameter{{Name: "q"}}}}
	Enrich(endpoints, Examples{Parameters: []string{"hello"}})
	assert.Equal(t, "hello", endpoints[0].Parameters[0].Example)
	assert.Empty(t, endpoints[0].Examples)
}
