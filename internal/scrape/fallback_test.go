package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/docharvest/internal/spec"
)

const swaggerUIRendered = `<html><body>
<h1>Petstore <small>1.0.0</small></h1>
<div class="opblock-tag-section">
  <div class="opblock opblock-get">
    <div class="opblock-summary opblock-summary-get">
      <span class="opblock-summary-method">GET</span>
      <span class="opblock-summary-path" data-path="/pets/{petId}"><a class="nostyle"><span>/pets/&#8203;{petId}</span></a></span>
      <div class="opblock-summary-description">Find pet by ID</div>
    </div>
    <table class="parameters"><tbody>
      <tr><th class="col_header">Name</th><th class="col_header">Description</th></tr>
      <tr>
        <td class="parameters-col_name"><div class="parameter__name required">petId<span>&nbsp;*</span></div><div class="parameter__in">(path)</div></td>
        <td class="parameters-col_description"><div class="markdown">ID of pet</div></td>
      </tr>
      <tr>
        <td class="parameters-col_name"><div class="parameter__name">fields</div><div class="parameter__in">(query)</div></td>
        <td class="parameters-col_description"><div class="markdown">Fields to return</div></td>
      </tr>
    </tbody></table>
  </div>
  <div class="opblock opblock-delete">
    <div class="opblock-summary">
      <span class="opblock-summary-method">DELETE</span>
      <span class="opblock-summary-path" data-path="/pets/{petId}">/pets/{petId}</span>
    </div>
  </div>
  <div class="opblock opblock-get">
    <div class="opblock-summary">
      <span class="opblock-summary-method">GET</span>
      <span class="opblock-summary-path" data-path="/pets/{petId}">/pets/{petId}</span>
    </div>
  </div>
</div>
<div class="endpoint">
  <span class="method">post</span>
  <code class="path">/pets</code>
  <p class="description">Create a pet</p>
  <ul>
    <li class="parameter"><span class="parameter-name">name</span> <span class="parameter-description">Pet name</span> required</li>
  </ul>
  <pre class="example">{"name": "Rex"}</pre>
</div>
<div class="operation"><span class="method">PATCH</span></div>
<div class="operation"><span class="method">FETCH</span><span class="path">/nowhere</span></div>
</body></html>`

func TestFallback_SwaggerUIMarkup(t *testing.T) {
	t.Parallel()
	api := Fallback("https://petstore.example.com/docs/", swaggerUIRendered)

	assert.Equal(t, "Petstore 1.0.0", api.Title)
	assert.Equal(t, "https://petstore.example.com/docs/", api.Source)
	require.Len(t, api.Endpoints, 3)

	get := api.Endpoints[0]
	assert.Equal(t, spec.GET, get.Method)
	assert.Equal(t, "/pets/{petId}", get.Path)
	assert.Equal(t, "Find pet by ID", get.Description)
	require.Len(t, get.Parameters, 2)
	assert.Equal(t, spec.Parameter{Name: "petId", In: spec.InPath, Required: true, Description: "ID of pet"}, get.Parameters[0])
	assert.Equal(t, spec.Parameter{Name: "fields", In: spec.InQuery, Description: "Fields to return"}, get.Parameters[1])

	del := api.Endpoints[1]
	assert.Equal(t, spec.DELETE, del.Method)
	assert.Empty(t, del.Parameters)
	assert.Empty(t, del.Description, "the summary row only repeats the method and path")
}

func TestFallback_DescriptionCandidates(t *testing.T) {
	t.Parallel()
	page := `<html><body>
<div class="opblock">
  <div class="opblock-summary">
    <span class="opblock-summary-method">PUT</span>
    <span class="opblock-summary-path" data-path="/pets">/pets</span>
    <span>Update a pet</span>
  </div>
</div>
<div class="opblock">
  <div class="opblock-summary">
    <span class="opblock-summary-method">GET</span>
    <span class="opblock-summary-path">/pets/{petId}</span>
  </div>
  <table class="parameters"><tbody><tr>
    <td class="parameters-col_name"><div class="parameter__name">petId</div></td>
    <td class="parameters-col_description">ID of pet</td>
  </tr></tbody></table>
</div>
</body></html>`
	api := Fallback("https://example.com/docs", page)
	require.Len(t, api.Endpoints, 2)

	assert.Equal(t, spec.PUT, api.Endpoints[0].Method)
	assert.Equal(t, "Update a pet", api.Endpoints[0].Description)

	get := api.Endpoints[1]
	assert.Equal(t, "/pets/{petId}", get.Path)
	assert.Empty(t, get.Description, "parameter descriptions are not operation descriptions")
	require.Len(t, get.Parameters, 1)
	assert.Equal(t, "ID of pet", get.Parameters[0].Description)
}

func TestFallback_GenericMarkup(t *testing.T) {
	t.Parallel()
	api := Fallback("https://example.com/reference", swaggerUIRendered)
	require.Len(t, api.Endpoints, 3)

	post := api.Endpoints[2]
	assert.Equal(t, spec.POST, post.Method)
	assert.Equal(t, "/pets", post.Path)
	assert.Equal(t, "Create a pet", post.Description)
	require.Len(t, post.Parameters, 1)
	assert.Equal(t, "name", post.Parameters[0].Name)
	assert.Equal(t, "Pet name", post.Parameters[0].Description)
	assert.True(t, post.Parameters[0].Required)
	require.Len(t, post.Examples, 1)
	assert.Equal(t, spec.HTMLExtractedExample, post.Examples[0].Kind)
	assert.Equal(t, `{"name": "Rex"}`, post.Examples[0].Value)
}

func TestFallback_TitleFromClass(t *testing.T) {
	t.Parallel()
	api := Fallback("https://example.com/", `<div class="info"><h2 class="title">Orders API</h2></div>`)
	assert.Equal(t, "Orders API", api.Title)
	assert.NotNil(t, api.Endpoints)
	assert.Empty(t, api.Endpoints)
}

func TestFallback_PlainPage(t *testing.T) {
	t.Parallel()
	api := Fallback("https://example.com/blog", `<p>No endpoints here, just prose.</p>`)
	assert.Empty(t, api.Title)
	assert.Empty(t, api.Endpoints)
}
