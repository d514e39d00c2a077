package spec

import (
	"fmt"
	"sort"
	"strings"
)

// Validate reports whether doc looks like a Swagger/OpenAPI document: an object
// carrying at least one of the swagger, openapi or paths keys.
func Validate(doc any) bool {
	m, ok := doc.(map[string]any)
	if !ok {
		return false
	}
	for _, key := range []string{"swagger", "openapi", "paths"} {
		if _, ok := m[key]; ok {
			return true
		}
	}
	return false
}

// Parse converts a decoded Swagger/OpenAPI document into an APIDoc. Every
// (path, recognized method) pair whose value is an object yields exactly one
// endpoint. Paths and methods are walked in sorted order so repeated parses of
// the same document produce equal models.
func Parse(doc map[string]any) *APIDoc {
	api := &APIDoc{Endpoints: []EndpointModel{}}
	if info, ok := doc["info"].(map[string]any); ok {
		api.Title = asString(info["title"])
		api.Version = asString(info["version"])
		api.Description = asString(info["description"])
	}
	api.BaseURL = baseURL(doc)

	paths, _ := doc["paths"].(map[string]any)
	pathKeys := make([]string, 0, len(paths))
	for p := range paths {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	for _, p := range pathKeys {
		item, ok := paths[p].(map[string]any)
		if !ok {
			continue
		}
		if ref := asString(item["$ref"]); ref != "" {
			if resolved, ok := resolveRef(doc, ref).(map[string]any); ok {
				item = resolved
			}
		}
		baseParams := collectParameters(doc, item["parameters"])

		for _, op := range operationsOf(item) {
			params := mergeParameters(baseParams, collectParameters(doc, op.raw["parameters"]))
			ep := EndpointModel{
				Method:      op.method,
				Path:        p,
				Summary:     asString(op.raw["summary"]),
				Description: asString(op.raw["description"]),
				Parameters:  params,
				Responses:   map[string]ResponseInfo{},
			}
			ep.Examples = append(ep.Examples, requestBodyExamples(doc, op.raw["requestBody"])...)
			parseResponses(doc, op.raw["responses"], &ep)
			ep.Examples = append(ep.Examples, operationExamples(op.raw["examples"])...)
			api.Endpoints = append(api.Endpoints, ep)
		}
	}
	return api
}

type rawOperation struct {
	key    string
	method HTTPMethod
	raw    map[string]any
}

// operationsOf returns the recognized operations of a path item ordered by
// method and then by the literal key, so "get" and "GET" both count.
func operationsOf(item map[string]any) []rawOperation {
	var ops []rawOperation
	for key, v := range item {
		m, ok := ParseMethod(key)
		if !ok {
			continue
		}
		raw, ok := v.(map[string]any)
		if !ok {
			continue
		}
		ops = append(ops, rawOperation{key: key, method: m, raw: raw})
	}
	sort.Slice(ops, func(i, j int) bool {
		ri, rj := methodRank(ops[i].method), methodRank(ops[j].method)
		if ri != rj {
			return ri < rj
		}
		return ops[i].key < ops[j].key
	})
	return ops
}

func baseURL(doc map[string]any) string {
	host := asString(doc["host"])
	basePath := asString(doc["basePath"])
	if host != "" || basePath != "" {
		return host + basePath
	}
	if servers, ok := doc["servers"].([]any); ok && len(servers) > 0 {
		if s, ok := servers[0].(map[string]any); ok {
			return asString(s["url"])
		}
	}
	return ""
}

func collectParameters(doc map[string]any, v any) []Parameter {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	params := make([]Parameter, 0, len(list))
	for _, item := range list {
		pm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if ref := asString(pm["$ref"]); ref != "" {
			resolved, ok := resolveRef(doc, ref).(map[string]any)
			if !ok {
				continue
			}
			pm = resolved
		}
		name := asString(pm["name"])
		if name == "" {
			continue
		}
		p := Parameter{
			Name:        name,
			In:          ParseLocation(asString(pm["in"])),
			Required:    asBool(pm["required"]),
			Type:        asString(pm["type"]),
			Description: asString(pm["description"]),
			Example:     pm["example"],
		}
		schema, _ := pm["schema"].(map[string]any)
		if p.Type == "" && schema != nil {
			p.Type = asString(schema["type"])
			if p.Type == "" {
				p.Type = refName(asString(schema["$ref"]))
			}
		}
		if p.Example == nil && schema != nil {
			p.Example = schema["example"]
		}
		if p.Example == nil {
			if named, ok := pm["examples"].(map[string]any); ok {
				for _, k := range sortedKeys(named) {
					p.Example = exampleValue(named[k])
					break
				}
			}
		}
		params = append(params, p)
	}
	return params
}

// mergeParameters overlays operation-level parameters on path-level ones; a
// parameter with the same location and name is replaced.
func mergeParameters(base, op []Parameter) []Parameter {
	if len(base) == 0 {
		return op
	}
	out := make([]Parameter, 0, len(base)+len(op))
	overridden := make(map[string]struct{}, len(op))
	for _, p := range op {
		overridden[paramKey(p)] = struct{}{}
	}
	for _, p := range base {
		if _, ok := overridden[paramKey(p)]; ok {
			continue
		}
		out = append(out, p)
	}
	return append(out, op...)
}

func paramKey(p Parameter) string { return string(p.In) + ":" + p.Name }

func requestBodyExamples(doc map[string]any, v any) []ExampleRecord {
	body, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if ref := asString(body["$ref"]); ref != "" {
		if resolved, ok := resolveRef(doc, ref).(map[string]any); ok {
			body = resolved
		}
	}
	content, ok := body["content"].(map[string]any)
	if !ok {
		return nil
	}
	var out []ExampleRecord
	for _, ct := range sortedKeys(content) {
		media, ok := content[ct].(map[string]any)
		if !ok {
			continue
		}
		if ex, ok := media["example"]; ok {
			out = append(out, ExampleRecord{Kind: RequestBodyExample, ContentType: ct, Value: ex})
		}
		if named, ok := media["examples"].(map[string]any); ok {
			for _, name := range sortedKeys(named) {
				out = append(out, ExampleRecord{Kind: RequestBodyExample, Name: name, ContentType: ct, Value: exampleValue(named[name])})
			}
		}
	}
	return out
}

func parseResponses(doc map[string]any, v any, ep *EndpointModel) {
	responses, ok := v.(map[string]any)
	if !ok {
		return
	}
	for _, code := range sortedKeys(responses) {
		resp, ok := responses[code].(map[string]any)
		if !ok {
			continue
		}
		if ref := asString(resp["$ref"]); ref != "" {
			if resolved, ok := resolveRef(doc, ref).(map[string]any); ok {
				resp = resolved
			}
		}
		info := ResponseInfo{
			Description: asString(resp["description"]),
			Schema:      resp["schema"],
		}
		examples := map[string]any{}
		if content, ok := resp["content"].(map[string]any); ok {
			for _, ct := range sortedKeys(content) {
				media, ok := content[ct].(map[string]any)
				if !ok {
					continue
				}
				if info.Schema == nil {
					info.Schema = media["schema"]
				}
				if ex, ok := media["example"]; ok {
					examples[ct] = ex
					ep.Examples = append(ep.Examples, ExampleRecord{Kind: ResponseExample, ContentType: ct, StatusCode: code, Value: ex})
				}
				if named, ok := media["examples"].(map[string]any); ok {
					for _, name := range sortedKeys(named) {
						value := exampleValue(named[name])
						examples[ct+"_"+name] = value
						ep.Examples = append(ep.Examples, ExampleRecord{Kind: ResponseExample, Name: name, ContentType: ct, StatusCode: code, Value: value})
					}
				}
			}
		}
		// Swagger 2.0 keeps response examples keyed by mime type.
		if legacy, ok := resp["examples"].(map[string]any); ok {
			for _, ct := range sortedKeys(legacy) {
				examples[ct] = legacy[ct]
				ep.Examples = append(ep.Examples, ExampleRecord{Kind: ResponseExample, ContentType: ct, StatusCode: code, Value: legacy[ct]})
			}
		}
		if len(examples) > 0 {
			info.Examples = examples
		}
		ep.Responses[code] = info
	}
}

func operationExamples(v any) []ExampleRecord {
	switch val := v.(type) {
	case []any:
		out := make([]ExampleRecord, 0, len(val))
		for _, item := range val {
			out = append(out, ExampleRecord{Kind: OperationExample, Value: item})
		}
		return out
	case map[string]any:
		out := make([]ExampleRecord, 0, len(val))
		for _, name := range sortedKeys(val) {
			out = append(out, ExampleRecord{Kind: OperationExample, Name: name, Value: val[name]})
		}
		return out
	default:
		return nil
	}
}

// exampleValue unwraps an OpenAPI Example Object to its value when it has one.
func exampleValue(v any) any {
	if m, ok := v.(map[string]any); ok {
		if value, ok := m["value"]; ok {
			return value
		}
	}
	return v
}

// resolveRef follows a local JSON pointer such as "#/components/parameters/id".
// Remote references are not followed.
func resolveRef(doc map[string]any, ref string) any {
	if !strings.HasPrefix(ref, "#/") {
		return nil
	}
	var cur any = doc
	for _, token := range strings.Split(ref[2:], "/") {
		token = strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[token]
		if !ok {
			return nil
		}
	}
	return cur
}

func refName(ref string) string {
	if ref == "" {
		return ""
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	case float64, int, bool:
		return fmt.Sprint(val)
	default:
		return ""
	}
}

func asBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(strings.TrimSpace(val), "true")
	default:
		return false
	}
}
