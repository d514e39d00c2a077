package spec

import "strings"

// normalizeV2 rewrites Swagger 2.0 operations that kin-openapi cannot convert:
//   - several body parameters are merged into one object-typed body parameter;
//   - body parameters mixed with formData become formData, and the operation
//     consumes multipart/form-data.
//
// doc is modified in place. It reports whether anything changed.
func normalizeV2(doc map[string]any) bool {
	paths, ok := doc["paths"].(map[string]any)
	if !ok || len(paths) == 0 {
		return false
	}
	modified := false
	for _, item := range paths {
		pi, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for key, raw := range pi {
			if _, ok := ParseMethod(key); !ok {
				continue
			}
			op, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if normalizeV2Operation(op) {
				modified = true
			}
		}
	}
	return modified
}

func normalizeV2Operation(op map[string]any) bool {
	params, ok := op["parameters"].([]any)
	if !ok || len(params) == 0 {
		return false
	}
	bodyCount := 0
	hasFormData := false
	for _, p := range params {
		pm, _ := p.(map[string]any)
		switch strings.ToLower(asString(pm["in"])) {
		case "body":
			bodyCount++
		case "formdata":
			hasFormData = true
		}
	}
	switch {
	case bodyCount == 0:
		return false
	case hasFormData:
		converted := make([]any, 0, len(params))
		for _, p := range params {
			pm, _ := p.(map[string]any)
			if pm == nil {
				continue
			}
			if strings.EqualFold(asString(pm["in"]), "body") {
				converted = append(converted, formDataFromBodyParam(pm))
				continue
			}
			converted = append(converted, pm)
		}
		op["parameters"] = converted
		consumes, _ := op["consumes"].([]any)
		if !containsString(consumes, "multipart/form-data") {
			op["consumes"] = append(consumes, "multipart/form-data")
		}
		return true
	case bodyCount > 1:
		props := map[string]any{}
		var required []any
		rest := make([]any, 0, len(params))
		for _, p := range params {
			pm, _ := p.(map[string]any)
			if pm == nil {
				continue
			}
			if !strings.EqualFold(asString(pm["in"]), "body") {
				rest = append(rest, pm)
				continue
			}
			name := asString(pm["name"])
			if name == "" {
				name = "field"
			}
			schema := schemaFromParam(pm)
			if schema == nil {
				schema = map[string]any{"type": "string"}
			}
			props[name] = schema
			if asBool(pm["required"]) {
				required = append(required, name)
			}
		}
		bodySchema := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			bodySchema["required"] = required
		}
		merged := map[string]any{"in": "body", "name": "body", "schema": bodySchema}
		op["parameters"] = append([]any{merged}, rest...)
		return true
	default:
		return false
	}
}

func containsString(list []any, want string) bool {
	for _, v := range list {
		if s, ok := v.(string); ok && s == want {
			return true
		}
	}
	return false
}

func schemaFromParam(pm map[string]any) map[string]any {
	if sch, ok := pm["schema"].(map[string]any); ok {
		return sch
	}
	t := asString(pm["type"])
	if t == "" {
		return nil
	}
	m := map[string]any{"type": t}
	if it, ok := pm["items"].(map[string]any); ok {
		m["items"] = it
	}
	if f := asString(pm["format"]); f != "" {
		m["format"] = f
	}
	return m
}

func formDataFromBodyParam(pm map[string]any) map[string]any {
	name := asString(pm["name"])
	if name == "" {
		name = "field"
	}
	out := map[string]any{"in": "formData", "name": name}
	if desc := asString(pm["description"]); desc != "" {
		out["description"] = desc
	}
	if req, ok := pm["required"].(bool); ok {
		out["required"] = req
	}
	var typ, format string
	var items any
	if sch, ok := pm["schema"].(map[string]any); ok {
		typ = asString(sch["type"])
		format = asString(sch["format"])
		items = sch["items"]
		if typ == "" && sch["$ref"] != nil {
			// A referenced object has no formData form.
			typ = "string"
		}
	}
	if typ == "" {
		typ = asString(pm["type"])
		format = asString(pm["format"])
		items = pm["items"]
	}
	if typ == "" {
		typ = "string"
	}
	out["type"] = typ
	if items != nil {
		out["items"] = items
	}
	if format != "" {
		out["format"] = format
	}
	return out
}
