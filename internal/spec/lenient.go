package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// ParseLenient decodes JSON text that may carry // line comments, /* */ block
// comments or trailing commas. Strict decoding is attempted first. It reports
// false instead of an error when the text cannot be decoded either way.
func ParseLenient(text string) (any, bool) {
	if v, ok := decodeJSON(text); ok {
		return v, true
	}
	// A line comment must end in a newline, including one on the last line.
	std, err := hujson.Standardize([]byte(text + "\n"))
	if err != nil {
		return nil, false
	}
	return decodeJSON(string(std))
}

func decodeJSON(text string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	// Trailing garbage means the text was not a single JSON value.
	if strings.TrimSpace(text[dec.InputOffset():]) != "" {
		return nil, false
	}
	return v, true
}

// DecodeDocument decodes a fetched spec candidate body. YAML is used when the
// content type or the URL says so; everything else goes through ParseLenient.
func DecodeDocument(body []byte, contentType, location string) (map[string]any, error) {
	if isYAML(contentType, location) {
		var raw any
		if err := yaml.Unmarshal(body, &raw); err != nil {
			return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("decode yaml: %v", err), Location: location, Cause: err}
		}
		doc, ok := normalizeYAML(raw).(map[string]any)
		if !ok {
			return nil, &SpecError{Code: ParseError, Message: "decode yaml: document is not a mapping", Location: location}
		}
		return doc, nil
	}
	v, ok := ParseLenient(string(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))))
	if !ok {
		return nil, &SpecError{Code: ParseError, Message: "decode json: body is not valid JSON", Location: location}
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, &SpecError{Code: ParseError, Message: "decode json: document is not an object", Location: location}
	}
	return doc, nil
}

func isYAML(contentType, location string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "yaml") {
		return true
	}
	loc := strings.ToLower(location)
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	return strings.HasSuffix(loc, ".yaml") || strings.HasSuffix(loc, ".yml")
}

// normalizeYAML converts map[any]any nodes (e.g. unquoted status codes) into
// map[string]any so YAML and JSON documents share one shape.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeYAML(item)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case []any:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	default:
		return v
	}
}
