// Package schema infers lightweight shape descriptors from JSON response
// bodies, extracts HATEOAS-style links, and recovers parameter hints from
// error bodies (the Schema Inferencer, component C).
package schema

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Descriptor is the tagged-shape result of ExtractSchema, serialized as a
// JSON object and stored verbatim on a Response row.
type Descriptor map[string]any

// ExtractSchemaFromBody parses body as JSON and extracts its shape. An
// empty/whitespace body or a parse failure yields an empty descriptor,
// matching extract_schema_from_body's "don't fail, just describe nothing"
// contract.
func ExtractSchemaFromBody(body string) Descriptor {
	if strings.TrimSpace(body) == "" {
		return Descriptor{}
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Descriptor{}
	}
	return ExtractSchema(v)
}

// ExtractSchema builds a tagged shape descriptor for an already-decoded
// JSON value. Containers recurse into their first element / all
// properties, matching core/schema_extractor.py field-for-field.
func ExtractSchema(v any) Descriptor {
	switch val := v.(type) {
	case nil:
		return Descriptor{"type": "null"}
	case bool:
		return Descriptor{"type": "boolean"}
	case json.Number:
		if isIntegerLiteral(string(val)) {
			return Descriptor{"type": "integer"}
		}
		return Descriptor{"type": "number"}
	case float64:
		// Reached only when callers build a Descriptor from an
		// already-decoded value (e.g. tests) rather than via
		// ExtractSchemaFromBody's json.Number decoding path.
		if val == float64(int64(val)) {
			return Descriptor{"type": "integer"}
		}
		return Descriptor{"type": "number"}
	case string:
		d := Descriptor{"type": "string"}
		if len(val) > 0 {
			d["example_length"] = len(val)
		}
		return d
	case []any:
		d := Descriptor{"type": "array", "length": len(val)}
		if len(val) > 0 {
			d["items"] = ExtractSchema(val[0])
		}
		return d
	case map[string]any:
		props := Descriptor{}
		for k, child := range val {
			props[k] = ExtractSchema(child)
		}
		return Descriptor{
			"type":        "object",
			"properties":  props,
			"field_count": len(val),
		}
	default:
		return Descriptor{"type": "unknown"}
	}
}

// isIntegerLiteral reports whether a JSON number's original literal text
// (as preserved by json.Number) has no fractional or exponent part, so
// "10.0" is correctly classified "number" rather than "integer" even
// though it has no fractional value — matching §4.4's distinction, which
// is lexical (does the literal carry a decimal point/exponent), not
// mathematical (is the value a whole number).
func isIntegerLiteral(s string) bool {
	return !strings.ContainsAny(s, ".eE")
}
