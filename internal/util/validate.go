package util

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// ValidateParameters checks params against schema. Missing required fields and
// top level type mismatches are reported first so the error names the field;
// the compiled schemas, when given, then evaluate every other keyword.
func ValidateParameters(params map[string]any, schema map[string]any, compiled ...*jsonschema.Schema) error {
	for _, name := range requiredFields(schema) {
		if _, ok := params[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
	}

	properties, _ := schema["properties"].(map[string]any)

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := properties[name].(map[string]any)
		if !ok {
			continue // extra fields are allowed
		}

		want, _ := prop["type"].(string)
		if value := params[name]; !matchesType(value, want) {
			return &ValidationError{
				Field:   name,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", want, value),
			}
		}
	}

	for _, c := range compiled {
		if c == nil {
			continue
		}

		if result := c.Validate(params); !result.Valid {
			return &ValidationError{Message: "schema violation: " + describe(result.Errors)}
		}
	}

	return nil
}

func describe[V any](errs map[string]V) string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, len(keys))
	for i, k := range keys {
		msgs[i] = fmt.Sprintf("%s: %v", k, errs[k])
	}

	return strings.Join(msgs, "; ")
}

// requiredFields accepts []string from Go-built schemas and []any from decoded JSON.
func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}

		return out
	}

	return nil
}

// matchesType reports whether value fits the JSON schema type. Null and
// unknown types always match.
func matchesType(value any, want string) bool {
	if value == nil {
		return true
	}

	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		if f, ok := ToFloat(value); ok {
			return f == math.Trunc(f)
		}

		return false
	case "number":
		_, ok := ToFloat(value)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

// ToFloat converts any Go numeric value to float64.
func ToFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}

	return 0, false
}
