package tools

import (
	"reflect"
	"strings"
)

// BuildSchema generates a JSON Schema object from a struct value. Field
// names come from json tags; a jsonschema tag adds attributes:
//
//	type Args struct {
//	    Query string `json:"query" jsonschema:"description=Search text,required"`
//	}
//
// Supported attributes: description=<text>, required, enum=<a|b|c>, default=<v>.
// Descriptions must not contain commas.
func BuildSchema(v any) map[string]any {
	t := reflect.TypeOf(v)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return objectSchema(t)
}

func objectSchema(t reflect.Type) map[string]any {
	properties := make(map[string]any)
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		if tag := field.Tag.Get("json"); tag != "" {
			first, _, _ := strings.Cut(tag, ",")
			if first == "-" {
				continue
			}
			if first != "" {
				name = first
			}
		}

		prop := typeSchema(field.Type)
		if tag := field.Tag.Get("jsonschema"); tag != "" {
			if applySchemaTag(tag, prop) {
				required = append(required, name)
			}
		}
		properties[name] = prop
	}

	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func typeSchema(t reflect.Type) map[string]any {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": typeSchema(t.Elem())}
	case reflect.Struct:
		return objectSchema(t)
	default:
		return map[string]any{"type": "object"}
	}
}

// applySchemaTag copies tag attributes into schema and reports whether the
// field is required.
func applySchemaTag(tag string, schema map[string]any) bool {
	required := false
	for _, attr := range strings.Split(tag, ",") {
		attr = strings.TrimSpace(attr)
		key, val, _ := strings.Cut(attr, "=")
		switch key {
		case "required":
			required = true
		case "description":
			schema["description"] = val
		case "default":
			schema["default"] = val
		case "enum":
			parts := strings.Split(val, "|")
			enum := make([]any, len(parts))
			for i, p := range parts {
				enum[i] = p
			}
			schema["enum"] = enum
		}
	}
	return required
}
