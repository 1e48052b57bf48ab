package tools

import (
	"reflect"
	"strings"
)

// JSONSchema is the declared shape of a tool's argument object.
type JSONSchema struct {
	Type        string                `json:"type,omitempty"`
	Description string                `json:"description,omitempty"`
	Properties  map[string]JSONSchema `json:"properties,omitempty"`
	Required    []string              `json:"required,omitempty"`
	Items       *JSONSchema           `json:"items,omitempty"`
	Enum        []string              `json:"enum,omitempty"`
}

// SchemaFor generates a JSON schema from a Go struct type.
// Supported struct tags:
//   - json:"name"        - field name in JSON
//   - desc:"description" - field description
//   - enum:"a,b,c"       - enum values
//
// Pointer fields and fields tagged omitempty are optional; everything
// else is required.
func SchemaFor[T any]() *JSONSchema {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return &JSONSchema{Type: "object"}
	}
	return schemaFromType(t)
}

func schemaFromType(t reflect.Type) *JSONSchema {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		return objectSchema(t)
	case reflect.Slice, reflect.Array:
		return &JSONSchema{Type: "array", Items: schemaFromType(t.Elem())}
	case reflect.String:
		return &JSONSchema{Type: "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &JSONSchema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &JSONSchema{Type: "number"}
	case reflect.Bool:
		return &JSONSchema{Type: "boolean"}
	case reflect.Map:
		return &JSONSchema{Type: "object"}
	case reflect.Interface:
		return &JSONSchema{}
	default:
		return &JSONSchema{Type: "string"}
	}
}

func objectSchema(t reflect.Type) *JSONSchema {
	schema := &JSONSchema{
		Type:       "object",
		Properties: make(map[string]JSONSchema),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		name := field.Name
		optional := field.Type.Kind() == reflect.Ptr
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, part := range parts[1:] {
				if part == "omitempty" {
					optional = true
				}
			}
		}

		fieldSchema := schemaFromType(field.Type)
		if desc := field.Tag.Get("desc"); desc != "" {
			fieldSchema.Description = desc
		}
		if enum := field.Tag.Get("enum"); enum != "" {
			fieldSchema.Enum = splitEnumTag(enum)
		}

		schema.Properties[name] = *fieldSchema
		if !optional {
			schema.Required = append(schema.Required, name)
		}
	}

	return schema
}

func splitEnumTag(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
