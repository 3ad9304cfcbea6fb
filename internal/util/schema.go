package util

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Schema is the subset of JSON schema that structured model answers are
// described and checked with. It marshals to the standard keywords.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// FieldError reports a decoded object that does not satisfy its schema.
type FieldError struct {
	Field   string
	Value   any
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Message)
}

// SchemaOf derives a schema from v's type using its json tags. Nested structs
// become object schemas and slices carry an items schema. Fields tagged
// omitempty and pointer fields are optional; everything else is required.
// A "description" struct tag is copied into the field schema.
func SchemaOf(v any) *Schema {
	return schemaFor(reflect.TypeOf(v))
}

func schemaFor(t reflect.Type) *Schema {
	if t == nil {
		return &Schema{Type: "object"}
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
	case reflect.Slice, reflect.Array:
		return &Schema{Type: "array", Items: schemaFor(t.Elem())}
	default:
		return &Schema{Type: jsonType(t.Kind())}
	}

	s := &Schema{Type: "object", Properties: map[string]*Schema{}}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" && opts == "" {
			continue
		}
		if name == "" {
			name = f.Name
		}

		fs := schemaFor(f.Type)
		fs.Description = f.Tag.Get("description")
		s.Properties[name] = fs

		if f.Type.Kind() != reflect.Ptr && !slices.Contains(strings.Split(opts, ","), "omitempty") {
			s.Required = append(s.Required, name)
		}
	}
	return s
}

func jsonType(k reflect.Kind) string {
	switch k {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Map:
		return "object"
	default:
		return "string"
	}
}

// Check verifies a decoded JSON object against s: every required field must
// be present and top-level values must have the declared type. Unknown fields
// and nested objects are not checked.
func (s *Schema) Check(obj map[string]any) error {
	for _, name := range s.Required {
		if _, ok := obj[name]; !ok {
			return &FieldError{Field: name, Message: "required field is missing"}
		}
	}
	for name, v := range obj {
		prop, ok := s.Properties[name]
		if !ok || v == nil {
			continue
		}
		if !matches(v, prop.Type) {
			return &FieldError{Field: name, Value: v, Message: fmt.Sprintf("expected %s, got %T", prop.Type, v)}
		}
	}
	return nil
}

// matches reports whether a value produced by encoding/json has JSON type t.
func matches(v any, t string) bool {
	switch t {
	case "string":
		_, ok := v.(string)
		return ok
	case "integer":
		f, ok := v.(float64)
		return ok && f == float64(int64(f))
	case "number":
		_, ok := v.(float64)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}
