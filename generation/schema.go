package generation

import (
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// Type is the JSON type a field is expected to hold.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Field describes one named value of a structured response.
type Field struct {
	Name     string
	Type     Type
	Required bool
	Items    *Field  // element description for arrays
	Fields   []Field // members for objects
}

// Schema is the structural contract a model response is validated against.
type Schema struct {
	Name   string
	Fields []Field
	// ArrayKey is the field a bare top-level array is wrapped into before validation.
	ArrayKey string
}

// Object declares a schema with the given top-level fields.
func Object(name string, fields ...Field) Schema {
	return Schema{Name: name, Fields: fields}
}

// WithArrayKey sets the field that receives a bare top-level array.
func (s Schema) WithArrayKey(key string) Schema {
	s.ArrayKey = key
	return s
}

func String(name string) Field  { return Field{Name: name, Type: TypeString, Required: true} }
func Number(name string) Field  { return Field{Name: name, Type: TypeNumber, Required: true} }
func Integer(name string) Field { return Field{Name: name, Type: TypeInteger, Required: true} }
func Bool(name string) Field    { return Field{Name: name, Type: TypeBoolean, Required: true} }

// ArrayOf declares a required array whose elements match items.
func ArrayOf(name string, items Field) Field {
	return Field{Name: name, Type: TypeArray, Required: true, Items: &items}
}

// ObjectField declares a required nested object.
func ObjectField(name string, fields ...Field) Field {
	return Field{Name: name, Type: TypeObject, Required: true, Fields: fields}
}

// Optional marks the field as not required.
func (f Field) Optional() Field {
	f.Required = false
	return f
}

// SchemaError reports the first field that failed validation.
type SchemaError struct {
	Schema string
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s: field %s: %s", e.Schema, e.Path, e.Reason)
}

// Validate checks a JSON document field by field. Unknown fields are ignored.
func (s Schema) Validate(doc []byte) error {
	if !gjson.ValidBytes(doc) {
		return &SchemaError{Schema: s.Name, Path: "$", Reason: "invalid JSON"}
	}
	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return &SchemaError{Schema: s.Name, Path: "$", Reason: "expected object"}
	}
	return s.validateFields("", root, s.Fields)
}

func (s Schema) validateFields(prefix string, obj gjson.Result, fields []Field) error {
	for _, f := range fields {
		path := joinPath(prefix, f.Name)
		v := obj.Get(escapeKey(f.Name))
		if !v.Exists() || v.Type == gjson.Null {
			if f.Required {
				return &SchemaError{Schema: s.Name, Path: path, Reason: "missing required value"}
			}
			continue
		}
		if err := s.validateValue(path, v, f); err != nil {
			return err
		}
	}
	return nil
}

func (s Schema) validateValue(path string, v gjson.Result, f Field) error {
	mismatch := func() error {
		return &SchemaError{Schema: s.Name, Path: path, Reason: fmt.Sprintf("expected %s, got %s", f.Type, describe(v))}
	}
	switch f.Type {
	case TypeString:
		if v.Type != gjson.String {
			return mismatch()
		}
	case TypeNumber:
		if v.Type != gjson.Number {
			return mismatch()
		}
	case TypeInteger:
		if v.Type != gjson.Number || v.Num != math.Trunc(v.Num) {
			return mismatch()
		}
	case TypeBoolean:
		if v.Type != gjson.True && v.Type != gjson.False {
			return mismatch()
		}
	case TypeArray:
		if !v.IsArray() {
			return mismatch()
		}
		if f.Items == nil {
			return nil
		}
		var err error
		idx := 0
		v.ForEach(func(_, item gjson.Result) bool {
			itemPath := fmt.Sprintf("%s[%d]", path, idx)
			idx++
			if item.Type == gjson.Null {
				err = &SchemaError{Schema: s.Name, Path: itemPath, Reason: "null element"}
				return false
			}
			err = s.validateValue(itemPath, item, *f.Items)
			return err == nil
		})
		return err
	case TypeObject:
		if !v.IsObject() {
			return mismatch()
		}
		return s.validateFields(path, v, f.Fields)
	default:
		return &SchemaError{Schema: s.Name, Path: path, Reason: fmt.Sprintf("unknown type %q", f.Type)}
	}
	return nil
}

func describe(v gjson.Result) string {
	switch {
	case v.IsArray():
		return "array"
	case v.IsObject():
		return "object"
	case v.Type == gjson.True, v.Type == gjson.False:
		return "boolean"
	default:
		return strings.ToLower(v.Type.String())
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// escapeKey protects gjson path metacharacters in a literal key.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
