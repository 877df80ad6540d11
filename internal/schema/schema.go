// ABOUTME: JSON-Schema subset used to describe tool arguments.
// ABOUTME: Provides builders for tool definitions and stable JSON encoding for tools/list.

package schema

import (
	"encoding/json"
	"maps"
	"slices"
)

// Schema types understood by the validator.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// Formats understood by the validator.
const (
	FormatDate  = "date"
	FormatEmail = "email"
)

// Schema is one node of a tool's input schema.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Format      string             `json:"format,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Minimum     *float64           `json:"minimum,omitempty"`
	Maximum     *float64           `json:"maximum,omitempty"`
	Default     any                `json:"default,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`

	// Ranges are cross-field "from <= to" constraints checked after every
	// property has been validated. They are not part of the wire schema.
	Ranges []Range `json:"-"`
}

// Range pairs a lower-bound property with an upper-bound property.
type Range struct {
	From string
	To   string
}

// MarshalJSON always emits properties and required for object schemas so
// clients see {"type":"object","properties":{},"required":[]} rather than a
// bare type.
func (s *Schema) MarshalJSON() ([]byte, error) {
	type plain Schema
	if s.Type != TypeObject {
		return json.Marshal((*plain)(s))
	}

	props := s.Properties
	if props == nil {
		props = map[string]*Schema{}
	}
	required := s.Required
	if required == nil {
		required = []string{}
	}

	return json.Marshal(struct {
		*plain
		Properties map[string]*Schema `json:"properties"`
		Required   []string           `json:"required"`
	}{
		plain:      (*plain)(s),
		Properties: props,
		Required:   required,
	})
}

// Object returns an object schema with the given properties and required names.
func Object(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}

// String returns a string schema.
func String(description string) *Schema {
	return &Schema{Type: TypeString, Description: description}
}

// Number returns a number schema.
func Number(description string) *Schema {
	return &Schema{Type: TypeNumber, Description: description}
}

// Integer returns an integer schema.
func Integer(description string) *Schema {
	return &Schema{Type: TypeInteger, Description: description}
}

// Boolean returns a boolean schema.
func Boolean(description string) *Schema {
	return &Schema{Type: TypeBoolean, Description: description}
}

// Date returns a string schema that must parse as a date.
func Date(description string) *Schema {
	return &Schema{Type: TypeString, Format: FormatDate, Description: description}
}

// Email returns a string schema that must hold one mail address.
func Email(description string) *Schema {
	return &Schema{Type: TypeString, Format: FormatEmail, Description: description}
}

// OneOf restricts the schema to the given values.
func (s *Schema) OneOf(values ...string) *Schema {
	s.Enum = values
	return s
}

// Min sets an inclusive lower bound.
func (s *Schema) Min(v float64) *Schema {
	s.Minimum = &v
	return s
}

// Max sets an inclusive upper bound.
func (s *Schema) Max(v float64) *Schema {
	s.Maximum = &v
	return s
}

// WithDefault sets the value used when the argument is absent.
func (s *Schema) WithDefault(v any) *Schema {
	s.Default = v
	return s
}

// WithRange adds a cross-field constraint requiring to >= from when both are supplied.
func (s *Schema) WithRange(from, to string) *Schema {
	s.Ranges = append(s.Ranges, Range{From: from, To: to})
	return s
}

// Clone returns a deep copy so callers can hand out schemas without exposing
// the registered instance to mutation.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	c := *s
	c.Enum = slices.Clone(s.Enum)
	c.Required = slices.Clone(s.Required)
	c.Ranges = slices.Clone(s.Ranges)
	if s.Minimum != nil {
		v := *s.Minimum
		c.Minimum = &v
	}
	if s.Maximum != nil {
		v := *s.Maximum
		c.Maximum = &v
	}
	if s.Properties != nil {
		c.Properties = make(map[string]*Schema, len(s.Properties))
		for name, p := range s.Properties {
			c.Properties[name] = p.Clone()
		}
	}
	c.Items = s.Items.Clone()
	return &c
}

// PropertyNames returns the declared property names in sorted order.
func (s *Schema) PropertyNames() []string {
	return slices.Sorted(maps.Keys(s.Properties))
}
