// ABOUTME: Validates and coerces tool arguments against a Schema.
// ABOUTME: Collects every field violation and decodes coerced maps into typed structs.

package schema

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"net/mail"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DateLayout is the canonical form dates are normalized to after validation.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// FieldError describes one argument that failed validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when arguments do not satisfy a schema.
type ValidationError struct {
	Fields []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid arguments: " + strings.Join(parts, "; ")
}

// Validate checks args against s and returns a new map holding coerced values
// with defaults applied. Properties not declared in s are copied through
// untouched. The input map is never modified.
func Validate(s *Schema, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	if s == nil {
		return maps.Clone(args), nil
	}

	v := &validator{}
	out := v.object("", s, args)
	if len(v.errs) > 0 {
		return nil, &ValidationError{Fields: v.errs}
	}
	return out, nil
}

// ParseDate parses the date forms accepted for format "date".
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Decode copies a validated argument map into a typed struct using json tags.
func Decode(args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("creating argument decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("decoding arguments: %w", err)
	}
	return nil
}

type validator struct {
	errs []FieldError
}

func (v *validator) fail(field, format string, args ...any) {
	v.errs = append(v.errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) object(prefix string, s *Schema, in map[string]any) map[string]any {
	out := maps.Clone(in)
	if out == nil {
		out = map[string]any{}
	}

	for _, name := range s.Required {
		if val, ok := in[name]; !ok || val == nil {
			v.fail(prefix+name, "is required")
		}
	}

	for _, name := range s.PropertyNames() {
		prop := s.Properties[name]
		val, ok := in[name]
		if !ok || val == nil || (blankOptional(prop, val) && !slices.Contains(s.Required, name)) {
			delete(out, name)
			if prop.Default != nil {
				out[name] = prop.Default
			}
			continue
		}
		if coerced, ok := v.value(prefix+name, prop, val); ok {
			out[name] = coerced
		}
	}

	for _, r := range s.Ranges {
		v.checkRange(prefix, s, r, out)
	}
	return out
}

// blankOptional reports whether val is "" for an enum or formatted string.
// Optional properties treat it as absent.
func blankOptional(s *Schema, val any) bool {
	str, ok := val.(string)
	return ok && str == "" && s.Type == TypeString && (len(s.Enum) > 0 || s.Format != "")
}

func (v *validator) value(field string, s *Schema, val any) (any, bool) {
	switch s.Type {
	case TypeString:
		return v.stringValue(field, s, val)
	case TypeNumber, TypeInteger:
		return v.numberValue(field, s, val)
	case TypeBoolean:
		b, ok := toBool(val)
		if !ok {
			v.fail(field, "must be a boolean")
		}
		return b, ok
	case TypeObject:
		m, ok := val.(map[string]any)
		if !ok {
			v.fail(field, "must be an object")
			return nil, false
		}
		before := len(v.errs)
		out := v.object(field+".", s, m)
		return out, len(v.errs) == before
	case TypeArray:
		items, ok := val.([]any)
		if !ok {
			v.fail(field, "must be an array")
			return nil, false
		}
		if s.Items == nil {
			return items, true
		}
		out := make([]any, 0, len(items))
		valid := true
		for i, item := range items {
			c, ok := v.value(fmt.Sprintf("%s[%d]", field, i), s.Items, item)
			valid = valid && ok
			out = append(out, c)
		}
		return out, valid
	default:
		return val, true
	}
}

func (v *validator) stringValue(field string, s *Schema, val any) (any, bool) {
	str, ok := val.(string)
	if !ok {
		v.fail(field, "must be a string")
		return nil, false
	}

	if len(s.Enum) > 0 && !slices.Contains(s.Enum, str) {
		v.fail(field, "must be one of: %s", strings.Join(s.Enum, ", "))
		return nil, false
	}

	switch s.Format {
	case FormatDate:
		t, err := ParseDate(str)
		if err != nil {
			v.fail(field, "must be a valid date (YYYY-MM-DD)")
			return nil, false
		}
		return t.Format(DateLayout), true
	case FormatEmail:
		addr, err := mail.ParseAddress(str)
		if err != nil || addr.Address != strings.TrimSpace(str) {
			v.fail(field, "must be a valid email address")
			return nil, false
		}
		return addr.Address, true
	}
	return str, true
}

func (v *validator) numberValue(field string, s *Schema, val any) (any, bool) {
	f, ok := toFloat(val)
	if !ok {
		v.fail(field, "must be a %s", s.Type)
		return nil, false
	}
	if s.Type == TypeInteger && f != math.Trunc(f) {
		v.fail(field, "must be an integer")
		return nil, false
	}
	if s.Minimum != nil && f < *s.Minimum {
		v.fail(field, "must be at least %s", formatNumber(*s.Minimum))
		return nil, false
	}
	if s.Maximum != nil && f > *s.Maximum {
		v.fail(field, "must be at most %s", formatNumber(*s.Maximum))
		return nil, false
	}
	if s.Type == TypeInteger {
		return int(f), true
	}
	return f, true
}

func (v *validator) checkRange(prefix string, s *Schema, r Range, out map[string]any) {
	from, fromOK := out[r.From]
	to, toOK := out[r.To]
	if !fromOK || !toOK {
		return
	}
	// Skip ranges whose ends already failed validation; they carry their own error.
	for _, e := range v.errs {
		if e.Field == prefix+r.From || e.Field == prefix+r.To {
			return
		}
	}

	var inverted bool
	fromSchema := s.Properties[r.From]
	if fromSchema != nil && fromSchema.Format == FormatDate {
		a, errA := ParseDate(fmt.Sprint(from))
		b, errB := ParseDate(fmt.Sprint(to))
		inverted = errA == nil && errB == nil && b.Before(a)
	} else {
		a, okA := toFloat(from)
		b, okB := toFloat(to)
		inverted = okA && okB && b < a
	}

	if inverted {
		v.fail(prefix+r.To, "must be greater than or equal to %s", r.From)
	}
}

func toFloat(val any) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}

func toBool(val any) (bool, bool) {
	switch b := val.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
	case float64:
		if b == 0 || b == 1 {
			return b == 1, true
		}
	case int:
		if b == 0 || b == 1 {
			return b == 1, true
		}
	}
	return false, false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
