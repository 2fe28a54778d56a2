package domain

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// IsNumeric reports whether values of the type compare as numbers.
func (t FieldType) IsNumeric() bool {
	return t == FieldTypeInteger || t == FieldTypeFloat
}

// CoerceValue converts a raw parameter value into the comparable Go value for
// a field of type t: float64 for numeric fields, bool, time.Time, or the raw
// string for everything else. ok is false when raw cannot represent such a
// value; callers treat that as a condition that matches nothing.
func CoerceValue(t FieldType, raw string) (any, bool) {
	switch {
	case t.IsNumeric():
		v, err := cast.ToFloat64E(strings.TrimSpace(raw))
		if err != nil {
			return nil, false
		}
		return v, true
	case t == FieldTypeBoolean:
		v, err := cast.ToBoolE(strings.TrimSpace(raw))
		if err != nil {
			return nil, false
		}
		return v, true
	case t == FieldTypeTimestamp:
		v, err := cast.ToTimeE(strings.TrimSpace(raw))
		if err != nil {
			return nil, false
		}
		return v, true
	default:
		return raw, true
	}
}

// PropertyValue converts a stored property into the same comparable form as
// CoerceValue.
func PropertyValue(t FieldType, v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch {
	case t.IsNumeric():
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, false
		}
		return f, true
	case t == FieldTypeBoolean:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, false
		}
		return b, true
	case t == FieldTypeTimestamp:
		ts, err := cast.ToTimeE(v)
		if err != nil {
			return nil, false
		}
		return ts, true
	default:
		return PropertyText(v), true
	}
}

// PropertyText renders a stored property as text the way pattern operators
// see it.
func PropertyText(v any) string {
	if v == nil {
		return ""
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// CompareValues orders two values produced by CoerceValue or PropertyValue.
// Mismatched types fall back to comparing their text forms.
func CompareValues(a, b any) int {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return cmp.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	}
	return strings.Compare(PropertyText(a), PropertyText(b))
}
