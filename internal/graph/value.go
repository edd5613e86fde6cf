package graph

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// Kind is the dynamic type of a Value.
type Kind uint8

const (
	// KindInvalid is the zero Value. It is never stored.
	KindInvalid Kind = iota
	// KindString is a UTF-8 string.
	KindString
	// KindNumber is a float64.
	KindNumber
)

// Value is a scalar property value: a string or a number. Values are
// comparable, so they can be used directly as map keys and compared with ==.
type Value struct {
	kind Kind
	str  string
	num  float64
}

// String returns a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number returns a numeric value.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Int returns a numeric value holding i.
func Int(i int64) Value {
	return Number(float64(i))
}

// Kind reports the dynamic type of v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds a storable value, one that survives a
// round trip through the commit log unchanged.
//
// Not storable:
//   - the zero Value
//   - strings that are not valid UTF-8, which JSON would rewrite
//   - NaN and ±Inf, which JSON cannot encode
func (v Value) IsValid() bool {
	switch v.kind {
	case KindString:
		return utf8.ValidString(v.str)
	case KindNumber:
		return !math.IsNaN(v.num) && !math.IsInf(v.num, 0)
	}
	return false
}

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// String formats v for logs and error messages.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	}
	return "<invalid>"
}

// Compare orders values by kind first, then by content. It is the ordering
// used by the equality index.
func Compare(a, b Value) int {
	if c := cmp.Compare(a.kind, b.kind); c != 0 {
		return c
	}
	switch a.kind {
	case KindString:
		return cmp.Compare(a.str, b.str)
	case KindNumber:
		return cmp.Compare(a.num, b.num)
	}
	return 0
}

// MarshalJSON encodes v as a bare JSON string or number.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("cannot encode number %v", v.num)
		}
		return json.Marshal(v.num)
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes a JSON string or number. null decodes to the zero
// Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*v = Value{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("property value must be a string or number: %w", err)
		}
		*v = Number(f)
		return nil
	}
}
