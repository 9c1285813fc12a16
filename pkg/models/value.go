package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a JSON-compatible structured value: null, bool, number, string,
// list or map. The zero Value is null.
//
// Integral numbers are held as int64 and all others as float64, so two
// numbers are equal only when they denote exactly the same value.
type Value struct {
	kind  Kind
	b     bool
	isInt bool
	i     int64
	n     float64
	s     string
	l     []Value
	m     Map
}

// Map is a string-keyed mapping of Values. Stage configuration, stage data,
// rule conditions, rule actions and evaluation contexts are all Maps.
type Map map[string]Value

func Null() Value               { return Value{} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func Int(i int64) Value         { return Value{kind: KindNumber, isInt: true, i: i} }
func String(s string) Value     { return Value{kind: KindString, s: s} }
func List(items ...Value) Value { return Value{kind: KindList, l: items} }
func Object(m Map) Value        { return Value{kind: KindMap, m: m} }

// Number returns a numeric Value. Integral values within the int64 range
// are stored as integers.
func Number(n float64) Value {
	if n == math.Trunc(n) && n >= -(1<<63) && n < 1<<63 {
		return Int(int64(n))
	}
	return Value{kind: KindNumber, n: n}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool, AsString, AsList and AsMap report the payload when the Value
// holds that variant.
func (v Value) AsBool() (bool, bool)     { return v.b, v.kind == KindBool }
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }
func (v Value) AsList() ([]Value, bool)  { return v.l, v.kind == KindList }
func (v Value) AsMap() (Map, bool)       { return v.m, v.kind == KindMap }

// AsNumber reports the numeric payload as a float64, which may round
// integers beyond 2^53.
func (v Value) AsNumber() (float64, bool) {
	if v.isInt {
		return float64(v.i), true
	}
	return v.n, v.kind == KindNumber
}

// AsInt reports the payload of an integral number.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindNumber && v.isInt }

// Equal reports strict equality: both values hold the same variant and the
// same payload. Lists compare element-wise in order, maps key-wise.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		if v.isInt != o.isInt {
			return false
		}
		if v.isInt {
			return v.i == o.i
		}
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.l) != len(o.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(o.l[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.m.Equal(o.m)
	}
	return false
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.l))
		for i := range v.l {
			items[i] = v.l[i].Clone()
		}
		return Value{kind: KindList, l: items}
	case KindMap:
		return Value{kind: KindMap, m: v.m.Clone()}
	}
	return v
}

// Interface converts the Value to plain Go data (nil, bool, int64, float64,
// string, []any, map[string]any).
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if v.isInt {
			return v.i
		}
		return v.n
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.l))
		for i := range v.l {
			out[i] = v.l[i].Interface()
		}
		return out
	case KindMap:
		return v.m.Interface()
	}
	return nil
}

func (v Value) String() string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%s>", v.kind)
	}
	return string(b)
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromInterface converts decoded JSON data (or equivalent Go values) into a
// Value.
func FromInterface(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case []any:
		items := make([]Value, len(t))
		for i := range t {
			item, err := FromInterface(t[i])
			if err != nil {
				return Value{}, err
			}
			items[i] = item
		}
		return List(items...), nil
	case map[string]any:
		m, err := MapFromInterface(t)
		if err != nil {
			return Value{}, err
		}
		return Object(m), nil
	case Map:
		return Object(t), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", x)
}

// MapFromInterface converts a decoded JSON object into a Map. A nil input
// yields a nil Map.
func MapFromInterface(x any) (Map, error) {
	switch t := x.(type) {
	case nil:
		return nil, nil
	case Map:
		return t, nil
	case map[string]any:
		m := make(Map, len(t))
		for k, raw := range t {
			v, err := FromInterface(raw)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = v
		}
		return m, nil
	}
	return nil, fmt.Errorf("expected a JSON object, got %T", x)
}

// Clone returns a deep copy. Cloning nil yields nil.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// Equal reports whether both maps hold the same keys with strictly equal
// values.
func (m Map) Equal(o Map) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Merge copies every key of src into m, overwriting existing keys. Keys
// absent from src are preserved. m must be non-nil when src is non-empty.
func (m Map) Merge(src Map) {
	for k, v := range src {
		m[k] = v.Clone()
	}
}

// Matches evaluates m as a condition set against ctx: every key of m must be
// present in ctx with a strictly equal value. An empty condition set matches
// any context.
func (m Map) Matches(ctx Map) bool {
	for k, want := range m {
		got, ok := ctx[k]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// Keys returns the map keys in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Interface converts the Map to map[string]any.
func (m Map) Interface() map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}
