package sanitize

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Type tags the variant held by a Value.
type Type uint8

const (
	TypeNull Type = iota
	TypeBool
	TypeNumber
	TypeString
	TypeMap
	TypeList
)

// Value is a decoded JSON document as a closed variant. The zero Value is null.
type Value struct {
	typ Type
	b   bool
	n   json.Number
	s   string
	m   map[string]Value
	l   []Value
}

func Null() Value                  { return Value{} }
func Bool(b bool) Value            { return Value{typ: TypeBool, b: b} }
func Number(n json.Number) Value   { return Value{typ: TypeNumber, n: n} }
func String(s string) Value        { return Value{typ: TypeString, s: s} }
func Map(m map[string]Value) Value { return Value{typ: TypeMap, m: m} }
func List(l []Value) Value         { return Value{typ: TypeList, l: l} }

func (v Value) Type() Type               { return v.typ }
func (v Value) Fields() map[string]Value { return v.m }
func (v Value) Items() []Value           { return v.l }

// Str returns the string held by v, if any.
func (v Value) Str() (string, bool) { return v.s, v.typ == TypeString }

// FromAny converts the output of encoding/json (with or without UseNumber)
// into a Value. Go ints and floats are accepted as well.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case float64:
		return Number(json.Number(strconv.FormatFloat(t, 'f', -1, 64))), nil
	case float32:
		return Number(json.Number(strconv.FormatFloat(float64(t), 'f', -1, 32))), nil
	case int:
		return Number(json.Number(strconv.Itoa(t))), nil
	case int64:
		return Number(json.Number(strconv.FormatInt(t, 10))), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, child := range t {
			cv, err := FromAny(child)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			m[k] = cv
		}
		return Map(m), nil
	case []any:
		l := make([]Value, len(t))
		for i, child := range t {
			cv, err := FromAny(child)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			l[i] = cv
		}
		return List(l), nil
	default:
		return Value{}, fmt.Errorf("unsupported type %T", x)
	}
}

// Any converts v back into plain Go values: nil, bool, json.Number, string,
// map[string]any and []any.
func (v Value) Any() any {
	switch v.typ {
	case TypeBool:
		return v.b
	case TypeNumber:
		return v.n
	case TypeString:
		return v.s
	case TypeMap:
		m := make(map[string]any, len(v.m))
		for k, child := range v.m {
			m[k] = child.Any()
		}
		return m
	case TypeList:
		l := make([]any, len(v.l))
		for i, child := range v.l {
			l[i] = child.Any()
		}
		return l
	default:
		return nil
	}
}
