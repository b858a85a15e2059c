// Package value holds the loosely-typed argument value handed to tool handlers.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies which member of the Value union is populated
type Kind int

const (
	Null Kind = iota
	Bool
	Int32
	Int64
	Float
	String
	Array
	Object
)

var kindNames = [...]string{"null", "bool", "int32", "int64", "float", "string", "array", "object"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// TypeError is returned by accessors when the value has a different kind
type TypeError struct {
	Want string
	Got  Kind
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Want, e.Got)
}

// Value is a tagged union over the JSON value kinds.
// The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Value
	keys []string
	obj  map[string]Value
}

// NullValue returns the null value
func NullValue() Value { return Value{} }

// BoolOf wraps a boolean
func BoolOf(b bool) Value { return Value{kind: Bool, b: b} }

// Int32Of wraps a 32-bit integer
func Int32Of(i int32) Value { return Value{kind: Int32, i: int64(i)} }

// Int64Of wraps a 64-bit integer
func Int64Of(i int64) Value { return Value{kind: Int64, i: i} }

// FloatOf wraps a double
func FloatOf(f float64) Value { return Value{kind: Float, f: f} }

// StringOf wraps a string
func StringOf(s string) Value { return Value{kind: String, s: s} }

// ArrayOf builds an array value
func ArrayOf(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: Array, arr: items}
}

// Member is a key/value pair used to build objects
type Member struct {
	Key   string
	Value Value
}

// ObjectOf builds an object value. Later duplicate keys replace earlier ones
// but keep the first position.
func ObjectOf(members ...Member) Value {
	v := Value{kind: Object, obj: make(map[string]Value, len(members))}
	for _, m := range members {
		v.put(m.Key, m.Value)
	}
	return v
}

// EmptyObject returns {}
func EmptyObject() Value {
	return ObjectOf()
}

func (v *Value) put(key string, val Value) {
	if _, exists := v.obj[key]; !exists {
		v.keys = append(v.keys, key)
	}
	v.obj[key] = val
}

// Kind reports the populated member
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null
func (v Value) IsNull() bool { return v.kind == Null }

// Str returns the string payload
func (v Value) Str() (string, error) {
	if v.kind != String {
		return "", &TypeError{Want: "string", Got: v.kind}
	}
	return v.s, nil
}

// Bool returns the boolean payload
func (v Value) Bool() (bool, error) {
	if v.kind != Bool {
		return false, &TypeError{Want: "bool", Got: v.kind}
	}
	return v.b, nil
}

// Int returns an Int32 or Int64 payload widened to int64
func (v Value) Int() (int64, error) {
	if v.kind != Int32 && v.kind != Int64 {
		return 0, &TypeError{Want: "integer", Got: v.kind}
	}
	return v.i, nil
}

// Float returns any numeric payload as float64
func (v Value) Float() (float64, error) {
	switch v.kind {
	case Int32, Int64:
		return float64(v.i), nil
	case Float:
		return v.f, nil
	default:
		return 0, &TypeError{Want: "number", Got: v.kind}
	}
}

// Array returns the elements of an array value
func (v Value) Array() ([]Value, error) {
	if v.kind != Array {
		return nil, &TypeError{Want: "array", Got: v.kind}
	}
	return v.arr, nil
}

// Keys returns object member names in source order
func (v Value) Keys() ([]string, error) {
	if v.kind != Object {
		return nil, &TypeError{Want: "object", Got: v.kind}
	}
	return append([]string(nil), v.keys...), nil
}

// Field looks up an object member. ok is false when the member is absent;
// err is set when v is not an object.
func (v Value) Field(name string) (field Value, ok bool, err error) {
	if v.kind != Object {
		return Value{}, false, &TypeError{Want: "object", Got: v.kind}
	}
	field, ok = v.obj[name]
	return field, ok, nil
}

// Len is the element count of arrays and objects, 0 otherwise
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return len(v.keys)
	default:
		return 0
	}
}

// Interface converts v to plain Go values: map[string]any, []any,
// int32, int64, float64, string, bool or nil
func (v Value) Interface() any {
	switch v.kind {
	case Bool:
		return v.b
	case Int32:
		return int32(v.i)
	case Int64:
		return v.i
	case Float:
		return v.f
	case String:
		return v.s
	case Array:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case Object:
		out := make(map[string]any, len(v.keys))
		for _, k := range v.keys {
			out[k] = v.obj[k].Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes v, keeping object member order
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(v.b))
	case Int32, Int64:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case Float, String:
		js, err := json.Marshal(v.Interface())
		if err != nil {
			return err
		}
		buf.Write(js)
	case Array:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(k)
			buf.Write(key)
			buf.WriteByte(':')
			if err := v.obj[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}
