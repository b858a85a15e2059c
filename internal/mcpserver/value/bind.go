package value

import (
	"bytes"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned by Bind when the input is not a JSON document
var ErrInvalidJSON = errors.New("invalid JSON")

// Bind converts a raw JSON document into a Value.
// Empty input binds to an empty object.
func Bind(raw []byte) (Value, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return EmptyObject(), nil
	}
	if !gjson.ValidBytes(raw) {
		return Value{}, ErrInvalidJSON
	}
	return FromResult(gjson.ParseBytes(raw)), nil
}

// FromResult converts an already parsed JSON value. Numbers take the
// narrowest of Int32, Int64 and Float that parses the literal.
func FromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.True:
		return BoolOf(true)
	case gjson.False:
		return BoolOf(false)
	case gjson.Number:
		return number(r)
	case gjson.String:
		return StringOf(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			items := make([]Value, 0)
			r.ForEach(func(_, item gjson.Result) bool {
				items = append(items, FromResult(item))
				return true
			})
			return ArrayOf(items...)
		}
		obj := EmptyObject()
		r.ForEach(func(key, item gjson.Result) bool {
			obj.put(key.Str, FromResult(item))
			return true
		})
		return obj
	default:
		return NullValue()
	}
}

func number(r gjson.Result) Value {
	if i, err := strconv.ParseInt(r.Raw, 10, 32); err == nil {
		return Int32Of(int32(i))
	}
	if i, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
		return Int64Of(i)
	}
	if f, err := strconv.ParseFloat(r.Raw, 64); err == nil {
		return FloatOf(f)
	}
	return FloatOf(r.Num)
}
