package schema

import (
	"encoding"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotStruct is returned when an input type is not a struct (or pointer to one)
	ErrNotStruct = errors.New("input type must be a struct")

	// ErrNilType is returned when no input type was supplied
	ErrNilType = errors.New("input type is nil")
)

var (
	timeType          = reflect.TypeOf(time.Time{})
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

var (
	cache   = make(map[reflect.Type]*Node)
	cacheMu sync.RWMutex
)

// For returns the schema of t, inferring it on first use and caching the result.
// Repeated calls with the same type return the same *Node.
func For(t reflect.Type) (*Node, error) {
	cacheMu.RLock()
	n, ok := cache[t]
	cacheMu.RUnlock()
	if ok {
		return n, nil
	}

	n, err := Infer(t)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if existing, ok := cache[t]; ok {
		return existing, nil
	}
	cache[t] = n
	return n, nil
}

// Of is For applied to the dynamic type of v
func Of(v any) (*Node, error) {
	return For(reflect.TypeOf(v))
}

// Infer builds an object schema from the exported fields of struct type t.
// It is pure: the same type always yields an equal Node.
func Infer(t reflect.Type) (*Node, error) {
	if t == nil {
		return nil, ErrNilType
	}

	t = indirect(t)
	if t.Kind() != reflect.Struct || t == timeType {
		return nil, errors.Wrapf(ErrNotStruct, "got %s", t)
	}

	root := NewObject()
	addFields(root, t)
	return root, nil
}

func addFields(root *Node, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)

		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		// untagged embedded structs are flattened, as encoding/json does
		if f.Anonymous && name == "" {
			if ft := indirect(f.Type); ft.Kind() == reflect.Struct && ft != timeType {
				addFields(root, ft)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}

		node := nodeFor(f.Type)
		node.Description = describe(f)
		root.Set(name, node)
	}
}

// nodeFor maps a field type to its schema node. Timestamps and named types
// with a text encoding are checked before the underlying kind.
func nodeFor(t reflect.Type) *Node {
	t = indirect(t)

	if t == timeType {
		return DateTime("")
	}
	if t.Name() != "" && isText(t) {
		return String("")
	}

	switch t.Kind() {
	case reflect.String:
		return String("")
	case reflect.Bool:
		return Boolean("")
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Integer("")
	case reflect.Float32, reflect.Float64:
		return Number("")
	case reflect.Slice, reflect.Array:
		return Array("")
	default:
		return Object("")
	}
}

func isText(t reflect.Type) bool {
	return t.Implements(textMarshalerType) || reflect.PointerTo(t).Implements(textMarshalerType)
}

// describe reads a field description from `jsonschema:"description=..."`
// or a plain `description:"..."` tag. The description key must come last in
// the jsonschema tag; it runs to the end of the tag and may contain commas.
func describe(f reflect.StructField) string {
	if tag, ok := f.Tag.Lookup("jsonschema"); ok {
		const key = "description="
		if strings.HasPrefix(tag, key) {
			return tag[len(key):]
		}
		if _, desc, found := strings.Cut(tag, ","+key); found {
			return desc
		}
	}
	return f.Tag.Get("description")
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
