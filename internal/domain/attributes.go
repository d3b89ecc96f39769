// Package domain contains pure, dependency-free types for the network
// configuration import engine: shapes, layer specifications, attribute
// dictionaries, and the error taxonomy.
package domain

import (
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
)

// Attributes is an immutable, typed view over the loosely-typed key/value
// configuration of a single node. The backing map is deep-copied on
// construction and every read returns a copy, so the dictionary always
// reflects exactly what was parsed.
type Attributes struct {
	data    map[string]any
	version FormatVersion
}

// NewAttributes builds an Attributes view over raw for the given format
// version. raw is copied; later changes to it are not observed.
func NewAttributes(raw map[string]any, version FormatVersion) Attributes {
	data := make(map[string]any, len(raw))
	for k, v := range raw {
		data[k] = deepCopyValue(v)
	}
	return Attributes{data: data, version: version}
}

// Version returns the descriptor format revision the attributes came from.
func (a Attributes) Version() FormatVersion { return a.version }

// Len returns the number of stored attributes.
func (a Attributes) Len() int { return len(a.data) }

// Has reports whether name is present, even with a null value.
func (a Attributes) Has(name string) bool {
	_, ok := a.data[name]
	return ok
}

// Raw returns a deep copy of the value stored under name exactly as parsed.
func (a Attributes) Raw(name string) (any, bool) {
	v, ok := a.data[name]
	if !ok {
		return nil, false
	}
	return deepCopyValue(v), true
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string { return slices.Sorted(maps.Keys(a.data)) }

// String returns a string representation for debugging purposes.
func (a Attributes) String() string {
	return fmt.Sprintf("Attributes(%s)%v", a.version, a.data)
}

// Key is a typed attribute key. It carries the primary name plus any
// synonyms used by other descriptor revisions, e.g. "units" and the
// keras1 spelling "output_dim". Lookups try the names in order.
type Key[T any] struct{ names []string }

// NewKey creates a key with a primary name and optional aliases.
func NewKey[T any](name string, aliases ...string) Key[T] {
	return Key[T]{names: append([]string{name}, aliases...)}
}

// Name returns the primary attribute name.
func (k Key[T]) Name() string { return k.names[0] }

// Names returns the primary name followed by its aliases.
func (k Key[T]) Names() []string { return slices.Clone(k.names) }

// lookup returns the first present, non-null value among the key's names.
func (k Key[T]) lookup(a Attributes) (string, any, bool) {
	for _, n := range k.names {
		if v, ok := a.data[n]; ok && v != nil {
			return n, v, true
		}
	}
	return "", nil, false
}

// Required returns the value for k coerced to T. It never falls back to a
// default: an absent or null attribute is a MissingKeyError, an
// uncoercible one a TypeMismatchError.
func Required[T any](a Attributes, k Key[T]) (T, error) {
	var zero T
	name, raw, ok := k.lookup(a)
	if !ok {
		return zero, NewMissingKeyError(k.Name())
	}
	v, ok := coerce[T](raw)
	if !ok {
		return zero, NewTypeMismatchError(name, typeLabel[T](), raw)
	}
	return v, nil
}

// Optional returns the value for k coerced to T, or def when the
// attribute is absent or null. A present but uncoercible value is still a
// TypeMismatchError.
func Optional[T any](a Attributes, k Key[T], def T) (T, error) {
	name, raw, ok := k.lookup(a)
	if !ok {
		return def, nil
	}
	v, ok := coerce[T](raw)
	if !ok {
		var zero T
		return zero, NewTypeMismatchError(name, typeLabel[T](), raw)
	}
	return v, nil
}

// IntTuple reads an n-element integer tuple. A scalar is broadcast to all
// n positions and a list must have exactly n elements. Normalization
// happens here, at access time, so the stored value is left untouched.
// When the attribute is absent, def is returned; a nil def makes the
// attribute required.
func IntTuple(a Attributes, k Key[[]int], n int, def []int) ([]int, error) {
	name, raw, ok := k.lookup(a)
	if !ok {
		if def == nil {
			return nil, NewMissingKeyError(k.Name())
		}
		return slices.Clone(def), nil
	}
	if i, ok := toInt(raw); ok {
		out := make([]int, n)
		for j := range out {
			out[j] = i
		}
		return out, nil
	}
	list, ok := toIntSlice(raw)
	if !ok {
		return nil, NewTypeMismatchError(name, fmt.Sprintf("an integer or %d-element list of integers", n), raw)
	}
	if len(list) != n {
		return nil, NewInvalidConfigurationError(
			fmt.Sprintf("attribute %q must have %d elements, got %d", name, n, len(list)),
			map[string]any{name: list})
	}
	return list, nil
}

// coerce converts raw into T using the numeric widening rules of decoded
// JSON, YAML and HCL documents.
func coerce[T any](raw any) (T, bool) {
	var zero T
	var (
		out any
		ok  bool
	)
	switch any(zero).(type) {
	case int:
		out, ok = toInt(raw)
	case int64:
		var i int
		i, ok = toInt(raw)
		out = int64(i)
	case float64:
		out, ok = toFloat(raw)
	case string:
		out, ok = raw.(string)
	case bool:
		out, ok = raw.(bool)
	case []int:
		out, ok = toIntSlice(raw)
	case []float64:
		out, ok = toFloatSlice(raw)
	case []string:
		out, ok = toStringSlice(raw)
	case []any:
		out, ok = toAnySlice(raw)
	case map[string]any:
		out, ok = raw.(map[string]any)
		if ok {
			out = deepCopyValue(out)
		}
	case Shape:
		out, ok = toShape(raw)
	default:
		t, tok := deepCopyValue(raw).(T)
		return t, tok
	}
	if !ok {
		return zero, false
	}
	return out.(T), true
}

func typeLabel[T any]() string {
	var zero T
	switch any(zero).(type) {
	case int, int64:
		return "an integer"
	case float64:
		return "a number"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case []int:
		return "a list of integers"
	case []float64:
		return "a list of numbers"
	case []string:
		return "a list of strings"
	case []any:
		return "a list"
	case map[string]any:
		return "a mapping"
	case Shape:
		return "a shape"
	default:
		return fmt.Sprintf("%T", zero)
	}
}

func toInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), v <= math.MaxInt
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), v <= math.MaxInt
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	// float64(math.MaxInt) rounds up to 2^63, which is itself out of range.
	if f < math.MinInt || f >= math.MaxInt {
		return 0, false
	}
	return int(f), true
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	default:
		i, ok := toInt(raw)
		return float64(i), ok
	}
}

func toAnySlice(raw any) ([]any, bool) {
	if raw == nil {
		return nil, false
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = deepCopyValue(rv.Index(i).Interface())
	}
	return out, true
}

func toIntSlice(raw any) ([]int, bool) {
	items, ok := toAnySlice(raw)
	if !ok {
		return nil, false
	}
	out := make([]int, len(items))
	for i, it := range items {
		n, ok := toInt(it)
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

func toFloatSlice(raw any) ([]float64, bool) {
	items, ok := toAnySlice(raw)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(items))
	for i, it := range items {
		f, ok := toFloat(it)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func toStringSlice(raw any) ([]string, bool) {
	items, ok := toAnySlice(raw)
	if !ok {
		return nil, false
	}
	out := make([]string, len(items))
	for i, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

// toShape accepts a list whose entries are integers >= -1 or null, with
// null standing for an unknown dimension.
func toShape(raw any) (Shape, bool) {
	items, ok := toAnySlice(raw)
	if !ok {
		return nil, false
	}
	out := make(Shape, len(items))
	for i, it := range items {
		if it == nil {
			out[i] = UnknownDim
			continue
		}
		n, ok := toInt(it)
		if !ok || n < -1 {
			return nil, false
		}
		out[i] = int64(n)
	}
	return out, true
}

// deepCopyValue creates a deep copy of a decoded configuration value so
// callers can never mutate the dictionary through a returned reference.
func deepCopyValue(value any) any {
	if value == nil {
		return nil
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return value
		}
		newSlice := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			elem := deepCopyValue(v.Index(i).Interface())
			if elem == nil {
				continue
			}
			newSlice.Index(i).Set(reflect.ValueOf(elem))
		}
		return newSlice.Interface()

	case reflect.Map:
		if v.IsNil() {
			return value
		}
		newMap := reflect.MakeMapWithSize(v.Type(), v.Len())
		for _, key := range v.MapKeys() {
			elem := deepCopyValue(v.MapIndex(key).Interface())
			if elem == nil {
				newMap.SetMapIndex(key, reflect.Zero(v.Type().Elem()))
				continue
			}
			newMap.SetMapIndex(key, reflect.ValueOf(elem))
		}
		return newMap.Interface()

	default:
		// Scalars are copied by value.
		return value
	}
}

// AsInt converts a decoded scalar to int using the same rules as attribute
// access. Adapters use it for values nested inside list attributes.
func AsInt(raw any) (int, bool) { return toInt(raw) }

// AsIntSlice converts a decoded list to []int using the same rules as
// attribute access.
func AsIntSlice(raw any) ([]int, bool) { return toIntSlice(raw) }
