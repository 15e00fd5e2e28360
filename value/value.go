// Package value provides the JSON value type shared by event properties,
// feature flag values and flag payloads.
//
// Value is a sealed interface: only Null, Bool, Number, String, List and
// *Object implement it. Objects keep insertion order so that event properties
// are encoded in the order they were layered.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindObject
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
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a JSON value.
type Value interface {
	Kind() Kind
	isValue()
}

// Null is the JSON null.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// Number is a JSON number. It holds a float64, so integers beyond 2^53 lose
// precision when converted. NaN and the infinities have no JSON form and are
// rejected by FromAny.
type Number float64

// String is a JSON string.
type String string

// List is an ordered JSON array.
type List []Value

func (Null) Kind() Kind    { return KindNull }
func (Bool) Kind() Kind    { return KindBool }
func (Number) Kind() Kind  { return KindNumber }
func (String) Kind() Kind  { return KindString }
func (List) Kind() Kind    { return KindList }
func (*Object) Kind() Kind { return KindObject }

func (Null) isValue()    {}
func (Bool) isValue()    {}
func (Number) isValue()  {}
func (String) isValue()  {}
func (List) isValue()    {}
func (*Object) isValue() {}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Object is a string-keyed JSON object that remembers insertion order.
// Setting an existing key replaces the value in place.
// The zero value is not usable; call NewObject.
type Object struct {
	keys []string
	vals map[string]Value
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

// Set stores v under key. A nil v is stored as Null.
func (o *Object) Set(key string, v Value) {
	if v == nil {
		v = Null{}
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Delete removes key, keeping the order of the remaining keys.
func (o *Object) Delete(key string) {
	if _, ok := o.vals[key]; !ok {
		return
	}
	delete(o.vals, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

// Range calls fn for each entry in insertion order until fn returns false.
func (o *Object) Range(fn func(key string, v Value) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.vals[k]) {
			return
		}
	}
}

// Merge sets every entry of other on o, in other's order.
func (o *Object) Merge(other *Object) {
	other.Range(func(k string, v Value) bool {
		o.Set(k, v)
		return true
	})
}

// Clone returns a deep copy of o.
func (o *Object) Clone() *Object {
	out := NewObject()
	o.Range(func(k string, v Value) bool {
		out.Set(k, Clone(v))
		return true
	})
	return out
}

// Clone returns a deep copy of v. Scalars are returned as-is.
func Clone(v Value) Value {
	switch t := v.(type) {
	case *Object:
		if t == nil {
			return Null{}
		}
		return t.Clone()
	case List:
		out := make(List, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case nil:
		return Null{}
	default:
		return v
	}
}

// Equal reports whether a and b hold the same JSON value.
// Object comparison ignores key order.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch at := a.(type) {
	case List:
		bt := b.(List)
		if len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bt[i]) {
				return false
			}
		}
		return true
	case *Object:
		bt := b.(*Object)
		if at.Len() != bt.Len() {
			return false
		}
		equal := true
		at.Range(func(k string, v Value) bool {
			other, ok := bt.Get(k)
			equal = ok && Equal(v, other)
			return equal
		})
		return equal
	default:
		return a == b
	}
}

// FromAny converts a Go value into a Value.
//
// Maps are converted with their keys sorted so that the result is
// deterministic. Values of other types (structs, typed slices) go through
// encoding/json; an error is returned when they cannot be encoded. NaN and
// infinite floats are rejected, also inside a Value.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		if o, ok := t.(*Object); ok && o == nil {
			return Null{}, nil
		}
		if err := Validate(t); err != nil {
			return nil, err
		}
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Number(t), nil
	case int8:
		return Number(t), nil
	case int16:
		return Number(t), nil
	case int32:
		return Number(t), nil
	case int64:
		return Number(t), nil
	case uint:
		return Number(t), nil
	case uint8:
		return Number(t), nil
	case uint16:
		return Number(t), nil
	case uint32:
		return Number(t), nil
	case uint64:
		return Number(t), nil
	case float32:
		return finite(float64(t))
	case float64:
		return finite(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("value: invalid number %q: %w", t, err)
		}
		return finite(f)
	case []any:
		out := make(List, 0, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("value: index %d: %w", i, err)
			}
			out = append(out, ev)
		}
		return out, nil
	case []string:
		out := make(List, len(t))
		for i, e := range t {
			out[i] = String(e)
		}
		return out, nil
	case map[string]any:
		return ObjectFromMap(t)
	case map[string]string:
		out := NewObject()
		for _, k := range sortedKeys(t) {
			out.Set(k, String(t[k]))
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return Null{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value: unsupported %T: %w", v, err)
	}
	return Parse(data)
}

// Validate reports an error if v holds a number that cannot be encoded as
// JSON.
func Validate(v Value) error {
	switch t := v.(type) {
	case Number:
		if _, err := finite(float64(t)); err != nil {
			return err
		}
	case List:
		for i, e := range t {
			if err := Validate(e); err != nil {
				return fmt.Errorf("value: index %d: %w", i, err)
			}
		}
	case *Object:
		if t == nil {
			return nil
		}
		var err error
		t.Range(func(k string, e Value) bool {
			if verr := Validate(e); verr != nil {
				err = fmt.Errorf("value: key %q: %w", k, verr)
			}
			return err == nil
		})
		return err
	}
	return nil
}

func finite(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("value: non-finite number %v", f)
	}
	return Number(f), nil
}

// ObjectFromMap converts a Go map into an Object with sorted keys.
// A nil map yields an empty object.
func ObjectFromMap(m map[string]any) (*Object, error) {
	out := NewObject()
	for _, k := range sortedKeys(m) {
		v, err := FromAny(m[k])
		if err != nil {
			return nil, fmt.Errorf("value: key %q: %w", k, err)
		}
		out.Set(k, v)
	}
	return out, nil
}

// ToAny converts v into plain Go values: nil, bool, float64, string,
// []any and map[string]any.
func ToAny(v Value) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(t)
	case Number:
		return float64(t)
	case String:
		return string(t)
	case List:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = ToAny(e)
		}
		return out
	case *Object:
		if t == nil {
			return nil
		}
		return t.ToMap()
	default:
		return nil
	}
}

// ToMap converts o into a plain Go map.
func (o *Object) ToMap() map[string]any {
	out := make(map[string]any, o.Len())
	o.Range(func(k string, v Value) bool {
		out[k] = ToAny(v)
		return true
	})
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
