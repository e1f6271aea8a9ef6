// Package jsonvalue implements a tagged JSON document value. Object keys are
// always rendered in sorted order, so two equal values encode to identical
// bytes.
package jsonvalue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a JSON document value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	arr  []Value
	obj  map[string]Value
}

// NullValue returns the JSON null.
func NullValue() Value { return Value{} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// NumberValue wraps a number literal. The literal is kept verbatim.
func NumberValue(n json.Number) Value { return Value{kind: Number, num: n} }

// IntValue wraps an integer.
func IntValue(i int64) Value {
	return Value{kind: Number, num: json.Number(strconv.FormatInt(i, 10))}
}

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: String, str: s} }

// ArrayValue builds an array from items.
func ArrayValue(items ...Value) Value {
	arr := make([]Value, len(items))
	copy(arr, items)
	return Value{kind: Array, arr: arr}
}

// ObjectValue builds an object from fields. The map is copied.
func ObjectValue(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v
	}
	return Value{kind: Object, obj: obj}
}

// EmptyObject returns {}.
func EmptyObject() Value { return Value{kind: Object, obj: map[string]Value{}} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool   { return v.kind == Null }
func (v Value) IsObject() bool { return v.kind == Object }
func (v Value) IsArray() bool  { return v.kind == Array }

// AsString returns the string payload and whether v is a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == String }

// AsBool returns the boolean payload and whether v is a boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == Bool }

// AsNumber returns the number literal and whether v is a number.
func (v Value) AsNumber() (json.Number, bool) { return v.num, v.kind == Number }

// Items returns a copy of the array elements, or nil for non-arrays.
func (v Value) Items() []Value {
	if v.kind != Array {
		return nil
	}
	out := make([]Value, len(v.arr))
	copy(out, v.arr)
	return out
}

// Len returns the number of array elements or object fields.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return len(v.obj)
	}
	return 0
}

// Keys returns the object keys in sorted order.
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get looks up an object field.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	f, ok := v.obj[key]
	return f, ok
}

// Fields returns a copy of the object fields, or nil for non-objects.
func (v Value) Fields() map[string]Value {
	if v.kind != Object {
		return nil
	}
	out := make(map[string]Value, len(v.obj))
	for k, f := range v.obj {
		out[k] = f
	}
	return out
}

// Set assigns an object field. A null receiver becomes an empty object first;
// any other non-object kind is a programming error.
func (v *Value) Set(key string, field Value) {
	switch v.kind {
	case Null:
		*v = EmptyObject()
	case Object:
		if v.obj == nil {
			v.obj = map[string]Value{}
		}
	default:
		panic(fmt.Sprintf("jsonvalue: Set on %s value", v.kind))
	}
	v.obj[key] = field
}

// Delete removes an object field if present.
func (v *Value) Delete(key string) {
	if v.kind == Object {
		delete(v.obj, key)
	}
}

// Equal reports whether a and b hold the same document. Numbers compare by
// numeric value when their literals differ.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case Bool:
		return a.b == b.b
	case Number:
		if a.num == b.num {
			return true
		}
		fa, errA := a.num.Float64()
		fb, errB := b.num.Float64()
		return errA == nil && errB == nil && fa == fb
	case String:
		return a.str == b.str
	case Array:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// Any converts v to plain Go values: nil, bool, json.Number, string,
// []any and map[string]any.
func (v Value) Any() any {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		return v.num
	case String:
		return v.str
	case Array:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Any()
		}
		return out
	case Object:
		out := make(map[string]any, len(v.obj))
		for k, f := range v.obj {
			out[k] = f.Any()
		}
		return out
	}
	return nil
}

// FromAny converts decoded Go values into a Value.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Number:
		return NumberValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case float32:
		return floatValue(float64(t))
	case float64:
		return floatValue(t)
	case []any:
		arr := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = v
		}
		return Value{kind: Array, arr: arr}, nil
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			obj[k] = v
		}
		return Value{kind: Object, obj: obj}, nil
	default:
		return Value{}, fmt.Errorf("unsupported JSON value of type %T", x)
	}
}

func floatValue(f float64) (Value, error) {
	// encoding/json renders floats the way JavaScript does and rejects NaN/Inf.
	b, err := json.Marshal(f)
	if err != nil {
		return Value{}, err
	}
	return NumberValue(json.Number(b)), nil
}

// MarshalJSON renders v compactly with object keys sorted.
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
	case Number:
		if v.num == "" {
			buf.WriteString("0")
			return nil
		}
		buf.WriteString(string(v.num))
	case String:
		return encodeString(buf, v.str)
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
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := v.obj[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// UnmarshalJSON decodes strict JSON, keeping number literals verbatim.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
