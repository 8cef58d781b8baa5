package varpack

import (
	"fmt"
	"slices"
	"strings"
)

func newEncoded(typ *Type, fn func(e *encoder)) *Value {
	e := newEncoder(nil)
	fn(e)
	return FromData(typ, e.Finish(), true)
}

func NewBool(v bool) *Value {
	return newEncoded(TypeBool, func(e *encoder) { e.Bool(v) })
}

func NewByte(v byte) *Value {
	return newEncoded(TypeByte, func(e *encoder) { e.Uint(uint64(v)) })
}

func NewInt16(v int16) *Value {
	return newEncoded(TypeInt16, func(e *encoder) { e.Int(int64(v)) })
}

func NewUint16(v uint16) *Value {
	return newEncoded(TypeUint16, func(e *encoder) { e.Uint(uint64(v)) })
}

func NewInt32(v int32) *Value {
	return newEncoded(TypeInt32, func(e *encoder) { e.Int(int64(v)) })
}

func NewUint32(v uint32) *Value {
	return newEncoded(TypeUint32, func(e *encoder) { e.Uint(uint64(v)) })
}

func NewInt64(v int64) *Value {
	return newEncoded(TypeInt64, func(e *encoder) { e.Int(v) })
}

func NewUint64(v uint64) *Value {
	return newEncoded(TypeUint64, func(e *encoder) { e.Uint(v) })
}

func NewFloat64(v float64) *Value {
	return newEncoded(TypeDouble, func(e *encoder) { e.Float(v) })
}

// NewString returns a string value. Strings cannot contain NUL bytes; such a
// value is returned untrusted and fails validation on first access.
func NewString(v string) *Value {
	s := newEncoded(TypeString, func(e *encoder) { e.String(v) })
	s.trusted = strings.IndexByte(v, 0) < 0
	return s
}

func checkString(typ *Type, s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return wrongTypef(typ, "string %q contains a NUL byte", s)
	}
	return nil
}

// NewVariant boxes v into a variant. The result is trusted only if v is.
func NewVariant(v *Value) *Value {
	if v.typ.kind == KindDictEntry {
		panic("varpack: variant cannot hold a dictionary entry")
	}
	e := newEncoder(make([]byte, 0, len(v.data)+len(v.typ.sig)+8))
	e.ArrayLen(2)
	e.String(v.typ.sig)
	e.Child(v)
	return FromData(TypeVariant, e.Finish(), v.IsTrusted())
}

// NewTuple builds a tuple out of the given fields. The result is trusted only
// if all fields are.
func NewTuple(fields ...*Value) *Value {
	types := make([]*Type, len(fields))
	trusted := true
	size := 5
	for i, f := range fields {
		if f.typ.kind == KindDictEntry {
			panic("varpack: tuple cannot hold a dictionary entry")
		}
		types[i] = f.typ
		trusted = trusted && f.IsTrusted()
		size += len(f.data) + 5
	}
	e := newEncoder(make([]byte, 0, size))
	e.ArrayLen(len(fields))
	for _, f := range fields {
		e.Child(f)
	}
	return FromData(TupleOf(types...), e.Finish(), trusted)
}

// NewDictEntry builds a dictionary entry, for use with a dictionary Builder.
// It panics if key is not of a basic type.
func NewDictEntry(key, value *Value) *Value {
	if !key.typ.IsBasic() {
		panic(fmt.Sprintf("varpack: dictionary key must be basic, got %s", key.typ))
	}
	if value.typ.kind == KindDictEntry {
		panic("varpack: dictionary entry cannot hold a dictionary entry")
	}
	typ := MustType("a{" + key.typ.sig + value.typ.sig + "}").elem
	e := newEncoder(make([]byte, 0, len(key.data)+len(value.data)+5))
	e.Raw(key.data)
	e.Child(value)
	return FromData(typ, e.Finish(), key.IsTrusted() && value.IsTrusted())
}

// New converts a plain Go value into a value of type typ.
//
// Accepted inputs: bool; any Go integer type for integer kinds (range
// checked); float32 and float64 for d; string for s; []byte for ay; []any,
// []string and []*Value for arrays and tuples; map[string]any for
// dictionaries with string keys (encoded in sorted key order); two-element
// []any for dictionary entries; and *Value of the exact type anywhere. Plain
// values stored into variants get their type inferred, see TypeOf.
func New(typ *Type, x any) (*Value, error) {
	if v, ok := x.(*Value); ok && !boxes(typ, v) {
		if !v.typ.Equal(typ) {
			return nil, wrongTypef(typ, "cannot use value of type %s", v.typ)
		}
		return v, nil
	}
	if typ.IsByteArray() {
		b, ok := x.([]byte)
		if !ok {
			return nil, wrongTypef(typ, "cannot convert %T", x)
		}
		return NewByteArray(b), nil
	}
	e := newEncoder(nil)
	trusted, err := encodeGo(e, typ, x)
	data := e.Finish()
	if err != nil {
		return nil, err
	}
	return FromData(typ, data, trusted), nil
}

// MustNew is like New, but panics on error.
func MustNew(typ *Type, x any) *Value {
	v, err := New(typ, x)
	if err != nil {
		panic(err)
	}
	return v
}

// TypeOf infers the type that New would use for x inside a variant.
func TypeOf(x any) (*Type, error) {
	switch x := x.(type) {
	case *Value:
		return x.typ, nil
	case bool:
		return TypeBool, nil
	case uint8:
		return TypeByte, nil
	case int16:
		return TypeInt16, nil
	case uint16:
		return TypeUint16, nil
	case int32:
		return TypeInt32, nil
	case uint32:
		return TypeUint32, nil
	case int, int8, int64:
		return TypeInt64, nil
	case uint, uint64:
		return TypeUint64, nil
	case float32, float64:
		return TypeDouble, nil
	case string:
		return TypeString, nil
	case []byte:
		return TypeByteArray, nil
	case []string:
		return TypeStringArray, nil
	case map[string]any:
		return TypeVarDict, nil
	case []any:
		types := make([]*Type, len(x))
		for i, el := range x {
			t, err := TypeOf(el)
			if err != nil {
				return nil, err
			}
			types[i] = t
		}
		return TupleOf(types...), nil
	default:
		return nil, fmt.Errorf("varpack: cannot infer type of %T", x)
	}
}

// boxes returns true if v needs to be wrapped to be stored as typ.
func boxes(typ *Type, v *Value) bool {
	return typ.kind == KindVariant && v.typ.kind != KindVariant
}

func toInteger(x any) (u uint64, i int64, neg bool, ok bool) {
	switch x := x.(type) {
	case int:
		i = int64(x)
	case int8:
		i = int64(x)
	case int16:
		i = int64(x)
	case int32:
		i = int64(x)
	case int64:
		i = x
	case uint:
		return uint64(x), 0, false, true
	case uint8:
		return uint64(x), 0, false, true
	case uint16:
		return uint64(x), 0, false, true
	case uint32:
		return uint64(x), 0, false, true
	case uint64:
		return x, 0, false, true
	default:
		return 0, 0, false, false
	}
	if i < 0 {
		return 0, i, true, true
	}
	return uint64(i), 0, false, true
}

// encodeGo appends x in its in-container form and returns whether the
// result can be trusted.
func encodeGo(e *encoder, typ *Type, x any) (bool, error) {
	if v, ok := x.(*Value); ok && !boxes(typ, v) {
		if !v.typ.Equal(typ) {
			return false, wrongTypef(typ, "cannot use value of type %s", v.typ)
		}
		e.Child(v)
		return v.IsTrusted(), nil
	}
	switch k := typ.kind; {
	case k == KindBool:
		b, ok := x.(bool)
		if !ok {
			break
		}
		e.Bool(b)
		return true, nil
	case k.isInteger():
		u, i, neg, ok := toInteger(x)
		if !ok {
			break
		}
		if err := checkIntRange(k, u, i, neg); err != nil {
			return false, wrongTypef(typ, "%v", err)
		}
		if neg {
			e.Int(i)
		} else {
			e.Uint(u)
		}
		return true, nil
	case k == KindDouble:
		switch f := x.(type) {
		case float64:
			e.Float(f)
			return true, nil
		case float32:
			e.Float(float64(f))
			return true, nil
		}
	case k == KindString:
		s, ok := x.(string)
		if !ok {
			break
		}
		if err := checkString(typ, s); err != nil {
			return false, err
		}
		e.String(s)
		return true, nil
	case k == KindVariant:
		inner, err := TypeOf(x)
		if err != nil {
			return false, err
		}
		e.ArrayLen(2)
		e.String(inner.sig)
		return encodeGo(e, inner, x)
	case k == KindArray:
		return encodeGoArray(e, typ, x)
	case k == KindTuple:
		items, ok := x.([]any)
		if !ok {
			break
		}
		if len(items) != len(typ.fields) {
			return false, wrongTypef(typ, "got %d fields", len(items))
		}
		e.ArrayLen(len(items))
		trusted := true
		for i, item := range items {
			t, err := encodeGo(e, typ.fields[i], item)
			if err != nil {
				return false, err
			}
			trusted = trusted && t
		}
		return trusted, nil
	case k == KindDictEntry:
		pair, ok := x.([]any)
		if !ok || len(pair) != 2 {
			break
		}
		t1, err := encodeGo(e, typ.fields[0], pair[0])
		if err != nil {
			return false, err
		}
		t2, err := encodeGo(e, typ.fields[1], pair[1])
		if err != nil {
			return false, err
		}
		return t1 && t2, nil
	}
	return false, wrongTypef(typ, "cannot convert %T", x)
}

func encodeGoArray(e *encoder, typ *Type, x any) (bool, error) {
	if typ.IsByteArray() {
		b, ok := x.([]byte)
		if !ok {
			return false, wrongTypef(typ, "cannot convert %T", x)
		}
		e.Bin(b)
		return true, nil
	}
	if m, ok := x.(map[string]any); ok {
		if !typ.IsDict() || typ.elem.fields[0].kind != KindString {
			return false, wrongTypef(typ, "cannot convert %T", x)
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		mark := e.BeginArray()
		trusted := true
		for _, k := range keys {
			if err := checkString(typ.elem.fields[0], k); err != nil {
				return false, err
			}
			e.String(k)
			t, err := encodeGo(e, typ.elem.fields[1], m[k])
			if err != nil {
				return false, err
			}
			trusted = trusted && t
			e.EndElem(&mark)
		}
		e.EndArray(&mark)
		return trusted, nil
	}

	var items []any
	switch x := x.(type) {
	case []any:
		items = x
	case []string:
		items = make([]any, len(x))
		for i, s := range x {
			items[i] = s
		}
	case []*Value:
		items = make([]any, len(x))
		for i, v := range x {
			items[i] = v
		}
	default:
		return false, wrongTypef(typ, "cannot convert %T", x)
	}
	mark := e.BeginArray()
	trusted := true
	for _, item := range items {
		t, err := encodeGo(e, typ.elem, item)
		if err != nil {
			return false, err
		}
		trusted = trusted && t
		e.EndElem(&mark)
	}
	e.EndArray(&mark)
	return trusted, nil
}
