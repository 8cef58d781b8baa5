package varpack

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Value is an immutable typed view over serialized bytes.
//
// A value keeps its backing *Bytes alive until Release is called. Children
// returned by Child, Variant and friends alias the same storage and hold
// references of their own, so they stay valid after the parent is released.
//
// Values built from untrusted data are validated against their type on the
// first typed access; see Validate.
type Value struct {
	typ     *Type
	data    []byte
	buf     *Bytes
	trusted bool

	valid    atomic.Bool
	released atomic.Bool

	checkOnce sync.Once
	checkErr  error

	layoutOnce sync.Once
	layout     layout
	layoutErr  error
}

// layout locates children. Arrays and dictionaries read element bounds from
// their framing offsets on demand; other containers record them.
type layout struct {
	n     int
	frame frame // arrays and dictionaries
	offs  []int // others: child i is data[offs[i]:offs[i+1]]
	inner *Type // variants only
}

// newValue takes ownership of one reference to buf.
func newValue(typ *Type, data []byte, buf *Bytes, trusted bool) *Value {
	return &Value{typ: typ, data: data, buf: buf, trusted: trusted}
}

// FromData returns a value of type typ that takes ownership of data. The
// caller must not modify data afterwards.
//
// If trusted is true, data is assumed to conform to typ and is never
// validated. Only pass true for data you produced yourself: typed accessors
// on malformed trusted data return arbitrary results or decoding errors.
func FromData(typ *Type, data []byte, trusted bool) *Value {
	return newValue(typ, data, NewBytes(data), trusted)
}

// FromBytes returns a value of type typ backed by b without copying. The
// value takes its own reference to b.
func FromBytes(typ *Type, b *Bytes, trusted bool) *Value {
	return newValue(typ, b.Data(), b.Ref(), trusted)
}

func (v *Value) Type() *Type { return v.typ }

// Data returns the serialized bytes. The slice aliases the backing storage
// and must not be modified or used after Release.
func (v *Value) Data() []byte { return v.data }

func (v *Value) Size() int { return len(v.data) }

// IsTrusted returns true if the value was created as trusted or has been
// validated successfully.
func (v *Value) IsTrusted() bool {
	return v.trusted || v.valid.Load()
}

// Backing returns the shared buffer this value is a view into.
func (v *Value) Backing() *Bytes { return v.buf }

// Release drops this value's reference to its backing storage. Calling
// Release more than once is a no-op.
func (v *Value) Release() {
	if v.released.Swap(true) {
		return
	}
	v.buf.Release()
}

// Checksum returns the xxhash64 of the serialized bytes.
func (v *Value) Checksum() uint64 {
	return xxhash.Sum64(v.data)
}

// WriteTo writes the serialized bytes to w.
func (v *Value) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(v.data)
	return int64(n), err
}

// Equal returns true if both values have the same type and the same
// serialized bytes.
func Equal(a, b *Value) bool {
	return a.typ.Equal(b.typ) && bytes.Equal(a.data, b.data)
}

// Validate checks untrusted data against the value's type. The result is
// computed once and cached; trusted values always return nil.
func (v *Value) Validate() error {
	if v.trusted {
		return nil
	}
	v.checkOnce.Do(func() {
		v.checkErr = validate(v.typ, v.data)
		if v.checkErr == nil {
			v.valid.Store(true)
		}
	})
	return v.checkErr
}

func validate(typ *Type, data []byte) error {
	if typ.IsByteArray() {
		return nil
	}
	if typ.kind == KindArray && len(data) == 0 {
		return nil
	}
	d := getDecoder(data)
	defer putDecoder(d)
	if err := d.validate(typ); err != nil {
		return validationErrf(typ, data, d.Off(), err, "does not match type")
	}
	if n := d.Remaining(); n != 0 {
		return validationErrf(typ, data, d.Off(), nil, "%d bytes of trailing data", n)
	}
	return nil
}

func (v *Value) computeLayout() (layout, error) {
	v.layoutOnce.Do(func() {
		v.layout, v.layoutErr = scanLayout(v.typ, v.data)
	})
	return v.layout, v.layoutErr
}

// scanLayout finds the children of a container. Arrays take O(1) here;
// tuples and entries are walked field by field.
func scanLayout(typ *Type, data []byte) (layout, error) {
	var l layout
	if typ.kind == KindArray && len(data) == 0 {
		// A standalone array of zero bytes is empty.
		return l, nil
	}

	d := getDecoder(data)
	defer putDecoder(d)

	var err error
	childType := typ.elem
	switch typ.kind {
	case KindArray:
		l.frame, err = d.Array()
		if err != nil {
			return l, fmt.Errorf("varpack: %s: %w", typ, err)
		}
		l.n = l.frame.n
		return l, nil
	case KindTuple:
		l.n, err = d.ArrayLen()
		if err == nil && l.n != len(typ.fields) {
			err = fmt.Errorf("tuple has %d fields, got %d", len(typ.fields), l.n)
		}
	case KindDictEntry:
		l.n = 2
	case KindVariant:
		l.inner, err = d.variantHeader()
		l.n = 1
		childType = l.inner
	default:
		return l, nil
	}
	if err != nil {
		return l, fmt.Errorf("varpack: %s: %w", typ, err)
	}

	l.offs = make([]int, l.n+1)
	for i := range l.n {
		l.offs[i] = d.Off()
		t := childType
		if t == nil {
			t = typ.fields[i]
		}
		if _, err := d.object(t); err != nil {
			return l, fmt.Errorf("varpack: %s: child %d: %w", typ, i, err)
		}
	}
	l.offs[l.n] = d.Off()
	return l, nil
}

func (v *Value) childType(l *layout, i int) *Type {
	switch v.typ.kind {
	case KindArray:
		return v.typ.elem
	case KindVariant:
		return l.inner
	default:
		return v.typ.fields[i]
	}
}

// NChildren returns the number of elements of an array, the number of fields
// of a tuple or dictionary entry, 1 for a variant and 0 for basic types.
func (v *Value) NChildren() (int, error) {
	if err := v.Validate(); err != nil {
		return 0, err
	}
	if v.typ.IsByteArray() {
		return len(v.data), nil
	}
	if !v.typ.IsContainer() {
		return 0, nil
	}
	l, err := v.computeLayout()
	if err != nil {
		return 0, err
	}
	return l.n, nil
}

// Child returns the i-th child. It panics if i is out of range.
func (v *Value) Child(i int) (*Value, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if v.typ.IsByteArray() {
		return NewByte(v.data[i]), nil
	}
	if !v.typ.IsContainer() {
		return nil, wrongTypef(v.typ, "basic values have no children")
	}
	l, err := v.computeLayout()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= l.n {
		panic(fmt.Sprintf("varpack: child index %d out of range [0, %d)", i, l.n))
	}
	return v.childAt(&l, i)
}

func (v *Value) childData(l *layout, i int) ([]byte, error) {
	if v.typ.kind == KindArray {
		data, err := l.frame.elem(i)
		if err != nil {
			return nil, fmt.Errorf("varpack: %s: %w", v.typ, err)
		}
		return data, nil
	}
	return v.data[l.offs[i]:l.offs[i+1]], nil
}

func (v *Value) childAt(l *layout, i int) (*Value, error) {
	typ := v.childType(l, i)
	data, err := v.childData(l, i)
	if err != nil {
		return nil, err
	}
	if typ.IsByteArray() {
		d := getDecoder(data)
		payload, err := d.Bin()
		putDecoder(d)
		if err != nil {
			return nil, fmt.Errorf("varpack: %s: child %d: %w", v.typ, i, err)
		}
		data = payload
	}
	return newValue(typ, data, v.buf.Ref(), true), nil
}

// Children returns all children, in order.
func (v *Value) Children() ([]*Value, error) {
	n, err := v.NChildren()
	if err != nil {
		return nil, err
	}
	if v.typ.IsByteArray() {
		result := make([]*Value, n)
		for i, b := range v.data {
			result[i] = NewByte(b)
		}
		return result, nil
	}
	if n == 0 {
		return nil, nil
	}
	l, _ := v.computeLayout()
	result := make([]*Value, n)
	for i := range n {
		result[i], err = v.childAt(&l, i)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Variant returns the value stored inside a variant.
func (v *Value) Variant() (*Value, error) {
	if v.typ.kind != KindVariant {
		return nil, wrongTypef(v.typ, "not a variant")
	}
	return v.Child(0)
}

// decodeBasic runs fn over a decoder positioned at the value, after
// validating it and checking that its kind is one of kinds.
func (v *Value) decodeBasic(what string, ok func(k Kind) bool, fn func(d *decoder) error) error {
	if !ok(v.typ.kind) {
		return wrongTypef(v.typ, "not %s", what)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	d := getDecoder(v.data)
	defer putDecoder(d)
	if err := fn(d); err != nil {
		return fmt.Errorf("varpack: %s: %w", v.typ, err)
	}
	return nil
}

func (v *Value) Bool() (result bool, err error) {
	err = v.decodeBasic("a boolean", func(k Kind) bool { return k == KindBool }, func(d *decoder) error {
		result, err = d.Bool()
		return err
	})
	return
}

// Int64 returns the value of any integer type except t (uint64).
func (v *Value) Int64() (result int64, err error) {
	isInt := func(k Kind) bool { return k.isInteger() && k != KindUint64 }
	err = v.decodeBasic("a signed-compatible integer", isInt, func(d *decoder) error {
		u, i, neg, err := d.Integer()
		if err != nil {
			return err
		}
		if neg {
			result = i
		} else {
			result = int64(u)
		}
		return nil
	})
	return
}

// Uint64 returns the value of an unsigned integer type (y, q, u, t).
func (v *Value) Uint64() (result uint64, err error) {
	isUint := func(k Kind) bool { return k.isInteger() && !k.isSigned() }
	err = v.decodeBasic("an unsigned integer", isUint, func(d *decoder) error {
		u, _, neg, err := d.Integer()
		if err != nil {
			return err
		}
		if neg {
			return fmt.Errorf("negative value")
		}
		result = u
		return nil
	})
	return
}

func (v *Value) Float64() (result float64, err error) {
	err = v.decodeBasic("a double", func(k Kind) bool { return k == KindDouble }, func(d *decoder) error {
		result, err = d.Float()
		return err
	})
	return
}

// StrBytes returns the contents of a string without copying. The slice
// aliases the backing storage.
func (v *Value) StrBytes() (result []byte, err error) {
	err = v.decodeBasic("a string", func(k Kind) bool { return k == KindString }, func(d *decoder) error {
		result, err = d.Str()
		return err
	})
	return
}

func (v *Value) Str() (string, error) {
	b, err := v.StrBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ByteArray returns the contents of an "ay" value without copying.
func (v *Value) ByteArray() ([]byte, error) {
	if !v.typ.IsByteArray() {
		return nil, wrongTypef(v.typ, "not a byte array")
	}
	return v.data, nil
}

// String returns the text form of the value, see Print.
func (v *Value) String() string {
	s, err := Print(v)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return s
}
