package varpack

import (
	"fmt"
)

// maxHeaderSize is the largest msgpack array header (code + uint32).
const maxHeaderSize = 5

// Builder composes an array, dictionary or tuple value. A Builder must not be
// used from multiple goroutines at once.
type Builder struct {
	typ     *Type
	e       *encoder
	mark    arrayMark // arrays and dictionaries
	n       int
	trusted bool
	ended   bool
}

// NewBuilder returns a builder for an array, dictionary or tuple type.
func NewBuilder(typ *Type) *Builder {
	switch typ.kind {
	case KindArray, KindTuple:
	default:
		panic(fmt.Sprintf("varpack: cannot build values of type %s", typ))
	}
	b := &Builder{typ: typ, trusted: true}
	switch {
	case typ.IsByteArray():
		b.e = newEncoder(nil)
	case typ.kind == KindArray:
		b.e = newEncoder(make([]byte, 0, 256))
		b.mark = b.e.BeginArray()
	default:
		b.e = newEncoder(make([]byte, maxHeaderSize, 256))
	}
	return b
}

// NewBuilderFrom returns a builder for typ that already contains all
// top-level children of seed, in order. A nil seed yields an empty builder.
//
// Children are copied into the builder, so later changes to the seed's
// backing storage are not observed.
func NewBuilderFrom(seed *Value, typ *Type) (*Builder, error) {
	b := NewBuilder(typ)
	if seed == nil {
		return b, nil
	}
	children, err := seed.Children()
	if err != nil {
		b.Discard()
		return nil, err
	}
	defer func() {
		for _, c := range children {
			c.Release()
		}
	}()
	for _, c := range children {
		if err := b.Add(c); err != nil {
			b.Discard()
			return nil, err
		}
	}
	return b, nil
}

func (b *Builder) Type() *Type { return b.typ }

// Len returns the number of children added so far.
func (b *Builder) Len() int { return b.n }

func (b *Builder) expectedType() (*Type, error) {
	if b.ended {
		panic("varpack: Builder used after End")
	}
	if b.typ.kind == KindArray {
		return b.typ.elem, nil
	}
	if b.n >= len(b.typ.fields) {
		return nil, wrongTypef(b.typ, "too many fields")
	}
	return b.typ.fields[b.n], nil
}

// Add appends a child. The child's bytes are copied.
func (b *Builder) Add(v *Value) error {
	want, err := b.expectedType()
	if err != nil {
		return err
	}
	if !v.typ.Equal(want) {
		return wrongTypef(b.typ, "cannot add %s, expected %s", v.typ, want)
	}
	if b.typ.IsByteArray() {
		u, err := v.Uint64()
		if err != nil {
			return err
		}
		b.e.Raw([]byte{byte(u)})
		b.n++
		return nil
	}
	b.e.Child(v)
	b.trusted = b.trusted && v.IsTrusted()
	b.added()
	return nil
}

func (b *Builder) added() {
	b.n++
	if b.typ.kind == KindArray {
		b.e.EndElem(&b.mark)
	}
}

// AddNew converts x as New does and appends it.
func (b *Builder) AddNew(x any) error {
	want, err := b.expectedType()
	if err != nil {
		return err
	}
	if b.typ.IsByteArray() {
		v, err := New(want, x)
		if err != nil {
			return err
		}
		return b.Add(v)
	}
	trusted, err := encodeGo(b.e, want, x)
	if err != nil {
		return err
	}
	b.trusted = b.trusted && trusted
	b.added()
	return nil
}

// AddEntry appends a key/value pair to a dictionary builder.
func (b *Builder) AddEntry(key, value *Value) error {
	return b.Add(NewDictEntry(key, value))
}

// End finishes the value. The builder cannot be used afterwards.
func (b *Builder) End() (*Value, error) {
	if b.typ.kind == KindTuple && b.n != len(b.typ.fields) {
		return nil, wrongTypef(b.typ, "got %d of %d fields", b.n, len(b.typ.fields))
	}
	buf := b.e.Finish()
	b.ended = true
	if b.typ.IsByteArray() {
		return FromData(b.typ, buf, true), nil
	}
	if b.typ.kind == KindArray {
		buf, start := finishArray(buf, b.mark.hdr, b.mark.ends)
		return FromData(b.typ, buf[start:], b.trusted), nil
	}

	// Write the header into the reserved space, right before the children.
	h := newEncoder(make([]byte, 0, maxHeaderSize))
	h.ArrayLen(b.n)
	header := h.Finish()
	start := maxHeaderSize - len(header)
	copy(buf[start:maxHeaderSize], header)
	return FromData(b.typ, buf[start:], b.trusted), nil
}

// Discard abandons the builder.
func (b *Builder) Discard() {
	if !b.ended {
		b.e.Finish()
		b.ended = true
	}
}
