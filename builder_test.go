package varpack

import (
	"errors"
	"testing"
)

func TestBuilder_array(t *testing.T) {
	b := NewBuilder(TypeStringArray)
	ensure(b.Add(NewString("a")))
	ensure(b.AddNew("b"))
	eq(t, b.Len(), 2)
	v := must(b.End())
	eq(t, v.String(), "['a', 'b']")
	eq(t, v.IsTrusted(), true)
	deepEqual(t, v.Data(), MustNew(TypeStringArray, []string{"a", "b"}).Data())
}

func TestBuilder_largeHeader(t *testing.T) {
	b := NewBuilder(MustType("ay"))
	for i := 0; i < 70000; i++ {
		ensure(b.AddNew(byte(i)))
	}
	v := must(b.End())
	eq(t, v.Size(), 70000)

	b = NewBuilder(MustType("ax"))
	for i := 0; i < 70000; i++ {
		ensure(b.AddNew(i))
	}
	v = must(b.End())
	ensure(FromData(v.Type(), v.Data(), false).Validate())
	eq(t, must(v.NChildren()), 70000)
	eq(t, must(must(v.Child(69999)).Int64()), int64(69999))
}

func TestBuilder_tuple(t *testing.T) {
	b := NewBuilder(MustType("(sb)"))
	ensure(b.AddNew("x"))
	_, err := b.End()
	if !errors.Is(err, ErrWrongType) {
		t.Fatalf("End with missing field: err = %v, wanted ErrWrongType", err)
	}
	ensure(b.AddNew(true))
	if err := b.AddNew(false); !errors.Is(err, ErrWrongType) {
		t.Fatalf("extra field: err = %v, wanted ErrWrongType", err)
	}
	v := must(b.End())
	eq(t, v.String(), "('x', true)")
	assertPanics(t, func() { _ = b.AddNew(1) })
}

func TestBuilder_typeMismatch(t *testing.T) {
	b := NewBuilder(TypeStringArray)
	if err := b.Add(NewInt32(1)); !errors.Is(err, ErrWrongType) {
		t.Fatalf("err = %v, wanted ErrWrongType", err)
	}
	eq(t, b.Len(), 0)
}

func TestBuilder_trustTracking(t *testing.T) {
	b := NewBuilder(TypeStringArray)
	ensure(b.Add(FromData(TypeString, x("a161"), false)))
	v := must(b.End())
	eq(t, v.IsTrusted(), false)
	ensure(v.Validate())
}

func TestNewBuilder_panicsOnBasic(t *testing.T) {
	assertPanics(t, func() { NewBuilder(TypeString) })
	assertPanics(t, func() { NewBuilder(TypeVariant) })
}

func TestNewBuilderFrom(t *testing.T) {
	seed := MustNew(MustType("a{sx}"), map[string]any{"a": 1, "b": 2})
	b := must(NewBuilderFrom(seed, seed.Type()))
	eq(t, b.Len(), 2)
	seed.Release()
	ensure(b.AddEntry(NewString("c"), NewInt64(3)))
	v := must(b.End())
	eq(t, v.String(), "{'a': 1, 'b': 2, 'c': 3}")
}

func TestNewBuilderFrom_nilSeed(t *testing.T) {
	b := must(NewBuilderFrom(nil, TypeVarDict))
	eq(t, b.Len(), 0)
	v := must(b.End())
	deepEqual(t, v.Data(), EmptyVarDict().Data())
}

func TestNewBuilderFrom_tupleIntoArray(t *testing.T) {
	seed := NewTuple(NewString("x"), NewString("y"))
	b := must(NewBuilderFrom(seed, TypeStringArray))
	ensure(b.AddNew("z"))
	eq(t, must(b.End()).String(), "['x', 'y', 'z']")
}

func TestNewBuilderFrom_byteArray(t *testing.T) {
	b := must(NewBuilderFrom(NewByteArray([]byte("ab")), TypeByteArray))
	ensure(b.AddNew(byte('c')))
	deepEqual(t, must(must(b.End()).ByteArray()), []byte("abc"))
}

func TestNewBuilderFrom_mismatch(t *testing.T) {
	_, err := NewBuilderFrom(MustNew(MustType("ax"), []any{1}), TypeStringArray)
	if !errors.Is(err, ErrWrongType) {
		t.Fatalf("err = %v, wanted ErrWrongType", err)
	}
	_, err = NewBuilderFrom(FromData(TypeStringArray, x("d501 01 01"), false), TypeStringArray)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, wanted *ValidationError", err)
	}
}
