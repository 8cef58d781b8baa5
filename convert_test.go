package varpack

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEmptyVarDict(t *testing.T) {
	v := EmptyVarDict()
	eq(t, v.Type(), TypeVarDict)
	eq(t, must(v.NChildren()), 0)
	m := must(ToMap(v))
	eq(t, len(m), 0)
	eq(t, v.String(), "{}")
}

func TestNewByteArray_copies(t *testing.T) {
	b := []byte("hello")
	v := NewByteArray(b)
	b[0] = 'J'
	deepEqual(t, must(v.ByteArray()), []byte("hello"))
	eq(t, v.Type(), TypeByteArray)
	eq(t, v.Size(), 5)
}

func TestNewByteArrayShared(t *testing.T) {
	released := false
	shared := NewBytesWithRelease([]byte("world"), func() { released = true })
	v := NewByteArrayShared(shared)
	shared.Release()
	eq(t, released, false)
	deepEqual(t, must(v.ByteArray()), []byte("world"))
	v.Release()
	eq(t, released, true)
}

func TestToMap(t *testing.T) {
	v := MustNew(MustType("a{sx}"), []any{
		[]any{"x", 1},
		[]any{"y", 2},
		[]any{"x", 3},
	})
	m := must(ToMap(v))
	got := make(map[string]int64, len(m))
	for k, v := range m {
		got[k] = must(v.Int64())
	}
	if diff := cmp.Diff(map[string]int64{"x": 3, "y": 2}, got); diff != "" {
		t.Errorf("ToMap mismatch (-want +got):\n%s", diff)
	}
}

func TestToMap_pairsAndVariants(t *testing.T) {
	v := MustNew(MustType("a(sv)"), []any{
		[]any{"a", "str"},
		[]any{"b", true},
	})
	m := must(ToMap(v))
	eq(t, len(m), 2)
	eq(t, m["a"].Type(), TypeVariant)
	eq(t, must(must(m["a"].Variant()).Str()), "str")
	eq(t, m["b"].String(), "<true>")
}

func TestToMap_wrongType(t *testing.T) {
	for _, sig := range []string{"as", "a{xs}", "a(s)", "a(sss)", "s"} {
		_, err := ToMap(FromData(MustType(sig), nil, true))
		if !errors.Is(err, ErrWrongType) {
			t.Errorf("ToMap(%s): err = %v, wanted ErrWrongType", sig, err)
		}
	}
}

func TestFromMap(t *testing.T) {
	v := must(FromMap(map[string]*Value{
		"b": NewInt32(2),
		"a": NewVariant(NewString("x")),
	}))
	eq(t, v.Type(), TypeVarDict)
	eq(t, v.String(), "{'a': <'x'>, 'b': <2>}")

	m := must(ToMap(v))
	eq(t, must(must(m["b"].Variant()).Int64()), int64(2))
}
