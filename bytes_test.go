package varpack

import (
	"testing"
)

func TestBytes_refcount(t *testing.T) {
	released := 0
	b := NewBytesWithRelease([]byte("hello"), func() { released++ })
	eq(t, b.Refs(), int64(1))
	eq(t, b.Len(), 5)

	b.Ref()
	eq(t, b.Refs(), int64(2))
	b.Release()
	eq(t, released, 0)
	b.Release()
	eq(t, released, 1)
	eq(t, b.Refs(), int64(0))
}

func TestBytes_misuse(t *testing.T) {
	t.Run("Ref after release", func(t *testing.T) {
		b := NewBytes(nil)
		b.Release()
		assertPanics(t, func() { b.Ref() })
		eq(t, b.Refs(), int64(0))
		assertPanics(t, func() { b.Ref() })
		eq(t, b.Refs(), int64(0))
	})
	t.Run("double release", func(t *testing.T) {
		b := NewBytes(nil)
		b.Release()
		assertPanics(t, func() { b.Release() })
	})
}

func TestValue_releaseIsIdempotent(t *testing.T) {
	b := NewBytes([]byte("abc"))
	v := FromBytes(TypeByteArray, b, true)
	eq(t, b.Refs(), int64(2))
	v.Release()
	v.Release()
	eq(t, b.Refs(), int64(1))
}

func TestValue_childrenHoldReferences(t *testing.T) {
	released := false
	arr := MustNew(TypeStringArray, []string{"a", "b"})
	b := NewBytesWithRelease(cloneBytes(arr.Data()), func() { released = true })
	v := FromBytes(TypeStringArray, b, true)
	b.Release()

	c := must(v.Child(1))
	v.Release()
	eq(t, released, false)
	eq(t, must(c.Str()), "b")
	c.Release()
	eq(t, released, true)
}
