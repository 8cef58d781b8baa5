package varpack

import (
	"fmt"
	"sync/atomic"
)

// Bytes is an immutable byte buffer shared between values through atomic
// reference counting. The optional release hook runs once, when the last
// reference is released; memory-mapped files use it to unmap.
//
// Heap-backed buffers do not strictly need to be released, but mapped ones
// stay mapped until every value derived from them has been released.
type Bytes struct {
	data    []byte
	refs    atomic.Int64
	release func()
}

var emptyBytes = NewBytes(nil)

// NewBytes wraps data with a reference count of 1. The caller must not
// modify data afterwards.
func NewBytes(data []byte) *Bytes {
	return NewBytesWithRelease(data, nil)
}

// NewBytesWithRelease is like NewBytes, but calls release when the last
// reference is dropped.
func NewBytesWithRelease(data []byte, release func()) *Bytes {
	b := &Bytes{data: data, release: release}
	b.refs.Store(1)
	return b
}

// Data returns the buffer contents. The slice is only valid while the caller
// holds a reference.
func (b *Bytes) Data() []byte {
	return b.data
}

func (b *Bytes) Len() int {
	return len(b.data)
}

// Refs returns the current reference count, for diagnostics and tests.
func (b *Bytes) Refs() int64 {
	return b.refs.Load()
}

// Ref adds a reference and returns b. It panics if b has already been
// released, leaving the count untouched.
func (b *Bytes) Ref() *Bytes {
	for {
		n := b.refs.Load()
		if n <= 0 {
			panic(fmt.Sprintf("varpack: Ref on released Bytes (refs = %d)", n))
		}
		if b.refs.CompareAndSwap(n, n+1) {
			return b
		}
	}
}

// Release drops a reference.
func (b *Bytes) Release() {
	n := b.refs.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("varpack: Bytes released too many times (refs = %d)", n))
	}
	if n == 0 && b.release != nil {
		b.release()
	}
}
