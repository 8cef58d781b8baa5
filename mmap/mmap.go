package mmap

import (
	"fmt"
	"os"
)

type Options uint

const (
	// Writable opens the file for writing (otherwise, it's opened read-only).
	Writable Options = 1 << 0

	// SequentialAccess is a hint requesting aggressive read-ahead.
	// Incompatible with RandomAccess. Maps to MADV_SEQUENTIAL on Unix.
	SequentialAccess Options = 1 << 1

	// RandomAccess is a hint that read ahead is less useful than normally.
	// Incompatible with SequentialAccess. Maps to MADV_RANDOM on Unix.
	RandomAccess Options = 1 << 2

	// Prefault is a hint requesting the entire region to be loaded in memory
	// for fastest access. Maps to MAP_POPULATE on Linux.
	Prefault Options = 1 << 3
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// Mmap maps size bytes of f starting at offset. The offset does not need to
// be aligned: the mapping starts at the preceding alignment boundary and the
// returned slice skips the padding.
func Mmap(f *os.File, offset int64, size int, opt Options) ([]byte, error) {
	if offset < 0 {
		return nil, fmt.Errorf("mmap: negative offset %d", offset)
	}
	if size <= 0 {
		return nil, fmt.Errorf("mmap: invalid size %d", size)
	}
	pad := int(offset % int64(Alignment()))
	if uint64(size)+uint64(pad) > MaxSize {
		return nil, fmt.Errorf("mmap: size %d exceeds maximum %d", size, uint64(MaxSize))
	}
	b, err := mmap(f, offset-int64(pad), size+pad, opt)
	if err != nil {
		return nil, err
	}
	return b[pad : pad+size : pad+size], nil
}

// Munmap unmaps the given slice from memory. The slice must be exactly as
// returned by Mmap.
func Munmap(b []byte) error {
	return munmap(b)
}

// Alignment returns the boundary that mapping offsets are rounded down to:
// the page size on Unix, the allocation granularity on Windows.
func Alignment() int {
	return alignment
}
