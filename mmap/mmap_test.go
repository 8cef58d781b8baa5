package mmap

import (
	"bytes"
	"os"
	"testing"
)

func TestOptionsHas(t *testing.T) {
	var o Options = Writable | Prefault
	if !o.Has(Writable) || o.Has(SequentialAccess) {
		t.Fatalf("Options.Has returned unexpected results for %v", o)
	}
}

func TestMmapAndMunmap(t *testing.T) {
	f := must(os.CreateTemp("", "mmap_test_*"))
	defer os.Remove(f.Name())
	defer f.Close()

	const size = 4096
	if err := f.Truncate(size); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	b, err := Mmap(f, 0, size, Writable)
	if err != nil {
		t.Fatalf("Mmap: %v", err)
	}
	if len(b) != size {
		t.Fatalf("len(mmap) = %d, wanted %d", len(b), size)
	}
	b[0] = 0x42
	if err := Fdatasync(f, b); err != nil {
		t.Fatalf("Fdatasync: %v", err)
	}
	if err := Munmap(b); err != nil {
		t.Fatalf("Munmap: %v", err)
	}
}

func TestMmap_unalignedOffset(t *testing.T) {
	f := must(os.CreateTemp("", "mmap_test_*"))
	defer os.Remove(f.Name())
	defer f.Close()

	data := make([]byte, 3*Alignment())
	for i := range data {
		data[i] = byte(i * 7)
	}
	must(f.Write(data))

	for _, off := range []int{1, 100, Alignment() - 1, Alignment(), Alignment() + 13} {
		size := 2*Alignment() - 20
		if off+size > len(data) {
			size = len(data) - off
		}
		b, err := Mmap(f, int64(off), size, RandomAccess|Prefault)
		if err != nil {
			t.Fatalf("Mmap(%d): %v", off, err)
		}
		if !bytes.Equal(b, data[off:off+size]) {
			t.Errorf("Mmap(%d, %d) returned wrong contents", off, size)
		}
		if err := Munmap(b); err != nil {
			t.Fatalf("Munmap(%d): %v", off, err)
		}
	}
}

func TestMmap_rejectsBadArgs(t *testing.T) {
	f := must(os.CreateTemp("", "mmap_test_*"))
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := Mmap(f, -1, 1, 0); err == nil {
		t.Errorf("Mmap with negative offset succeeded")
	}
	if _, err := Mmap(f, 0, 0, 0); err == nil {
		t.Errorf("Mmap with zero size succeeded")
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
