package varpack

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t testing.TB, prefix []byte, v *Value) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "value.bin")
	data := append(append([]byte(nil), prefix...), v.Data()...)
	ensure(os.WriteFile(path, data, 0644))
	return path
}

func bigArray(n int) *Value {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("record-%06d", i)
	}
	return records(keys...)
}

func TestReadFile(t *testing.T) {
	small := MustNew(MustType("a{sv}"), map[string]any{"k": "v"})
	big := bigArray(5000)
	if big.Size() < DefaultMmapThreshold {
		t.Fatalf("big.Size() = %d, wanted above mmap threshold", big.Size())
	}
	prefix := []byte("0123456789abc")

	tests := []struct {
		name  string
		v     *Value
		start int64
		opt   ReadOptions
	}{
		{"small heap", small, 0, ReadOptions{}},
		{"small offset", small, int64(len(prefix)), ReadOptions{}},
		{"big mmap", big, 0, ReadOptions{Verbose: true}},
		{"big mmap unaligned", big, int64(len(prefix)), ReadOptions{Prefault: true}},
		{"big heap", big, int64(len(prefix)), ReadOptions{DisableMmap: true}},
		{"small forced mmap", small, int64(len(prefix)), ReadOptions{MmapThreshold: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			if tt.start == 0 {
				path = writeTemp(t, nil, tt.v)
			} else {
				path = writeTemp(t, prefix, tt.v)
			}
			f := must(os.Open(path))
			v, err := tt.opt.ReadFile(f, tt.start, tt.v.Type(), false)
			ensure(f.Close())
			if err != nil {
				t.Fatalf("ReadFile failed: %v", err)
			}
			defer v.Release()

			eq(t, Equal(v, tt.v), true)
			ensure(v.Validate())
			eq(t, must(v.NChildren()), must(tt.v.NChildren()))
		})
	}
}

func TestReadFile_mappedSearch(t *testing.T) {
	big := bigArray(5000)
	path := writeTemp(t, nil, big)

	v := must(ReadPath(path, big.Type(), true))
	pos, found, err := BSearchStr(v, "record-004321")
	ensure(err)
	eq(t, found, true)
	eq(t, pos, 4321)

	el := must(v.Child(pos))
	buf := v.Backing()
	v.Release()
	eq(t, buf.Refs(), int64(1))
	eq(t, el.String(), "('record-004321',)")
	el.Release()
	eq(t, buf.Refs(), int64(0))
}

func TestReadFile_byteArray(t *testing.T) {
	payload := bytes.Repeat([]byte("xyz"), 10000)
	path := filepath.Join(t.TempDir(), "raw")
	ensure(os.WriteFile(path, payload, 0644))

	f := must(os.Open(path))
	defer f.Close()
	v := must(ReadFile(f, 1, TypeByteArray, false))
	defer v.Release()
	deepEqual(t, must(v.ByteArray()), payload[1:])
}

func TestReadFile_emptyRegion(t *testing.T) {
	path := writeTemp(t, []byte("abc"), NewByteArray(nil))
	f := must(os.Open(path))
	defer f.Close()

	v := must(ReadFile(f, 3, TypeByteArray, true))
	eq(t, v.Size(), 0)
	v.Release()

	v = must(ReadFile(f, 3, TypeString, false))
	var ve *ValidationError
	if err := v.Validate(); !errors.As(err, &ve) {
		t.Errorf("Validate on empty string: err = %v, wanted *ValidationError", err)
	}
}

func TestReadFile_emptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	ensure(os.WriteFile(path, nil, 0644))

	for _, trusted := range []bool{true, false} {
		v := must(ReadPath(path, MustType("a(sv)"), trusted))
		ensure(v.Validate())
		eq(t, must(v.NChildren()), 0)

		pos, found, err := BSearchStr(v, "x")
		ensure(err)
		eq(t, found, false)
		eq(t, pos, -1)

		eq(t, len(must(ToMap(v))), 0)
		eq(t, v.String(), "[]")
		v.Release()
	}

	d := must(ReadPath(path, TypeVarDict, false))
	eq(t, d.String(), "{}")
	d.Release()
}

func TestReadFile_errors(t *testing.T) {
	path := writeTemp(t, nil, NewString("abc"))
	f := must(os.Open(path))
	defer f.Close()

	var ioe *IOError
	_, err := ReadFile(f, 100, TypeString, true)
	if !errors.As(err, &ioe) || !errors.Is(err, fs.ErrInvalid) {
		t.Errorf("start beyond EOF: err = %v, wanted *IOError wrapping ErrInvalid", err)
	}

	_, err = ReadFile(f, -1, TypeString, true)
	if !errors.As(err, &ioe) {
		t.Errorf("negative start: err = %v, wanted *IOError", err)
	}

	_, err = ReadPath(filepath.Join(t.TempDir(), "missing"), TypeString, true)
	if !errors.As(err, &ioe) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file: err = %v, wanted *IOError wrapping ErrNotExist", err)
	}
	eq(t, ioe.Op, "open")

	closed := must(os.Open(path))
	closed.Close()
	_, err = ReadFile(closed, 0, TypeString, true)
	if !errors.As(err, &ioe) {
		t.Errorf("closed file: err = %v, wanted *IOError", err)
	}
}

func TestReadFile_pipe(t *testing.T) {
	pr, pw, err := os.Pipe()
	ensure(err)
	defer pr.Close()
	go func() {
		_, _ = pw.Write([]byte("skip"))
		_, _ = pw.Write(NewString("piped").Data())
		pw.Close()
	}()
	v := must(ReadFile(pr, 4, TypeString, false))
	eq(t, must(v.Str()), "piped")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	v := MustNew(MustType("a{sv}"), map[string]any{"a": 1, "b": []any{"x", true}})
	ensure(WriteFile(path, v))
	ensure(WriteFile(path, v))

	got := must(ReadPath(path, v.Type(), false))
	defer got.Release()
	eq(t, Equal(got, v), true)
	eq(t, got.String(), "{'a': <1>, 'b': <('x', true)>}")

	entries := must(os.ReadDir(filepath.Dir(path)))
	eq(t, len(entries), 1)

	err := WriteFile(filepath.Join(t.TempDir(), "missing", "out.bin"), v)
	var ioe *IOError
	if !errors.As(err, &ioe) {
		t.Errorf("err = %v, wanted *IOError", err)
	}
}
