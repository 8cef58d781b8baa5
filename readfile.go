package varpack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/andreyvit/varpack/mmap"
)

// DefaultMmapThreshold is the region size at which ReadFile switches from
// reading into the heap to memory-mapping.
const DefaultMmapThreshold = 16 * 1024

// ReadOptions controls how ReadFile materializes file regions. The zero value
// is ready to use.
type ReadOptions struct {
	// MmapThreshold is the smallest region that gets memory-mapped.
	// Zero means DefaultMmapThreshold.
	MmapThreshold int

	// DisableMmap forces every region to be read into the heap.
	DisableMmap bool

	// Prefault asks the OS to load mapped regions eagerly.
	Prefault bool

	Logger  *slog.Logger
	Verbose bool
}

func (o *ReadOptions) setDefaults() {
	if o.MmapThreshold <= 0 {
		o.MmapThreshold = DefaultMmapThreshold
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// ReadFile materializes the region of f from start to end of file as a value
// of type typ, using default options.
func ReadFile(f *os.File, start int64, typ *Type, trusted bool) (*Value, error) {
	return ReadOptions{}.ReadFile(f, start, typ, trusted)
}

// ReadPath opens path and materializes the whole file, using default options.
func ReadPath(path string, typ *Type, trusted bool) (*Value, error) {
	return ReadOptions{}.ReadPath(path, typ, trusted)
}

// ReadPath opens path and materializes the whole file. Mapped values stay
// valid after the file is closed.
func (o ReadOptions) ReadPath(path string, typ *Type, trusted bool) (*Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErrf("open", path, err)
	}
	defer f.Close()
	return o.ReadFile(f, 0, typ, trusted)
}

// ReadFile materializes the region of f from start to end of file as a value
// of type typ.
//
// Regular files at or above MmapThreshold bytes are memory-mapped read-only;
// the mapping lives until the value and everything derived from it have been
// released. Smaller regions, and files that cannot be mapped such as pipes,
// are read into memory.
//
// An untrusted value is validated on first typed access, not here.
func (o ReadOptions) ReadFile(f *os.File, start int64, typ *Type, trusted bool) (*Value, error) {
	o.setDefaults()
	name := f.Name()
	if start < 0 {
		return nil, ioErrf("read", name, fmt.Errorf("negative offset %d: %w", start, os.ErrInvalid))
	}

	st, err := f.Stat()
	if err != nil {
		return nil, ioErrf("stat", name, err)
	}
	if !st.Mode().IsRegular() {
		return o.readStream(f, start, typ, trusted)
	}

	size := st.Size()
	if start > size {
		return nil, ioErrf("read", name, fmt.Errorf("offset %d is beyond end of file (%d bytes): %w", start, size, os.ErrInvalid))
	}
	n := size - start
	if n == 0 {
		return FromBytes(typ, emptyBytes, trusted), nil
	}
	if n > math.MaxInt {
		return nil, ioErrf("read", name, fmt.Errorf("region of %d bytes is too large: %w", n, os.ErrInvalid))
	}

	if !o.DisableMmap && n >= int64(o.MmapThreshold) && n <= mmap.MaxSize {
		return o.mapRegion(f, start, int(n), typ, trusted)
	}

	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, start); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, ioErrf("read", name, err)
	}
	if o.Verbose {
		o.Logger.LogAttrs(context.Background(), slog.LevelDebug, "varpack: read region", slog.String("file", name), slog.Int64("start", start), slog.Int64("size", n))
	}
	return FromData(typ, buf, trusted), nil
}

func (o *ReadOptions) mapRegion(f *os.File, start int64, n int, typ *Type, trusted bool) (*Value, error) {
	name := f.Name()
	opt := mmap.RandomAccess
	if o.Prefault {
		opt |= mmap.Prefault
	}
	data, err := mmap.Mmap(f, start, n, opt)
	if err != nil {
		return nil, ioErrf("mmap", name, err)
	}
	logger := o.Logger
	b := NewBytesWithRelease(data, func() {
		if err := mmap.Munmap(data); err != nil {
			logger.LogAttrs(context.Background(), slog.LevelError, "varpack: munmap failed", slog.String("file", name), slog.Any("err", err))
		}
	})
	if o.Verbose {
		o.Logger.LogAttrs(context.Background(), slog.LevelDebug, "varpack: mapped region", slog.String("file", name), slog.Int64("start", start), slog.Int("size", n))
	}
	return newValue(typ, data, b, trusted), nil
}

func (o *ReadOptions) readStream(f *os.File, start int64, typ *Type, trusted bool) (*Value, error) {
	name := f.Name()
	if start > 0 {
		skipped, err := io.CopyN(io.Discard, f, start)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("offset %d is beyond end of stream (%d bytes): %w", start, skipped, os.ErrInvalid)
			}
			return nil, ioErrf("read", name, err)
		}
	}
	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, ioErrf("read", name, err)
	}
	if o.Verbose {
		o.Logger.LogAttrs(context.Background(), slog.LevelDebug, "varpack: read stream", slog.String("file", name), slog.Int64("start", start), slog.Int("size", len(buf)))
	}
	return FromData(typ, buf, trusted), nil
}

// WriteFile atomically replaces path with the serialized bytes of v, so that
// ReadPath(path, v.Type(), ...) yields an equal value.
func WriteFile(path string, v *Value) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return ioErrf("create", path, err)
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err := v.WriteTo(f); err != nil {
		return ioErrf("write", tmp, err)
	}
	if err := mmap.Fdatasync(f, nil); err != nil {
		return ioErrf("fdatasync", tmp, err)
	}
	if err := f.Close(); err != nil {
		return ioErrf("close", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return ioErrf("rename", path, err)
	}
	ok = true
	return nil
}
