package varpack

import (
	"errors"
	"io"
)

// Reader streams the serialized bytes of a value. It holds a reference to
// the value's backing storage until Close, so it stays usable after the
// value itself has been released.
type Reader struct {
	data []byte
	buf  *Bytes
	off  int64
}

var (
	_ io.Reader   = (*Reader)(nil)
	_ io.ReaderAt = (*Reader)(nil)
	_ io.Seeker   = (*Reader)(nil)
	_ io.WriterTo = (*Reader)(nil)
	_ io.Closer   = (*Reader)(nil)
)

// NewReader returns a reader over the serialized bytes of v.
func (v *Value) NewReader() *Reader {
	return &Reader{data: v.data, buf: v.buf.Ref()}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	if r.off >= int64(len(r.data)) {
		return 0
	}
	return int(int64(len(r.data)) - r.off)
}

// Size returns the total number of bytes.
func (r *Reader) Size() int64 { return int64(len(r.data)) }

func (r *Reader) Read(p []byte) (int, error) {
	if r.off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.off:])
	r.off += int64(n)
	return n, nil
}

func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("varpack.Reader.ReadAt: negative offset")
	}
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.off + offset
	case io.SeekEnd:
		abs = int64(len(r.data)) + offset
	default:
		return 0, errors.New("varpack.Reader.Seek: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("varpack.Reader.Seek: negative position")
	}
	r.off = abs
	return abs, nil
}

func (r *Reader) WriteTo(w io.Writer) (int64, error) {
	if r.off >= int64(len(r.data)) {
		return 0, nil
	}
	chunk := r.data[r.off:]
	n, err := w.Write(chunk)
	if n > len(chunk) {
		panic("varpack.Reader.WriteTo: invalid Write count")
	}
	r.off += int64(n)
	if err == nil && n != len(chunk) {
		err = io.ErrShortWrite
	}
	return int64(n), err
}

// Close drops the reference to the backing storage. Afterwards the reader
// behaves as if it were empty. Closing twice is a no-op.
func (r *Reader) Close() error {
	if r.buf != nil {
		r.buf.Release()
		r.buf = nil
		r.data = nil
		r.off = 0
	}
	return nil
}
