package varpack

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// decoder reads msgpack objects out of a byte slice while tracking the
// current offset, so that callers can slice children out of the original
// data instead of copying them.
type decoder struct {
	data []byte
	r    bytes.Reader
	dec  *msgpack.Decoder
}

func getDecoder(data []byte) *decoder {
	d := decoderPool.Get().(*decoder)
	d.data = data
	d.r.Reset(data)
	d.dec = msgpack.GetDecoder()
	d.dec.Reset(&d.r)
	return d
}

func putDecoder(d *decoder) {
	msgpack.PutDecoder(d.dec)
	d.dec = nil
	d.data = nil
	d.r.Reset(nil)
	decoderPool.Put(d)
}

func (d *decoder) Off() int {
	return len(d.data) - d.r.Len()
}

func (d *decoder) Remaining() int {
	return d.r.Len()
}

// Skip skips the next object. Arrays are skipped using their ext length,
// without copying their payload.
func (d *decoder) Skip() error {
	c, err := d.dec.PeekCode()
	if err != nil {
		return err
	}
	if msgpcode.IsExt(c) {
		_, n, err := d.dec.DecodeExtHeader()
		if err != nil {
			return err
		}
		_, err = d.take(n)
		return err
	}
	return d.dec.Skip()
}

func (d *decoder) ArrayLen() (int, error) {
	n, err := d.dec.DecodeArrayLen()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("nil instead of array")
	}
	return n, nil
}

// Array reads an array or dictionary and returns the frame of its payload.
func (d *decoder) Array() (frame, error) {
	c, err := d.dec.PeekCode()
	if err != nil {
		return frame{}, err
	}
	if !msgpcode.IsExt(c) {
		return frame{}, fmt.Errorf("expected array, got code %x", c)
	}
	id, n, err := d.dec.DecodeExtHeader()
	if err != nil {
		return frame{}, err
	}
	if id != arrayExt {
		return frame{}, fmt.Errorf("expected array, got ext type %d", id)
	}
	payload, err := d.take(n)
	if err != nil {
		return frame{}, err
	}
	return parseFrame(payload)
}

// Str returns the payload of a msgpack str without copying it.
func (d *decoder) Str() ([]byte, error) {
	c, err := d.dec.PeekCode()
	if err != nil {
		return nil, err
	}
	if !msgpcode.IsString(c) {
		return nil, fmt.Errorf("expected string, got code %x", c)
	}
	return d.payload()
}

// Bin returns the payload of a msgpack bin without copying it.
func (d *decoder) Bin() ([]byte, error) {
	c, err := d.dec.PeekCode()
	if err != nil {
		return nil, err
	}
	if !msgpcode.IsBin(c) {
		return nil, fmt.Errorf("expected binary, got code %x", c)
	}
	return d.payload()
}

func (d *decoder) payload() ([]byte, error) {
	n, err := d.dec.DecodeBytesLen()
	if err != nil {
		return nil, err
	}
	return d.take(n)
}

// take returns the next n bytes without copying them.
func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || n > d.r.Len() {
		return nil, fmt.Errorf("not enough data: %d bytes remaining, %d wanted", d.r.Len(), n)
	}
	off := d.Off()
	if _, err := d.r.Seek(int64(n), io.SeekCurrent); err != nil {
		return nil, err
	}
	return d.data[off : off+n], nil
}

func (d *decoder) Bool() (bool, error) {
	return d.dec.DecodeBool()
}

// Integer decodes any msgpack integer. Non-negative values are returned in u,
// negative ones in i with neg set.
func (d *decoder) Integer() (u uint64, i int64, neg bool, err error) {
	c, err := d.dec.PeekCode()
	if err != nil {
		return 0, 0, false, err
	}
	switch {
	case c <= msgpcode.PosFixedNumHigh, c == msgpcode.Uint8, c == msgpcode.Uint16, c == msgpcode.Uint32, c == msgpcode.Uint64:
		u, err = d.dec.DecodeUint64()
		return u, 0, false, err
	case c >= msgpcode.NegFixedNumLow, c == msgpcode.Int8, c == msgpcode.Int16, c == msgpcode.Int32, c == msgpcode.Int64:
		i, err = d.dec.DecodeInt64()
		if err != nil {
			return 0, 0, false, err
		}
		if i >= 0 {
			return uint64(i), 0, false, nil
		}
		return 0, i, true, nil
	default:
		return 0, 0, false, fmt.Errorf("expected integer, got code %x", c)
	}
}

func (d *decoder) Float() (float64, error) {
	c, err := d.dec.PeekCode()
	if err != nil {
		return 0, err
	}
	if c != msgpcode.Float && c != msgpcode.Double {
		return 0, fmt.Errorf("expected float, got code %x", c)
	}
	return d.dec.DecodeFloat64()
}

// object skips one object of the given type and returns its raw bytes. For
// dictionary entries, this covers both the key and the value.
func (d *decoder) object(typ *Type) ([]byte, error) {
	start := d.Off()
	if err := d.Skip(); err != nil {
		return nil, err
	}
	if typ.kind == KindDictEntry {
		if err := d.Skip(); err != nil {
			return nil, err
		}
	}
	return d.data[start:d.Off()], nil
}

func checkIntRange(kind Kind, u uint64, i int64, neg bool) error {
	lo, hi := kind.intBounds()
	if neg {
		if i < lo {
			return fmt.Errorf("%d out of range for %s", i, kind)
		}
	} else if u > hi {
		return fmt.Errorf("%d out of range for %s", u, kind)
	}
	return nil
}

// validate checks that the next object conforms to typ.
func (d *decoder) validate(typ *Type) error {
	switch k := typ.kind; {
	case k == KindBool:
		_, err := d.Bool()
		return err
	case k.isInteger():
		u, i, neg, err := d.Integer()
		if err != nil {
			return err
		}
		return checkIntRange(k, u, i, neg)
	case k == KindDouble:
		_, err := d.Float()
		return err
	case k == KindString:
		s, err := d.Str()
		if err != nil {
			return err
		}
		if !utf8.Valid(s) {
			return fmt.Errorf("string is not valid UTF-8")
		}
		if bytes.IndexByte(s, 0) >= 0 {
			return fmt.Errorf("string contains a NUL byte")
		}
		return nil
	case k == KindVariant:
		inner, err := d.variantHeader()
		if err != nil {
			return err
		}
		return d.validate(inner)
	case k == KindArray:
		if typ.IsByteArray() {
			_, err := d.Bin()
			return err
		}
		f, err := d.Array()
		if err != nil {
			return err
		}
		return validateFrame(&f, typ.elem)
	case k == KindTuple:
		n, err := d.ArrayLen()
		if err != nil {
			return err
		}
		if n != len(typ.fields) {
			return fmt.Errorf("tuple %s has %d fields, got %d", typ, len(typ.fields), n)
		}
		for _, f := range typ.fields {
			if err := d.validate(f); err != nil {
				return err
			}
		}
		return nil
	case k == KindDictEntry:
		if err := d.validate(typ.fields[0]); err != nil {
			return err
		}
		return d.validate(typ.fields[1])
	default:
		panic(fmt.Sprintf("unsupported kind %v", k))
	}
}

// validateFrame checks each element of f against elem, and the framing
// offsets against the element boundaries. The last offset is where the
// offsets start, so matching boundaries leave no stray bytes.
func validateFrame(f *frame, elem *Type) error {
	d := getDecoder(f.data[:f.table])
	defer putDecoder(d)
	for i := range f.n {
		if err := d.validate(elem); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		if end := f.end(i); end != d.Off() {
			return fmt.Errorf("element %d ends at %d, but its framing offset is %d", i, d.Off(), end)
		}
	}
	return nil
}

// variantHeader reads the [signature, value] array header and the signature,
// leaving the decoder positioned at the inner value.
func (d *decoder) variantHeader() (*Type, error) {
	n, err := d.ArrayLen()
	if err != nil {
		return nil, err
	}
	if n != 2 {
		return nil, fmt.Errorf("variant must have 2 elements, got %d", n)
	}
	sig, err := d.Str()
	if err != nil {
		return nil, err
	}
	inner, err := ParseType(string(sig))
	if err != nil {
		return nil, err
	}
	if inner.kind == KindDictEntry {
		return nil, fmt.Errorf("variant cannot hold a dictionary entry")
	}
	return inner, nil
}

// encoder appends msgpack objects to a byte slice.
type encoder struct {
	bb  bytesBuilder
	enc *msgpack.Encoder
}

func newEncoder(buf []byte) *encoder {
	e := &encoder{bb: bytesBuilder{buf}}
	e.enc = msgpack.GetEncoder()
	e.enc.Reset(&e.bb)
	return e
}

// Finish releases the msgpack encoder and returns the encoded bytes.
func (e *encoder) Finish() []byte {
	msgpack.PutEncoder(e.enc)
	e.enc = nil
	return e.bb.Buf
}

func (e *encoder) Bool(v bool) {
	must0(e.enc.EncodeBool(v))
}

func (e *encoder) Int(v int64) {
	must0(e.enc.EncodeInt(v))
}

func (e *encoder) Uint(v uint64) {
	must0(e.enc.EncodeUint(v))
}

func (e *encoder) Float(v float64) {
	must0(e.enc.EncodeFloat64(v))
}

func (e *encoder) String(v string) {
	must0(e.enc.EncodeString(v))
}

func (e *encoder) Bin(v []byte) {
	must0(e.enc.EncodeBytesLen(len(v)))
	e.bb.Buf = appendRaw(e.bb.Buf, v)
}

func (e *encoder) ArrayLen(n int) {
	must0(e.enc.EncodeArrayLen(n))
}

// arrayMark tracks an array or dictionary being written.
type arrayMark struct {
	hdr  int
	ends []int
}

// BeginArray reserves room for an array header. Each element must be
// followed by EndElem, and the array by EndArray.
func (e *encoder) BeginArray() arrayMark {
	return arrayMark{hdr: e.bb.Grow(maxArrayHeaderSize)}
}

func (e *encoder) EndElem(m *arrayMark) {
	m.ends = append(m.ends, len(e.bb.Buf)-m.hdr-maxArrayHeaderSize)
}

// EndArray writes the framing offsets and the header, and closes the gap
// left by an unused part of the reserved header space.
func (e *encoder) EndArray(m *arrayMark) {
	buf, start := finishArray(e.bb.Buf, m.hdr, m.ends)
	if start > m.hdr {
		n := copy(buf[m.hdr:], buf[start:])
		buf = buf[:m.hdr+n]
	}
	e.bb.Buf = buf
}

func (e *encoder) Raw(v []byte) {
	e.bb.Buf = appendRaw(e.bb.Buf, v)
}

// Child appends a value in its in-container form.
func (e *encoder) Child(v *Value) {
	if v.typ.IsByteArray() {
		e.Bin(v.data)
	} else {
		e.Raw(v.data)
	}
}

// must0 panics on encoder errors, which can only come from the writer, and
// bytesBuilder never fails.
func must0(err error) {
	if err != nil {
		panic(fmt.Errorf("varpack: encoding failed: %w", err))
	}
}
