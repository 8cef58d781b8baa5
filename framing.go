package varpack

import (
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Arrays and dictionaries are msgpack ext objects of type arrayExt. The
// payload holds the elements back to back, followed by one framing offset per
// element: the end of that element, relative to the start of the payload.
//
//	payload -> element_0 ... element_n-1 end_0 ... end_n-1
//
// Every framing offset has the same width, picked from the payload size by
// offsetSize, so element i can be located without decoding elements 0..i-1.
// An empty array has an empty payload. Dictionary elements are entries, i.e.
// a key immediately followed by its value.
const arrayExt int8 = 1

// maxArrayHeaderSize is the size of an ext32 header: code, uint32 length, type.
const maxArrayHeaderSize = 6

// emptyArrayData is the encoding of any empty array or dictionary.
var emptyArrayData = []byte{msgpcode.Ext8, 0, byte(arrayExt)}

// offsetSize returns the width of framing offsets in a payload of the given
// size.
func offsetSize(size int) int {
	switch {
	case size == 0:
		return 0
	case size <= 0xff:
		return 1
	case size <= 0xffff:
		return 2
	case uint64(size) <= 0xffff_ffff:
		return 4
	default:
		return 8
	}
}

// frameWidth picks the offset width for n elements taking body bytes. The
// width must agree with offsetSize of the resulting payload.
func frameWidth(body, n int) int {
	if n == 0 {
		return 0
	}
	for _, w := range [...]int{1, 2, 4} {
		if offsetSize(body+n*w) == w {
			return w
		}
	}
	return 8
}

func putOffset(buf []byte, w int, v uint64) {
	switch w {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	default:
		binary.LittleEndian.PutUint64(buf, v)
	}
}

func readOffset(buf []byte, w int) uint64 {
	switch w {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	default:
		return binary.LittleEndian.Uint64(buf)
	}
}

// appendFrameOffsets appends the framing offsets for elements ending at ends
// (relative to the payload start) to buf, whose payload so far is body bytes
// long.
func appendFrameOffsets(buf []byte, body int, ends []int) []byte {
	w := frameWidth(body, len(ends))
	off, buf := grow(buf, len(ends)*w)
	for _, end := range ends {
		putOffset(buf[off:], w, uint64(end))
		off += w
	}
	return buf
}

// finishArray completes an array whose header space starts at buf[hdr] and
// whose elements follow the reserved header space. It appends the framing
// offsets, writes the ext header right-aligned into the reserved space and
// returns the position of the header.
func finishArray(buf []byte, hdr int, ends []int) ([]byte, int) {
	payloadStart := hdr + maxArrayHeaderSize
	buf = appendFrameOffsets(buf, len(buf)-payloadStart, ends)

	h := newEncoder(make([]byte, 0, maxArrayHeaderSize))
	must0(h.enc.EncodeExtHeader(arrayExt, len(buf)-payloadStart))
	header := h.Finish()

	start := payloadStart - len(header)
	copy(buf[start:payloadStart], header)
	return buf, start
}

// frame locates the elements of an array payload.
type frame struct {
	data  []byte
	n     int
	table int
	width int
}

func parseFrame(payload []byte) (frame, error) {
	f := frame{data: payload}
	if len(payload) == 0 {
		return f, nil
	}
	f.width = offsetSize(len(payload))
	last := readOffset(payload[len(payload)-f.width:], f.width)
	if last > uint64(len(payload)-f.width) {
		return f, fmt.Errorf("framing offset %d is beyond the elements (%d bytes)", last, len(payload))
	}
	f.table = int(last)
	tableSize := len(payload) - f.table
	if tableSize%f.width != 0 {
		return f, fmt.Errorf("framing offsets take %d bytes, not a multiple of %d", tableSize, f.width)
	}
	f.n = tableSize / f.width
	return f, nil
}

func (f *frame) end(i int) int {
	return int(readOffset(f.data[f.table+i*f.width:], f.width))
}

// elem returns the bytes of element i.
func (f *frame) elem(i int) ([]byte, error) {
	start := 0
	if i > 0 {
		start = f.end(i - 1)
	}
	end := f.end(i)
	if start < 0 || start > end || end > f.table {
		return nil, fmt.Errorf("element %d has invalid bounds [%d, %d) in %d bytes", i, start, end, f.table)
	}
	return f.data[start:end], nil
}
