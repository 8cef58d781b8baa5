package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/andreyvit/varpack"
	"github.com/cespare/xxhash/v2"
)

// Record layout:
//
//  1. Flags (uvarint).
//  2. Signature length (uvarint), then the signature.
//  3. Uncompressed data size (uvarint).
//  4. xxhash64 of the uncompressed data (8 bytes, big endian).
//  5. Data, zstd-compressed if rfZstd is set.

type recordFlags uint64

const (
	rfVerBit0 = recordFlags(1 << iota)
	rfVerBit1
	rfVerBit2
	rfVerBit3
	rfCompressionBit0

	rfVerMask       = (rfVerBit0 | rfVerBit1 | rfVerBit2 | rfVerBit3)
	rfVer1          = rfVerBit0
	rfZstd          = rfCompressionBit0
	rfSupportedMask = (rfVer1 | rfZstd)
	rfDefault       = rfVer1

	minRecordSize      = 1 + 1 + 1 + 8
	maxRecordHeaderLen = binary.MaxVarintLen64*3 + 8
	maxSignatureLen    = 255
)

func (rf recordFlags) ver() recordFlags {
	return rf & rfVerMask
}

type record struct {
	Flags   recordFlags
	Sig     string
	Size    int
	Sum     uint64
	Payload []byte
}

func (r *record) compressed() bool {
	return r.Flags&rfZstd != 0
}

func (s *Store) encodeRecord(v *varpack.Value) []byte {
	data := v.Data()
	sig := v.Type().String()
	flags := rfDefault

	buf := make([]byte, 0, maxRecordHeaderLen+len(sig)+len(data))
	var payload []byte
	if s.compressThreshold > 0 && len(data) >= s.compressThreshold {
		payload = s.enc.EncodeAll(data, nil)
		if len(payload) < len(data) {
			flags |= rfZstd
		} else {
			payload = data
		}
	} else {
		payload = data
	}

	buf = binary.AppendUvarint(buf, uint64(flags))
	buf = binary.AppendUvarint(buf, uint64(len(sig)))
	buf = append(buf, sig...)
	buf = binary.AppendUvarint(buf, uint64(len(data)))
	buf = binary.BigEndian.AppendUint64(buf, xxhash.Sum64(data))
	buf = append(buf, payload...)
	return buf
}

type byteDecoder struct {
	Orig []byte
	Buf  []byte
}

func makeByteDecoder(buf []byte) byteDecoder {
	return byteDecoder{buf, buf}
}

func (d *byteDecoder) Off() int {
	return len(d.Orig) - len(d.Buf)
}

func (d *byteDecoder) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.Buf)
	if n <= 0 {
		return 0, recordErrf(d.Orig, d.Off(), nil, "invalid uvarint")
	}
	d.Buf = d.Buf[n:]
	return v, nil
}

func (d *byteDecoder) Uvarinti() (int, error) {
	v, err := d.Uvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt {
		return 0, recordErrf(d.Orig, d.Off(), nil, "value does not fit into int: %d", v)
	}
	return int(v), nil
}

func (d *byteDecoder) Raw(n int) ([]byte, error) {
	if len(d.Buf) < n {
		return nil, recordErrf(d.Orig, d.Off(), nil, "not enough data: %d bytes remaining, %d wanted", len(d.Buf), n)
	}
	v := d.Buf[:n]
	d.Buf = d.Buf[n:]
	return v, nil
}

// decode parses the header. Payload aliases data.
func (r *record) decode(data []byte) error {
	if len(data) < minRecordSize {
		return recordErrf(data, 0, nil, "invalid record: at least %d bytes required", minRecordSize)
	}
	d := makeByteDecoder(data)

	v, err := d.Uvarint()
	if err != nil {
		return err
	}
	if v&^uint64(rfSupportedMask) != 0 || recordFlags(v).ver() != rfVer1 {
		return recordErrf(data, 0, nil, "invalid record: unsupported flags %x", v)
	}
	r.Flags = recordFlags(v)

	n, err := d.Uvarinti()
	if err != nil {
		return err
	}
	if n == 0 || n > maxSignatureLen {
		return recordErrf(data, d.Off(), nil, "invalid record: bad signature length %d", n)
	}
	sig, err := d.Raw(n)
	if err != nil {
		return err
	}
	r.Sig = string(sig)

	r.Size, err = d.Uvarinti()
	if err != nil {
		return err
	}

	sum, err := d.Raw(8)
	if err != nil {
		return err
	}
	r.Sum = binary.BigEndian.Uint64(sum)

	r.Payload = d.Buf
	if !r.compressed() && len(r.Payload) != r.Size {
		return recordErrf(data, d.Off(), nil, "invalid record: got %d bytes of data, expected %d bytes", len(r.Payload), r.Size)
	}
	return nil
}

// materialize decompresses or copies the payload, verifies the checksum and
// returns a trusted value.
func (s *Store) materialize(raw []byte) (*varpack.Value, error) {
	var r record
	if err := r.decode(raw); err != nil {
		return nil, err
	}
	typ, err := varpack.ParseType(r.Sig)
	if err != nil {
		return nil, recordErrf(raw, 0, err, "invalid record signature")
	}

	var data []byte
	if r.compressed() {
		data, err = s.dec.DecodeAll(r.Payload, make([]byte, 0, r.Size))
		if err != nil {
			return nil, recordErrf(raw, len(raw)-len(r.Payload), err, "decompression failed")
		}
		if len(data) != r.Size {
			return nil, recordErrf(raw, len(raw)-len(r.Payload), nil, "decompressed %d bytes, expected %d bytes", len(data), r.Size)
		}
	} else {
		data = make([]byte, len(r.Payload))
		copy(data, r.Payload)
	}

	if sum := xxhash.Sum64(data); sum != r.Sum {
		return nil, recordErrf(raw, len(raw)-len(r.Payload), nil, "checksum mismatch: %016x, expected %016x", sum, r.Sum)
	}
	return varpack.FromData(typ, data, true), nil
}

func (r *record) String() string {
	var comp string
	if r.compressed() {
		comp = fmt.Sprintf(" zstd(%d)", len(r.Payload))
	}
	return fmt.Sprintf("%s %dB%s sum=%016x", r.Sig, r.Size, comp, r.Sum)
}
