// Package codec implements the canonical binary encoding used for every
// value written to the Store or carried on the wire. Fixed-width integers
// are little-endian; variable-width integers use a compact length prefix
// keyed off the low two bits of the first byte (one/two/four-byte forms,
// plus a nine-byte form: a marker byte followed by the full eight-byte
// value); sequences are length-prefixed with the compact form; tagged sums
// are a single discriminant byte followed by the variant payload. Encoding
// is bijective: decode(encode(v)) == v and encode(decode(b)) == b for
// well-typed input.
package codec

import (
	"encoding/binary"

	"gamechain/internal/chainerr"
)

// Encoder accumulates canonical-encoded bytes.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the accumulated encoding.
func (e *Encoder) Bytes() []byte { return e.buf }

// PutUint8 writes a single byte.
func (e *Encoder) PutUint8(v uint8) { e.buf = append(e.buf, v) }

// PutUint32 writes a fixed-width little-endian uint32.
func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// PutUint64 writes a fixed-width little-endian uint64.
func (e *Encoder) PutUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// PutCompact writes v using the compact variable-length form: the low two
// bits of the first byte select the width (0 = 1 byte carrying 6 value
// bits, 1 = 2 bytes carrying 14 value bits, 2 = 4 bytes carrying 30 value
// bits, 3 = a marker byte followed by the full 8-byte little-endian value,
// 9 bytes in all, used for every v >= 2^30).
func (e *Encoder) PutCompact(v uint64) {
	switch {
	case v < 1<<6:
		e.buf = append(e.buf, byte(v<<2)|0)
	case v < 1<<14:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v<<2)|1)
		e.buf = append(e.buf, b[:]...)
	case v < 1<<30:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v<<2)|2)
		e.buf = append(e.buf, b[:]...)
	default:
		e.buf = append(e.buf, 3)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		e.buf = append(e.buf, b[:]...)
	}
}

// PutBytes writes a compact length prefix followed by raw bytes.
func (e *Encoder) PutBytes(b []byte) {
	e.PutCompact(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// PutFixed appends raw bytes with no length prefix (used for fixed-size
// arrays such as 32-byte UUIDs whose length is implied by the type).
func (e *Encoder) PutFixed(b []byte) { e.buf = append(e.buf, b...) }

// PutBool writes a single discriminant byte.
func (e *Encoder) PutBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// Decoder reads canonical-encoded bytes sequentially.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps b for sequential decoding.
func NewDecoder(b []byte) *Decoder { return &Decoder{buf: b} }

// Remaining reports how many bytes are unread.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) need(n int) error {
	if d.Remaining() < n {
		return chainerr.New(chainerr.DecodeMalformed, "need %d bytes, have %d", n, d.Remaining())
	}
	return nil
}

// Uint8 reads a single byte.
func (d *Decoder) Uint8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

// Uint32 reads a fixed-width little-endian uint32.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

// Uint64 reads a fixed-width little-endian uint64.
func (d *Decoder) Uint64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

// Compact reads a compact variable-length unsigned integer.
func (d *Decoder) Compact() (uint64, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	mode := d.buf[d.pos] & 0x03
	switch mode {
	case 0:
		v := uint64(d.buf[d.pos] >> 2)
		d.pos++
		return v, nil
	case 1:
		if err := d.need(2); err != nil {
			return 0, err
		}
		raw := binary.LittleEndian.Uint16(d.buf[d.pos:])
		d.pos += 2
		return uint64(raw >> 2), nil
	case 2:
		if err := d.need(4); err != nil {
			return 0, err
		}
		raw := binary.LittleEndian.Uint32(d.buf[d.pos:])
		d.pos += 4
		return uint64(raw >> 2), nil
	default:
		d.pos++
		if err := d.need(8); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint64(d.buf[d.pos:])
		d.pos += 8
		return v, nil
	}
}

// Bytes reads a compact length prefix followed by that many raw bytes,
// failing with DecodeBound if the length exceeds max (pass 0 for no bound).
func (d *Decoder) Bytes(max uint64) ([]byte, error) {
	n, err := d.Compact()
	if err != nil {
		return nil, err
	}
	if max > 0 && n > max {
		return nil, chainerr.New(chainerr.DecodeBound, "length %d exceeds max %d", n, max)
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return b, nil
}

// Fixed reads exactly n raw bytes with no length prefix.
func (d *Decoder) Fixed(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, d.buf[d.pos:d.pos+n])
	d.pos += n
	return b, nil
}

// Bool reads a single discriminant byte.
func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint8()
	if err != nil {
		return false, err
	}
	if v > 1 {
		return false, chainerr.New(chainerr.DecodeMalformed, "invalid bool discriminant %d", v)
	}
	return v == 1, nil
}

// BoundedBytes is a byte string whose encoded length must not exceed Max.
// Encoder.PutBounded returns a DecodeBound error when the bound is
// violated; Decoder.Bytes enforces it on decode.
type BoundedBytes struct {
	Val []byte
	Max int
}

// PutBounded writes b as a length-prefixed byte string, returning a
// DecodeBound error without writing anything when a positive max is
// exceeded.
func (e *Encoder) PutBounded(b []byte, max int) error {
	if max > 0 && len(b) > max {
		return chainerr.New(chainerr.DecodeBound, "length %d exceeds max %d", len(b), max)
	}
	e.PutBytes(b)
	return nil
}
