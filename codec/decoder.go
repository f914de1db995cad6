// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package codec

import (
	"fmt"
	"math"

	"github.com/google/szl/value"
)

// Decoder walks a byte stream produced by Encoder. Every tag is
// self-describing (array/tuple boundaries are delimited, not
// length-prefixed), so decoding needs no external schema.
type Decoder struct {
	data []byte
	pos  int
}

// NewDecoder returns a Decoder over data. data is not copied.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Done reports whether the decoder has consumed the entire input.
func (d *Decoder) Done() bool { return d.pos >= len(d.data) }

// Pos returns the current byte offset into the input.
func (d *Decoder) Pos() int { return d.pos }

// Skip advances past the next value without returning it, failing the
// same way Next would on a malformed stream.
func (d *Decoder) Skip() error {
	_, err := d.Next()
	return err
}

// Next decodes and returns the next value from the stream, recursing
// into Array/Tuple markers as needed.
func (d *Decoder) Next() (value.TypedValue, error) {
	if d.pos >= len(d.data) {
		return value.TypedValue{}, ErrTruncated
	}
	tag := d.data[d.pos]

	switch {
	case tag == tagBoolFalse:
		d.pos++
		return value.NewBool(false), nil
	case tag == tagBoolTrue:
		d.pos++
		return value.NewBool(true), nil
	case tag == tagV1Bool:
		if d.pos+2 > len(d.data) {
			return value.TypedValue{}, ErrTruncated
		}
		b := d.data[d.pos+1] != 0
		d.pos += 2
		return value.NewBool(b), nil

	case tag == tagBytes:
		return d.decodeEscapedBytes(false)
	case tag == tagString:
		return d.decodeNulTerminated()
	case tag == tagV1Bytes:
		return d.decodeV1Bytes()

	case tag == tagFloat:
		if d.pos+9 > len(d.data) {
			return value.TypedValue{}, ErrTruncated
		}
		bits := readUint64(d.data[d.pos+1 : d.pos+9])
		d.pos += 9
		if bits>>63 == 1 {
			bits = bits &^ (1 << 63)
		} else {
			bits = ^bits
		}
		return value.NewFloat(math.Float64frombits(bits)), nil
	case tag == tagV1Float:
		if d.pos+10 > len(d.data) {
			return value.TypedValue{}, ErrTruncated
		}
		sign := d.data[d.pos+1]
		abs := math.Float64frombits(readUint64(d.data[d.pos+2 : d.pos+10]))
		d.pos += 10
		if sign == 0 {
			abs = -abs
		}
		return value.NewFloat(abs), nil

	case tag >= tagFingerprintBase && tag < tagFingerprintBase+8:
		n := int(tag-tagFingerprintBase) + 1
		u, err := d.readTrimmed(n)
		if err != nil {
			return value.TypedValue{}, err
		}
		return value.NewFingerprint(u), nil
	case tag == tagV1Fingerprint:
		if d.pos+9 > len(d.data) {
			return value.TypedValue{}, ErrTruncated
		}
		u := readUint64(d.data[d.pos+1 : d.pos+9])
		d.pos += 9
		return value.NewFingerprint(u), nil

	case tag >= tagTimeBase && tag < tagTimeBase+8:
		n := int(tag-tagTimeBase) + 1
		u, err := d.readTrimmed(n)
		if err != nil {
			return value.TypedValue{}, err
		}
		return value.NewTime(u), nil
	case tag == tagV1Time:
		if d.pos+9 > len(d.data) {
			return value.TypedValue{}, ErrTruncated
		}
		u := readUint64(d.data[d.pos+1 : d.pos+9])
		d.pos += 9
		return value.NewTime(u), nil

	case tag >= tagIntNegBase && tag < tagIntNegBase+8:
		n := 8 - int(tag-tagIntNegBase)
		u, err := d.readTrimmedInverted(n)
		if err != nil {
			return value.TypedValue{}, err
		}
		return value.NewInt(-int64(u-1) - 1), nil
	case tag >= tagIntPosBase && tag < tagIntPosBase+8:
		n := int(tag-tagIntPosBase) + 1
		u, err := d.readTrimmed(n)
		if err != nil {
			return value.TypedValue{}, err
		}
		return value.NewInt(int64(u)), nil
	case tag == tagV1Int:
		if d.pos+9 > len(d.data) {
			return value.TypedValue{}, ErrTruncated
		}
		u := readUint64(d.data[d.pos+1 : d.pos+9])
		d.pos += 9
		return value.NewInt(int64(u - (1 << 63))), nil

	case tag == tagArrayStart:
		d.pos++
		return d.decodeSeq(tagArrayEnd, value.Array)
	case tag == tagTupleStart:
		d.pos++
		return d.decodeSeq(tagTupleEnd, value.Tuple)
	case tag == tagMapStart:
		d.pos++
		return d.decodeMap()

	default:
		return value.TypedValue{}, fmt.Errorf("%w: unknown tag 0x%02x at offset %d", ErrInvalidValue, tag, d.pos)
	}
}

func (d *Decoder) decodeSeq(end byte, kind value.Kind) (value.TypedValue, error) {
	var elems []value.TypedValue
	for {
		if d.pos >= len(d.data) {
			return value.TypedValue{}, ErrUnbalanced
		}
		if d.data[d.pos] == end {
			d.pos++
			if kind == value.Array {
				return value.NewArray(elems), nil
			}
			return value.NewTuple(elems), nil
		}
		v, err := d.Next()
		if err != nil {
			return value.TypedValue{}, err
		}
		elems = append(elems, v)
	}
}

func (d *Decoder) decodeMap() (value.TypedValue, error) {
	n, err := d.Next()
	if err != nil {
		return value.TypedValue{}, err
	}
	if n.Kind != value.Int {
		return value.TypedValue{}, fmt.Errorf("%w: map pair-count is not an int", ErrInvalidValue)
	}
	pairs := make([]value.Pair, 0, n.Int())
	for int64(len(pairs)) < n.Int() {
		k, err := d.Next()
		if err != nil {
			return value.TypedValue{}, err
		}
		v, err := d.Next()
		if err != nil {
			return value.TypedValue{}, err
		}
		pairs = append(pairs, value.Pair{Key: k, Value: v})
	}
	if d.pos >= len(d.data) || d.data[d.pos] != tagMapEnd {
		return value.TypedValue{}, ErrUnbalanced
	}
	d.pos++
	return value.NewMap(pairs), nil
}

func (d *Decoder) decodeEscapedBytes(asString bool) (value.TypedValue, error) {
	d.pos++ // tag
	var out []byte
	for {
		if d.pos >= len(d.data) {
			return value.TypedValue{}, ErrUnterminated
		}
		b := d.data[d.pos]
		if b != bytesTerm {
			out = append(out, b)
			d.pos++
			continue
		}
		if d.pos+1 >= len(d.data) {
			return value.TypedValue{}, ErrUnterminated
		}
		next := d.data[d.pos+1]
		if next == bytesTerm {
			out = append(out, bytesTerm)
			d.pos += 2
			continue
		}
		if next == 0x00 {
			d.pos += 2
			if asString {
				return value.NewString(string(out)), nil
			}
			return value.NewBytes(out), nil
		}
		return value.TypedValue{}, fmt.Errorf("%w: invalid escape sequence in byte string", ErrInvalidValue)
	}
}

func (d *Decoder) decodeNulTerminated() (value.TypedValue, error) {
	d.pos++ // tag
	start := d.pos
	for d.pos < len(d.data) && d.data[d.pos] != 0x00 {
		d.pos++
	}
	if d.pos >= len(d.data) {
		return value.TypedValue{}, ErrUnterminated
	}
	s := string(d.data[start:d.pos])
	d.pos++ // NUL
	return value.NewString(s), nil
}

func (d *Decoder) decodeV1Bytes() (value.TypedValue, error) {
	if d.pos+5 > len(d.data) {
		return value.TypedValue{}, ErrTruncated
	}
	n := int(readUint32(d.data[d.pos+1 : d.pos+5]))
	start := d.pos + 5
	if start+n > len(d.data) {
		return value.TypedValue{}, ErrTruncated
	}
	out := append([]byte(nil), d.data[start:start+n]...)
	d.pos = start + n
	return value.NewBytes(out), nil
}

func (d *Decoder) readTrimmed(n int) (uint64, error) {
	if d.pos+1+n > len(d.data) {
		return 0, ErrTruncated
	}
	var u uint64
	for i := 0; i < n; i++ {
		u = u<<8 | uint64(d.data[d.pos+1+i])
	}
	d.pos += 1 + n
	return u, nil
}

func (d *Decoder) readTrimmedInverted(n int) (uint64, error) {
	if d.pos+1+n > len(d.data) {
		return 0, ErrTruncated
	}
	var u uint64
	for i := 0; i < n; i++ {
		u = u<<8 | uint64(^d.data[d.pos+1+i])
	}
	d.pos += 1 + n
	return u, nil
}

func readUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func readUint64(b []byte) uint64 {
	var u uint64
	for _, c := range b {
		u = u<<8 | uint64(c)
	}
	return u
}
