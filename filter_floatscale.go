package tiledbcore

import (
	"encoding/binary"
	"math"
)

// FloatScale is a lossy codec that maps a floating-point value x onto an
// integer quantization level q = round((x-offset)/scale), stored in
// ByteWidth bytes (spec §4.3, scenario 5). Decompression recovers
// x' = q*scale + offset, within |x'-x| <= scale/2 by construction.
//
// Output layout: byteWidth(u8) | scale(f64) | offset(u64 bits of f64) |
// n(u64) | q_0 .. q_{n-1} (byteWidth bytes each, little-endian, two's
// complement). Grounded on
// original_source/test/src/unit-cppapi-float-scaling-filter.cc, which
// exercises exactly this byte_width/scale/offset parameterization.
func init() {
	RegisterFilterCodec(FloatScale, fsCompress, fsDecompress)
}

func fsCompress(typ Datatype, in *ConstBuffer, out *Buffer, f *Filter) error {
	if !typ.IsFloat() {
		return NewError(CompressionError, "FloatScale requires a floating-point datatype")
	}
	byteWidth := f.ByteWidth
	if byteWidth <= 0 || byteWidth > 8 {
		return NewError(CompressionError, "FloatScale requires a byte width in [1,8]")
	}
	scale := f.Scale
	if scale == 0 {
		return NewError(CompressionError, "FloatScale requires a non-zero scale")
	}

	values, err := decodeFloat64Elements(typ, in.Bytes())
	if err != nil {
		return err
	}

	if err := writeFsHeader(out, byteWidth, scale, f.Offset, len(values)); err != nil {
		return err
	}

	lo, hi := quantRange(byteWidth)
	buf := make([]byte, byteWidth)
	for _, x := range values {
		q := int64(math.Round((x - f.Offset) / scale))
		if q < lo || q > hi {
			return NewError(CompressionError, "FloatScale quantized value out of byte width range")
		}
		u := uint64(q)
		for j := 0; j < byteWidth; j++ {
			buf[j] = byte(u)
			u >>= 8
		}
		if _, err := out.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func fsDecompress(typ Datatype, in *ConstBuffer, out *Buffer, _ *Filter) error {
	data := in.Bytes()
	byteWidth, scale, offset, n, rest, err := readFsHeader(data)
	if err != nil {
		return err
	}
	if len(rest) != n*byteWidth {
		return NewError(CompressionError, "FloatScale stream length mismatch")
	}

	values := make([]float64, n)
	for i := 0; i < n; i++ {
		chunk := rest[i*byteWidth : (i+1)*byteWidth]
		var u uint64
		for j := byteWidth - 1; j >= 0; j-- {
			u = u<<8 | uint64(chunk[j])
		}
		shift := uint(64 - byteWidth*8)
		q := int64(u<<shift) >> shift
		values[i] = float64(q)*scale + offset
	}
	return encodeFloat64Elements(typ, values, out)
}

func writeFsHeader(out *Buffer, byteWidth int, scale, offset float64, n int) error {
	if _, err := out.Write([]byte{byte(byteWidth)}); err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(scale))
	if _, err := out.Write(buf[:]); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(offset))
	if _, err := out.Write(buf[:]); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	_, err := out.Write(buf[:])
	return err
}

func readFsHeader(data []byte) (byteWidth int, scale, offset float64, n int, rest []byte, err error) {
	if len(data) < 1+8+8+8 {
		return 0, 0, 0, 0, nil, NewError(CompressionError, "FloatScale stream too short")
	}
	byteWidth = int(data[0])
	scale = math.Float64frombits(binary.LittleEndian.Uint64(data[1:9]))
	offset = math.Float64frombits(binary.LittleEndian.Uint64(data[9:17]))
	n = int(binary.LittleEndian.Uint64(data[17:25]))
	rest = data[25:]
	return byteWidth, scale, offset, n, rest, nil
}

// quantRange returns the signed integer range representable in
// byteWidth bytes, two's complement.
func quantRange(byteWidth int) (lo, hi int64) {
	bits := uint(byteWidth * 8)
	if bits >= 64 {
		return math.MinInt64, math.MaxInt64
	}
	hi = int64(1)<<(bits-1) - 1
	lo = -(hi + 1)
	return lo, hi
}

func decodeFloat64Elements(typ Datatype, data []byte) ([]float64, error) {
	width := typ.Size()
	if width == 0 || len(data)%width != 0 {
		return nil, NewError(CompressionError, "FloatScale input length is not a multiple of the element width")
	}
	n := len(data) / width
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		chunk := data[i*width : (i+1)*width]
		switch typ {
		case Float32:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(chunk)))
		case Float64:
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(chunk))
		}
	}
	return out, nil
}

func encodeFloat64Elements(typ Datatype, values []float64, out *Buffer) error {
	switch typ {
	case Float32:
		var buf [4]byte
		for _, v := range values {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(v)))
			if _, err := out.Write(buf[:]); err != nil {
				return err
			}
		}
	case Float64:
		var buf [8]byte
		for _, v := range values {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			if _, err := out.Write(buf[:]); err != nil {
				return err
			}
		}
	default:
		return NewError(CompressionError, "FloatScale requires a floating-point datatype")
	}
	return nil
}
