package tiledbcore

import (
	"encoding/binary"
)

// BitWidthReduction inspects fixed-size windows of an integral element
// stream and re-encodes each window in the narrowest byte width that
// still fits every value, storing the window's minimum so values can be
// rebased as unsigned offsets (spec §4.3). f.Window is the element count
// per window; zero or a negative value selects bwDefaultWindow (256).
//
// Output layout: origWidth(u8) | n(u64) | windowSize(u64) | for each
// window: packedWidth(u8) | min(i64) | values rebased to (v-min) in
// packedWidth bytes, little-endian.
const bwDefaultWindow = 256

func init() {
	RegisterFilterCodec(BitWidthReduction, bwCompress, bwDecompress)
}

func bwCompress(typ Datatype, in *ConstBuffer, out *Buffer, f *Filter) error {
	origWidth := typ.Size()
	if origWidth == 0 || !typ.IsInteger() {
		return NewError(CompressionError, "BitWidthReduction requires a fixed-width integral datatype")
	}
	values, err := decodeInt64Elements(typ, in.Bytes())
	if err != nil {
		return err
	}

	window := f.Window
	if window <= 0 {
		window = bwDefaultWindow
	}

	if _, err := out.Write([]byte{byte(origWidth)}); err != nil {
		return err
	}
	if err := writeUint64(out, uint64(len(values))); err != nil {
		return err
	}
	if err := writeUint64(out, uint64(window)); err != nil {
		return err
	}

	for start := 0; start < len(values); start += window {
		end := start + window
		if end > len(values) {
			end = len(values)
		}
		if err := bwWriteWindow(out, origWidth, values[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func bwWriteWindow(out *Buffer, origWidth int, win []int64) error {
	if len(win) == 0 {
		return out.writeByte(0)
	}
	min, max := win[0], win[0]
	for _, v := range win {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	span := uint64(max - min)
	packedWidth := bwWidthFor(span)

	if err := out.writeByte(byte(packedWidth)); err != nil {
		return err
	}
	if err := writeInt64(out, min); err != nil {
		return err
	}
	buf := make([]byte, packedWidth)
	for _, v := range win {
		u := uint64(v - min)
		for j := 0; j < packedWidth; j++ {
			buf[j] = byte(u)
			u >>= 8
		}
		if _, err := out.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// bwWidthFor picks the narrowest byte width in {1,2,4,8} that can hold
// span as an unsigned value.
func bwWidthFor(span uint64) int {
	for _, w := range []int{1, 2, 4, 8} {
		if fits(span, w) {
			return w
		}
	}
	return 8
}

func fits(span uint64, width int) bool {
	if width >= 8 {
		return true
	}
	return span < uint64(1)<<(uint(width)*8)
}

func bwDecompress(typ Datatype, in *ConstBuffer, out *Buffer, _ *Filter) error {
	data := in.Bytes()
	if len(data) < 1+8+8 {
		return NewError(CompressionError, "bit-width stream too short")
	}
	n := int(binary.LittleEndian.Uint64(data[1:9]))
	window := int(binary.LittleEndian.Uint64(data[9:17]))
	rest := data[17:]

	values := make([]int64, 0, n)
	for len(values) < n {
		wantLen := window
		if n-len(values) < wantLen {
			wantLen = n - len(values)
		}
		decoded, consumed, err := bwReadWindow(rest, wantLen)
		if err != nil {
			return err
		}
		values = append(values, decoded...)
		rest = rest[consumed:]
	}
	return encodeInt64Elements(typ, values, out)
}

func bwReadWindow(data []byte, count int) ([]int64, int, error) {
	if count == 0 {
		if len(data) < 1 {
			return nil, 0, NewError(CompressionError, "bit-width window header truncated")
		}
		return nil, 1, nil
	}
	if len(data) < 1+8 {
		return nil, 0, NewError(CompressionError, "bit-width window header truncated")
	}
	packedWidth := int(data[0])
	min := int64(binary.LittleEndian.Uint64(data[1:9]))
	off := 9
	need := off + count*packedWidth
	if len(data) < need {
		return nil, 0, NewError(CompressionError, "bit-width window body truncated")
	}
	values := make([]int64, count)
	for i := 0; i < count; i++ {
		chunk := data[off+i*packedWidth : off+(i+1)*packedWidth]
		var u uint64
		for j := packedWidth - 1; j >= 0; j-- {
			u = u<<8 | uint64(chunk[j])
		}
		values[i] = min + int64(u)
	}
	return values, need, nil
}

func (b *Buffer) writeByte(v byte) error {
	_, err := b.Write([]byte{v})
	return err
}
