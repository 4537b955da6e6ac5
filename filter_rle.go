package tiledbcore

import (
	"bytes"
)

// RLE run-encodes fixed-width elements. Output layout, run by run:
// value bytes (width = type size) followed by a 2-byte big-endian count
// capped at 65535 (spec §4.3, scenario 3; ported from
// original_source/core/src/compressors/rle_compressor.cc).
const rleMaxRun = 65535

func init() {
	RegisterFilterCodec(RLE, rleCompress, rleDecompress)
}

func rleCompress(typ Datatype, in *ConstBuffer, out *Buffer, _ *Filter) error {
	width := typ.Size()
	if width == 0 {
		return NewError(CompressionError, "RLE requires a fixed-width datatype")
	}
	data := in.Bytes()
	if len(data)%width != 0 {
		return NewError(CompressionError, "RLE input length is not a multiple of the element width")
	}
	valueNum := len(data) / width
	if valueNum == 0 {
		return nil
	}

	runStart := 0
	runLen := 1
	flush := func(start, length int) error {
		if _, err := out.Write(data[start*width : start*width+width]); err != nil {
			return err
		}
		count := uint16(length)
		if _, err := out.Write([]byte{byte(count >> 8), byte(count)}); err != nil {
			return err
		}
		return nil
	}

	for i := 1; i < valueNum; i++ {
		prev := data[(i-1)*width : i*width]
		cur := data[i*width : (i+1)*width]
		if bytes.Equal(prev, cur) && runLen < rleMaxRun {
			runLen++
			continue
		}
		if err := flush(runStart, runLen); err != nil {
			return err
		}
		runStart = i
		runLen = 1
	}
	return flush(runStart, runLen)
}

func rleDecompress(typ Datatype, in *ConstBuffer, out *Buffer, _ *Filter) error {
	width := typ.Size()
	if width == 0 {
		return NewError(CompressionError, "RLE requires a fixed-width datatype")
	}
	runSize := width + 2
	data := in.Bytes()
	if len(data)%runSize != 0 {
		return NewError(CompressionError, "RLE input is not a valid run stream")
	}
	runNum := len(data) / runSize
	for i := 0; i < runNum; i++ {
		run := data[i*runSize : (i+1)*runSize]
		value := run[:width]
		count := int(run[width])<<8 | int(run[width+1])
		for j := 0; j < count; j++ {
			if _, err := out.Write(value); err != nil {
				return err
			}
		}
	}
	return nil
}
