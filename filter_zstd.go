package tiledbcore

import (
	"github.com/klauspost/compress/zstd"
)

// Zstd wraps klauspost/compress/zstd, the teacher's own compressor of
// choice (comp_zstd.go). Same header convention as Gzip.
func init() {
	RegisterFilterCodec(Zstd, zstdCompress, zstdDecompress)
}

func zstdCompress(_ Datatype, in *ConstBuffer, out *Buffer, f *Filter) error {
	if err := writeUint64(out, uint64(in.Size())); err != nil {
		return err
	}
	level := zstd.SpeedDefault
	if f.Level > 0 {
		level = zstd.EncoderLevelFromZstd(f.Level)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return err
	}
	defer enc.Close()
	compressed := enc.EncodeAll(in.Bytes(), nil)
	_, err = out.Write(compressed)
	return err
}

func zstdDecompress(_ Datatype, in *ConstBuffer, out *Buffer, _ *Filter) error {
	data := in.Bytes()
	if len(data) < 8 {
		return NewError(CompressionError, "zstd stream too short")
	}
	uncompressedSize := readUint64(data[:8])
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return err
	}
	defer dec.Close()
	out.Realloc(int(uncompressedSize))
	decoded, err := dec.DecodeAll(data[8:], make([]byte, 0, uncompressedSize))
	if err != nil {
		return err
	}
	_, err = out.Write(decoded)
	return err
}

