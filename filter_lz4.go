package tiledbcore

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Lz4 wraps pierrec/lz4/v4, named per the dependency lists of the
// pack's other key-value store manifests. Same header convention as
// Gzip/Zstd.
func init() {
	RegisterFilterCodec(Lz4, lz4Compress, lz4Decompress)
}

func lz4Compress(_ Datatype, in *ConstBuffer, out *Buffer, f *Filter) error {
	if err := writeUint64(out, uint64(in.Size())); err != nil {
		return err
	}
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if f.Level > 0 {
		if err := w.Apply(lz4.CompressionLevelOption(lz4.CompressionLevel(f.Level))); err != nil {
			return err
		}
	}
	if _, err := w.Write(in.Bytes()); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	_, err := out.Write(buf.Bytes())
	return err
}

func lz4Decompress(_ Datatype, in *ConstBuffer, out *Buffer, _ *Filter) error {
	data := in.Bytes()
	if len(data) < 8 {
		return NewError(CompressionError, "lz4 stream too short")
	}
	uncompressedSize := readUint64(data[:8])
	r := lz4.NewReader(bytes.NewReader(data[8:]))
	out.Realloc(int(uncompressedSize))
	buf := make([]byte, uncompressedSize)
	if uncompressedSize > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
	}
	_, err := out.Write(buf)
	return err
}
