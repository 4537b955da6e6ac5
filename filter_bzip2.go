package tiledbcore

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
)

// Bzip2 wraps dsnet/compress/bzip2 — stdlib compress/bzip2 has no
// writer, so this is the named (not pack-grounded) out-of-pack choice.
// Same header convention as Gzip/Zstd/Lz4.
func init() {
	RegisterFilterCodec(Bzip2, bzip2Compress, bzip2Decompress)
}

func bzip2Compress(_ Datatype, in *ConstBuffer, out *Buffer, f *Filter) error {
	if err := writeUint64(out, uint64(in.Size())); err != nil {
		return err
	}
	var buf bytes.Buffer
	level := f.Level
	if level == 0 {
		level = bzip2.DefaultCompression
	}
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: level})
	if err != nil {
		return err
	}
	if _, err := w.Write(in.Bytes()); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	_, err = out.Write(buf.Bytes())
	return err
}

func bzip2Decompress(_ Datatype, in *ConstBuffer, out *Buffer, _ *Filter) error {
	data := in.Bytes()
	if len(data) < 8 {
		return NewError(CompressionError, "bzip2 stream too short")
	}
	uncompressedSize := readUint64(data[:8])
	r, err := bzip2.NewReader(bytes.NewReader(data[8:]), nil)
	if err != nil {
		return err
	}
	defer r.Close()
	out.Realloc(int(uncompressedSize))
	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, err = out.Write(buf)
	return err
}
