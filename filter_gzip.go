package tiledbcore

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Gzip wraps klauspost/compress/gzip. Output layout: uncompressedSize(u64
// little-endian) followed by the gzip stream, per spec §4.3's "header =
// uncompressed size" convention shared by the whole compressor family.
func init() {
	RegisterFilterCodec(Gzip, gzipCompress, gzipDecompress)
}

func gzipCompress(_ Datatype, in *ConstBuffer, out *Buffer, f *Filter) error {
	if err := writeUint64(out, uint64(in.Size())); err != nil {
		return err
	}
	var buf bytes.Buffer
	level := f.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	w, err := gzip.NewWriterLevel(&buf, level)
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

func gzipDecompress(_ Datatype, in *ConstBuffer, out *Buffer, _ *Filter) error {
	data := in.Bytes()
	if len(data) < 8 {
		return NewError(CompressionError, "gzip stream too short")
	}
	uncompressedSize := readUint64(data[:8])
	r, err := gzip.NewReader(bytes.NewReader(data[8:]))
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
