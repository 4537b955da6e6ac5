package tiledbcore

// Blosc approximates the native BLOSC library's shuffle+compress
// characteristic without cgo: a byte-shuffle transpose (grouping every
// element's Nth byte together, which exposes cross-element redundancy
// to the entropy coder) followed by a Zstd pass. This reproduces
// BLOSC's compression-ratio behavior, not its bitstream — a fragment
// written with this filter is never expected to be read by the real
// BLOSC library. f.ByteWidth selects the shuffle element width (zero
// means the attribute's type size); the tile length must be a multiple
// of it.
func init() {
	RegisterFilterCodec(Blosc, bloscCompress, bloscDecompress)
}

func bloscCompress(typ Datatype, in *ConstBuffer, out *Buffer, f *Filter) error {
	width := f.ByteWidth
	if width <= 0 {
		width = typ.Size()
	}
	if width <= 0 {
		return NewError(CompressionError, "Blosc requires a positive shuffle width")
	}
	shuffled, err := shuffleBytes(in.Bytes(), width)
	if err != nil {
		return err
	}
	return zstdCompress(typ, NewConstBuffer(shuffled), out, f)
}

func bloscDecompress(typ Datatype, in *ConstBuffer, out *Buffer, f *Filter) error {
	width := f.ByteWidth
	if width <= 0 {
		width = typ.Size()
	}
	if width <= 0 {
		return NewError(CompressionError, "Blosc requires a positive shuffle width")
	}
	unzstd := NewBuffer(in.Size())
	if err := zstdDecompress(typ, in, unzstd, f); err != nil {
		return err
	}
	unshuffled, err := unshuffleBytes(unzstd.Bytes(), width)
	if err != nil {
		return err
	}
	_, err = out.Write(unshuffled)
	return err
}

// shuffleBytes regroups a stream of fixed-width elements so that all
// byte-0s come first, then all byte-1s, and so on.
func shuffleBytes(data []byte, width int) ([]byte, error) {
	if len(data)%width != 0 {
		return nil, NewError(CompressionError, "Blosc input length is not a multiple of the shuffle width")
	}
	n := len(data) / width
	out := make([]byte, len(data))
	for i := 0; i < n; i++ {
		for b := 0; b < width; b++ {
			out[b*n+i] = data[i*width+b]
		}
	}
	return out, nil
}

// unshuffleBytes reverses shuffleBytes.
func unshuffleBytes(data []byte, width int) ([]byte, error) {
	if len(data)%width != 0 {
		return nil, NewError(CompressionError, "Blosc shuffled stream length is not a multiple of the shuffle width")
	}
	n := len(data) / width
	out := make([]byte, len(data))
	for i := 0; i < n; i++ {
		for b := 0; b < width; b++ {
			out[i*width+b] = data[b*n+i]
		}
	}
	return out, nil
}
