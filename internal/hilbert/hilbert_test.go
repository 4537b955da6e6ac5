package hilbert_test

import (
	"testing"

	"github.com/dstorehq/tiledbcore/internal/hilbert"
)

// TestIndex2DDistinct checks that distinct 2-D points in a small grid
// produce distinct Hilbert indices, the minimum property any curve
// implementation must have to be useful as a total cell order.
func TestIndex2DDistinct(t *testing.T) {
	const bits = 3 // 8x8 grid
	seen := map[uint64][2]uint64{}
	for x := uint64(0); x < 8; x++ {
		for y := uint64(0); y < 8; y++ {
			idx := hilbert.Index(bits, []uint64{x, y})
			if prev, ok := seen[idx]; ok {
				t.Fatalf("collision: (%d,%d) and %v both map to %d", x, y, prev, idx)
			}
			seen[idx] = [2]uint64{x, y}
		}
	}
	if len(seen) != 64 {
		t.Errorf("got %d distinct indices, want 64", len(seen))
	}
}

func TestIndexOrigin(t *testing.T) {
	if got := hilbert.Index(3, []uint64{0, 0}); got != 0 {
		t.Errorf("Index(0,0) = %d, want 0", got)
	}
}

func TestIndex3D(t *testing.T) {
	const bits = 2
	seen := map[uint64]bool{}
	for x := uint64(0); x < 4; x++ {
		for y := uint64(0); y < 4; y++ {
			for z := uint64(0); z < 4; z++ {
				idx := hilbert.Index(bits, []uint64{x, y, z})
				seen[idx] = true
			}
		}
	}
	if len(seen) != 64 {
		t.Errorf("got %d distinct 3-D indices, want 64", len(seen))
	}
}
